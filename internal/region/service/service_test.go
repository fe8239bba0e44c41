package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	regionstore "kta/internal/region/store"
	"kta/internal/storage"
	dErrors "kta/pkg/domain-errors"
	audit "kta/pkg/platform/audit"
	"kta/pkg/platform/audit/publishers/compliance"
	auditmemory "kta/pkg/platform/audit/store/memory"
	"kta/pkg/requestcontext"
	"kta/pkg/testutil"
)

type RegionServiceSuite struct {
	suite.Suite
	store    *regionstore.InMemoryStore
	auditLog *auditmemory.Store
	service  *Service
}

func (s *RegionServiceSuite) SetupTest() {
	s.store = regionstore.NewInMemoryStore()
	s.auditLog = auditmemory.New()
	s.service = New(
		s.store,
		storage.NewMemoryTx(s.store),
		compliance.New(s.auditLog),
		testutil.DiscardLogger(),
	)
}

func TestRegionServiceSuite(t *testing.T) {
	suite.Run(t, new(RegionServiceSuite))
}

func (s *RegionServiceSuite) centralCtx() context.Context {
	ctx := requestcontext.WithRole(context.Background(), requestcontext.RoleCentral)
	return requestcontext.WithUserID(ctx, "admin-1")
}

func (s *RegionServiceSuite) regionalCtx(code string) context.Context {
	ctx := requestcontext.WithRole(context.Background(), requestcontext.RoleRegional)
	return requestcontext.WithRegionCode(ctx, code)
}

func (s *RegionServiceSuite) TestCreateRegion() {
	s.Run("central caller creates a region", func() {
		region, err := s.service.CreateRegion(s.centralCtx(), "JKT", "Jakarta", 10)
		s.Require().NoError(err)
		s.Equal("JKT", region.Code)
		s.Equal(10, region.DiscountPercent)
	})

	s.Run("duplicate code conflicts", func() {
		_, err := s.service.CreateRegion(s.centralCtx(), "JKT", "Jakarta Again", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("regional caller is forbidden", func() {
		_, err := s.service.CreateRegion(s.regionalCtx("SBY"), "SBY", "Surabaya", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *RegionServiceSuite) TestUpdateDiscount() {
	_, err := s.service.CreateRegion(s.centralCtx(), "JKT", "Jakarta", 10)
	s.Require().NoError(err)

	s.Run("changes discount and records compliance audit", func() {
		region, err := s.service.UpdateDiscount(s.centralCtx(), "JKT", 25)
		s.Require().NoError(err)
		s.Equal(25, region.DiscountPercent)

		events, err := s.auditLog.ListBySubject(context.Background(), "JKT")
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventDiscountChanged), events[0].Action)
		s.Equal(audit.CategoryCompliance, events[0].Category)
		s.Equal(int64(25), events[0].Amount)
		s.Equal("admin-1", events[0].ActorID)
	})

	s.Run("unknown region", func() {
		_, err := s.service.UpdateDiscount(s.centralCtx(), "XXX", 5)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("out-of-bounds discount leaves region untouched", func() {
		_, err := s.service.UpdateDiscount(s.centralCtx(), "JKT", 101)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		region, err := s.service.GetRegion(s.centralCtx(), "JKT")
		s.Require().NoError(err)
		s.Equal(25, region.DiscountPercent)
	})

	s.Run("regional caller is forbidden", func() {
		_, err := s.service.UpdateDiscount(s.regionalCtx("JKT"), "JKT", 5)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *RegionServiceSuite) TestListRegions() {
	_, err := s.service.CreateRegion(s.centralCtx(), "SBY", "Surabaya", 0)
	s.Require().NoError(err)
	_, err = s.service.CreateRegion(s.centralCtx(), "JKT", "Jakarta", 10)
	s.Require().NoError(err)

	regions, err := s.service.ListRegions(s.regionalCtx("JKT"))
	s.Require().NoError(err)
	s.Require().Len(regions, 2)
	s.Equal("JKT", regions[0].Code)
	s.Equal("SBY", regions[1].Code)
}
