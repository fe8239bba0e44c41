package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kta/internal/artifact"
	"kta/internal/batch/metrics"
	"kta/internal/batch/models"
	batchstore "kta/internal/batch/store"
	"kta/internal/issuance"
	issuancemetrics "kta/internal/issuance/metrics"
	"kta/internal/platform/config"
	"kta/internal/pricing"
	regionModel "kta/internal/region/models"
	regionstore "kta/internal/region/store"
	requestModel "kta/internal/request/models"
	requeststore "kta/internal/request/store"
	"kta/internal/serial"
	serialstore "kta/internal/serial/store"
	"kta/internal/storage"
	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
	audit "kta/pkg/platform/audit"
	"kta/pkg/platform/audit/publishers/compliance"
	"kta/pkg/platform/audit/publishers/operations"
	auditmemory "kta/pkg/platform/audit/store/memory"
	"kta/pkg/requestcontext"
	"kta/pkg/testutil"
)

// Shared across the package: promauto registers against the default
// registry, which tolerates only one registration per process.
var (
	testMetrics         = metrics.New()
	testIssuanceMetrics = issuancemetrics.New()
)

type stubRenderer struct {
	cards    []artifact.CardSnapshot
	invoices []artifact.InvoiceSnapshot
}

func (r *stubRenderer) RenderCard(_ context.Context, snapshot artifact.CardSnapshot) (string, error) {
	r.cards = append(r.cards, snapshot)
	return "card/" + snapshot.Serial, nil
}

func (r *stubRenderer) RenderInvoice(_ context.Context, snapshot artifact.InvoiceSnapshot) (string, error) {
	r.invoices = append(r.invoices, snapshot)
	return "invoice/" + snapshot.InvoiceNumber, nil
}

// failingLines simulates a storage fault in the middle of batch creation,
// after the batch row is already written.
type failingLines struct {
	batchstore.LineStore
	fail bool
}

func (f *failingLines) CreateLines(ctx context.Context, lines []*models.PaymentLine) error {
	if f.fail {
		return fmt.Errorf("disk full")
	}
	return f.LineStore.CreateLines(ctx, lines)
}

// failingCompliance refuses every emit.
type failingCompliance struct{}

func (failingCompliance) Emit(context.Context, audit.Event) error {
	return fmt.Errorf("audit sink down")
}

type ServiceSuite struct {
	suite.Suite
	requests   *requeststore.InMemoryStore
	regions    *regionstore.InMemoryStore
	batches    *batchstore.InMemoryStore
	lines      *failingLines
	auditLog   *auditmemory.Store
	ops        *operations.Publisher
	renderer   *stubRenderer
	service    *Service
	clock      time.Time
	regional   context.Context
	central    context.Context
	background context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.requests = requeststore.NewInMemoryStore()
	s.regions = regionstore.NewInMemoryStore()
	s.batches = batchstore.NewInMemoryStore()
	s.lines = &failingLines{LineStore: s.batches}
	s.auditLog = auditmemory.New()
	s.ops = operations.New(64)
	s.renderer = &stubRenderer{}
	s.clock = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s.service = s.newService(compliance.New(s.auditLog))

	s.background = requestcontext.WithTime(context.Background(), s.clock)
	regional := requestcontext.WithRole(s.background, requestcontext.RoleRegional)
	regional = requestcontext.WithRegionCode(regional, "JKT")
	s.regional = requestcontext.WithUserID(regional, "submitter-1")
	central := requestcontext.WithRole(s.background, requestcontext.RoleCentral)
	s.central = requestcontext.WithUserID(central, "verifier-1")

	region, err := regionModel.NewRegion("JKT", "Jakarta", 10, s.clock)
	s.Require().NoError(err)
	s.Require().NoError(s.regions.Create(context.Background(), region))
}

func (s *ServiceSuite) newService(compliancePublisher CompliancePublisher) *Service {
	counters := serialstore.NewInMemoryCounterStore()
	issuer := issuance.New(
		s.requests, serial.NewAllocator(counters), s.renderer, s.ops,
		testIssuanceMetrics, testutil.DiscardLogger(), 2, time.Second,
	)
	return New(Config{
		Batches:    s.batches,
		Lines:      s.lines,
		Approvals:  s.batches,
		Requests:   s.requests,
		Regions:    s.regions,
		Pricer:     pricing.NewPolicy(config.PricingConfig{LowTierRate: 100_000, HighTierRate: 300_000}),
		Invoices:   counters,
		Issuer:     issuer,
		Renderer:   s.renderer,
		TxRunner:   storage.NewMemoryTx(s.requests, s.regions, s.batches),
		Compliance: compliancePublisher,
		Operations: s.ops,
		Metrics:    testMetrics,
		Logger:     testutil.DiscardLogger(),
	})
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// fetchedRequest seeds one request at FETCHED with registry data.
func (s *ServiceSuite) fetchedRequest(nationalID string, tier int) *requestModel.Request {
	request, err := requestModel.NewRequest(nationalID, "JKT", s.clock)
	s.Require().NoError(err)
	request.ApplyRegistryData("Budi Santoso", "Site Engineer", "Civil", tier, s.clock)
	s.Require().NoError(s.requests.Create(context.Background(), request))
	return request
}

func (s *ServiceSuite) paidBatch(requestIDs ...id.RequestID) *models.PaymentBatch {
	batch, err := s.service.CreateBatch(s.regional, requestIDs)
	s.Require().NoError(err)
	paid, err := s.service.MarkPaid(s.regional, batch.ID, "uploads/proof-1.pdf")
	s.Require().NoError(err)
	return paid
}

func (s *ServiceSuite) TestCreateBatch() {
	s.Run("freezes prices and moves members to waiting payment", func() {
		first := s.fetchedRequest("3174012345670001", 3)
		second := s.fetchedRequest("3174012345670002", 8)

		batch, err := s.service.CreateBatch(s.regional, []id.RequestID{first.ID, second.ID})
		s.Require().NoError(err)

		s.Equal(models.BatchStatusSubmitted, batch.Status)
		s.Equal("JKT.INV.000001", batch.InvoiceNumber)
		s.Equal(2, batch.TotalCount)
		// tier 3 at 10% off plus tier 8 at 10% off.
		s.Equal(int64(90_000+270_000), batch.TotalAmount)
		s.Equal("submitter-1", batch.SubmittedBy)

		lines, err := s.batches.FindByBatch(context.Background(), batch.ID)
		s.Require().NoError(err)
		s.Require().Len(lines, 2)
		s.Equal(models.LineStatusPending, lines[0].Status)

		member, err := s.requests.FindByID(context.Background(), first.ID)
		s.Require().NoError(err)
		s.Equal(requestModel.StatusWaitingPayment, member.Status)
		s.Equal(batch.ID, member.BatchID)
		s.Require().NotNil(member.Price)
		s.Equal(int64(100_000), member.Price.BasePrice)
		s.Equal(int64(90_000), member.Price.FinalPrice)

		// Invoice artifact is rendered and linked after commit.
		stored, err := s.batches.FindByID(context.Background(), batch.ID)
		s.Require().NoError(err)
		s.Equal("invoice/JKT.INV.000001", stored.InvoiceRef)

		event := <-s.ops.Events()
		s.Equal(string(audit.EventBatchCreated), event.Action)
		s.Equal(batch.ID.String(), event.Subject)
		s.Equal(batch.TotalAmount, event.Amount)
	})

	s.Run("empty set", func() {
		_, err := s.service.CreateBatch(s.regional, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequestSet))
	})

	s.Run("duplicate ids", func() {
		request := s.fetchedRequest("3174012345670010", 2)
		_, err := s.service.CreateBatch(s.regional, []id.RequestID{request.ID, request.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequestSet))
	})

	s.Run("unknown request", func() {
		_, err := s.service.CreateBatch(s.regional, []id.RequestID{id.NewRequestID()})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("member of another region", func() {
		local := s.fetchedRequest("3174012345670011", 2)
		foreign, err := requestModel.NewRequest("3578012345670001", "SBY", s.clock)
		s.Require().NoError(err)
		foreign.ApplyRegistryData("Siti Aminah", "Architect", "Building", 4, s.clock)
		s.Require().NoError(s.requests.Create(context.Background(), foreign))

		_, err = s.service.CreateBatch(s.regional, []id.RequestID{local.ID, foreign.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequestSet))
	})

	s.Run("member already waiting for payment", func() {
		busy := s.fetchedRequest("3174012345670012", 2)
		_, err := s.service.CreateBatch(s.regional, []id.RequestID{busy.ID})
		s.Require().NoError(err)

		_, err = s.service.CreateBatch(s.regional, []id.RequestID{busy.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequestSet))
	})

	s.Run("central caller is rejected", func() {
		request := s.fetchedRequest("3174012345670013", 2)
		_, err := s.service.CreateBatch(s.central, []id.RequestID{request.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestCreateBatchIsAtomic() {
	var ids []id.RequestID
	for i := 0; i < 5; i++ {
		ids = append(ids, s.fetchedRequest(fmt.Sprintf("31740123456701%02d", i), 3).ID)
	}
	s.lines.fail = true

	_, err := s.service.CreateBatch(s.regional, ids)
	s.Require().Error(err)

	// Nothing survives the failure: no batch, no half-written members.
	batches, listErr := s.batches.ListByRegion(context.Background(), "JKT")
	s.Require().NoError(listErr)
	s.Empty(batches)
	for _, requestID := range ids {
		stored, findErr := s.requests.FindByID(context.Background(), requestID)
		s.Require().NoError(findErr)
		s.Equal(requestModel.StatusFetched, stored.Status)
		s.Nil(stored.Price)
		s.True(stored.BatchID.IsNil())
	}

	// The same set succeeds once storage recovers.
	s.lines.fail = false
	_, err = s.service.CreateBatch(s.regional, ids)
	s.NoError(err)
}

func (s *ServiceSuite) TestPriceSnapshotIsStable() {
	request := s.fetchedRequest("3174012345670001", 3)
	batch := s.paidBatch(request.ID)

	// The region halves its price after submission; the snapshot must not move.
	region, err := s.regions.FindByCode(context.Background(), "JKT")
	s.Require().NoError(err)
	region.DiscountPercent = 50
	s.Require().NoError(s.regions.Update(context.Background(), region))

	result, err := s.service.Verify(s.central, batch.ID, true, "")
	s.Require().NoError(err)
	s.Equal(int64(90_000), result.Batch.TotalAmount)

	stored, err := s.requests.FindByID(context.Background(), request.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.Price)
	s.Equal(int64(90_000), stored.Price.FinalPrice)
}

func (s *ServiceSuite) TestMarkPaid() {
	s.Run("moves batch and every member", func() {
		request := s.fetchedRequest("3174012345670001", 3)
		batch, err := s.service.CreateBatch(s.regional, []id.RequestID{request.ID})
		s.Require().NoError(err)

		paid, err := s.service.MarkPaid(s.regional, batch.ID, "uploads/proof-1.pdf")
		s.Require().NoError(err)
		s.Equal(models.BatchStatusPaid, paid.Status)
		s.Equal("uploads/proof-1.pdf", paid.ProofRef)
		s.Require().NotNil(paid.PaidAt)

		lines, err := s.batches.FindByBatch(context.Background(), batch.ID)
		s.Require().NoError(err)
		s.Equal(models.LineStatusPaid, lines[0].Status)

		member, err := s.requests.FindByID(context.Background(), request.ID)
		s.Require().NoError(err)
		s.Equal(requestModel.StatusReadyForReview, member.Status)
	})

	s.Run("requires a proof reference", func() {
		request := s.fetchedRequest("3174012345670020", 2)
		batch, err := s.service.CreateBatch(s.regional, []id.RequestID{request.ID})
		s.Require().NoError(err)

		_, err = s.service.MarkPaid(s.regional, batch.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("another region may not pay", func() {
		request := s.fetchedRequest("3174012345670021", 2)
		batch, err := s.service.CreateBatch(s.regional, []id.RequestID{request.ID})
		s.Require().NoError(err)

		other := requestcontext.WithRole(s.background, requestcontext.RoleRegional)
		other = requestcontext.WithRegionCode(other, "SBY")
		other = requestcontext.WithUserID(other, "submitter-2")
		_, err = s.service.MarkPaid(other, batch.ID, "uploads/proof-2.pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("paying twice is an invalid transition", func() {
		request := s.fetchedRequest("3174012345670022", 2)
		batch := s.paidBatch(request.ID)

		_, err := s.service.MarkPaid(s.regional, batch.ID, "uploads/proof-3.pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("unknown batch", func() {
		_, err := s.service.MarkPaid(s.regional, id.NewBatchID(), "uploads/proof.pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestVerifyApproval() {
	request := s.fetchedRequest("3174012345670001", 3)
	batch := s.paidBatch(request.ID)

	result, err := s.service.Verify(s.central, batch.ID, true, "")
	s.Require().NoError(err)
	s.Equal(models.BatchStatusVerified, result.Batch.Status)
	s.Equal("verifier-1", result.Batch.VerifiedBy)

	// Approval fans straight into issuance.
	s.Require().NotNil(result.Issuance)
	s.Len(result.Issuance.Succeeded, 1)
	s.Empty(result.Issuance.Failed)

	member, err := s.requests.FindByID(context.Background(), request.ID)
	s.Require().NoError(err)
	s.Equal(requestModel.StatusReadyToPrint, member.Status)
	s.Equal("JKT.02.000001", member.Serial)
	s.Equal("card/JKT.02.000001", member.ArtifactRef)

	lines, err := s.batches.FindByBatch(context.Background(), batch.ID)
	s.Require().NoError(err)
	s.Equal(models.LineStatusVerified, lines[0].Status)

	records, err := s.batches.ListByBatch(context.Background(), batch.ID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(models.DecisionApproved, records[0].Decision)
	s.Equal(request.ID, records[0].RequestID)

	events := s.auditLog.All()
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventBatchVerified), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal(batch.TotalAmount, events[0].Amount)
}

func (s *ServiceSuite) TestVerifyRejection() {
	s.Run("requires a reason", func() {
		request := s.fetchedRequest("3174012345670030", 3)
		batch := s.paidBatch(request.ID)

		_, err := s.service.Verify(s.central, batch.ID, false, "")
		s.True(dErrors.HasCode(err, dErrors.CodeMissingRejectionReason))
	})

	s.Run("resets members to draft for re-submission", func() {
		request := s.fetchedRequest("3174012345670031", 3)
		batch := s.paidBatch(request.ID)

		result, err := s.service.Verify(s.central, batch.ID, false, "proof illegible")
		s.Require().NoError(err)
		s.Equal(models.BatchStatusRejected, result.Batch.Status)
		s.Equal("proof illegible", result.Batch.RejectionReason)
		s.Nil(result.Issuance)

		member, err := s.requests.FindByID(context.Background(), request.ID)
		s.Require().NoError(err)
		s.Equal(requestModel.StatusDraft, member.Status)
		s.Nil(member.Price)
		s.True(member.BatchID.IsNil())

		records, err := s.batches.ListByBatch(context.Background(), batch.ID)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(models.DecisionRejected, records[0].Decision)
		s.Equal("proof illegible", records[0].Reason)

		// The loop closes: the member re-fetches and joins a fresh batch at
		// the region's current discount.
		region, err := s.regions.FindByCode(context.Background(), "JKT")
		s.Require().NoError(err)
		region.DiscountPercent = 0
		s.Require().NoError(s.regions.Update(context.Background(), region))

		s.Require().NoError(member.CanApplyRegistryData())
		member.ApplyRegistryData(member.Name, member.JobTitle, member.SubClassification, member.Tier, s.clock)
		s.Require().NoError(s.requests.Update(context.Background(), member))

		fresh, err := s.service.CreateBatch(s.regional, []id.RequestID{member.ID})
		s.Require().NoError(err)
		s.Equal(int64(100_000), fresh.TotalAmount)
	})
}

func (s *ServiceSuite) TestVerifyGating() {
	request := s.fetchedRequest("3174012345670040", 3)
	batch, err := s.service.CreateBatch(s.regional, []id.RequestID{request.ID})
	s.Require().NoError(err)

	s.Run("regional caller is rejected", func() {
		_, err := s.service.Verify(s.regional, batch.ID, true, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("verifying before payment is an invalid transition", func() {
		_, err := s.service.Verify(s.central, batch.ID, true, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *ServiceSuite) TestVerifyFailsClosedWhenAuditSinkIsDown() {
	request := s.fetchedRequest("3174012345670001", 3)
	batch := s.paidBatch(request.ID)

	broken := s.newService(failingCompliance{})
	_, err := broken.Verify(s.central, batch.ID, true, "")
	s.Require().Error(err)

	// The decision rolled back together with its missing audit record.
	stored, err := s.batches.FindByID(context.Background(), batch.ID)
	s.Require().NoError(err)
	s.Equal(models.BatchStatusPaid, stored.Status)

	member, err := s.requests.FindByID(context.Background(), request.ID)
	s.Require().NoError(err)
	s.Equal(requestModel.StatusReadyForReview, member.Status)

	records, err := s.batches.ListByBatch(context.Background(), batch.ID)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *ServiceSuite) TestGetBatch() {
	request := s.fetchedRequest("3174012345670001", 3)
	batch, err := s.service.CreateBatch(s.regional, []id.RequestID{request.ID})
	s.Require().NoError(err)

	s.Run("owning region sees its batch with lines", func() {
		detail, err := s.service.GetBatch(s.regional, batch.ID)
		s.Require().NoError(err)
		s.Equal(batch.ID, detail.Batch.ID)
		s.Len(detail.Lines, 1)
	})

	s.Run("central sees every batch", func() {
		_, err := s.service.GetBatch(s.central, batch.ID)
		s.NoError(err)
	})

	s.Run("another region is rejected", func() {
		other := requestcontext.WithRole(s.background, requestcontext.RoleRegional)
		other = requestcontext.WithRegionCode(other, "SBY")
		_, err := s.service.GetBatch(other, batch.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestListBatchesPinsRegionalCallers() {
	request := s.fetchedRequest("3174012345670001", 3)
	_, err := s.service.CreateBatch(s.regional, []id.RequestID{request.ID})
	s.Require().NoError(err)

	// A regional caller asking for another region still gets its own.
	batches, err := s.service.ListBatches(s.regional, "SBY")
	s.Require().NoError(err)
	s.Require().Len(batches, 1)
	s.Equal("JKT", batches[0].RegionCode)
}
