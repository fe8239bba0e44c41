package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"kta/internal/batch/models"
	"kta/internal/batch/service"
	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
	"kta/pkg/requestcontext"
	"kta/pkg/testutil"
)

// stubService lets each test script the handler's dependency.
type stubService struct {
	createBatch func(ctx context.Context, requestIDs []id.RequestID) (*models.PaymentBatch, error)
	markPaid    func(ctx context.Context, batchID id.BatchID, proofRef string) (*models.PaymentBatch, error)
	verify      func(ctx context.Context, batchID id.BatchID, approved bool, reason string) (*service.VerifyResult, error)
	getBatch    func(ctx context.Context, batchID id.BatchID) (*service.BatchDetail, error)
	listBatches func(ctx context.Context, regionCode string) ([]*models.PaymentBatch, error)
}

func (s *stubService) CreateBatch(ctx context.Context, requestIDs []id.RequestID) (*models.PaymentBatch, error) {
	return s.createBatch(ctx, requestIDs)
}

func (s *stubService) MarkPaid(ctx context.Context, batchID id.BatchID, proofRef string) (*models.PaymentBatch, error) {
	return s.markPaid(ctx, batchID, proofRef)
}

func (s *stubService) Verify(ctx context.Context, batchID id.BatchID, approved bool, reason string) (*service.VerifyResult, error) {
	return s.verify(ctx, batchID, approved, reason)
}

func (s *stubService) GetBatch(ctx context.Context, batchID id.BatchID) (*service.BatchDetail, error) {
	return s.getBatch(ctx, batchID)
}

func (s *stubService) ListBatches(ctx context.Context, regionCode string) ([]*models.PaymentBatch, error) {
	return s.listBatches(ctx, regionCode)
}

type HandlerSuite struct {
	suite.Suite

	service *stubService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.service = &stubService{}
	s.router = chi.NewRouter()
	New(s.service, testutil.DiscardLogger()).Register(s.router)
}

// asRole simulates the auth middleware that normally runs ahead of the
// handler routes.
func asRole(req *http.Request, role requestcontext.Role, regionCode string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), "user-1")
	ctx = requestcontext.WithRole(ctx, role)
	ctx = requestcontext.WithRegionCode(ctx, regionCode)
	return req.WithContext(ctx)
}

func submittedBatch(s *suite.Suite) *models.PaymentBatch {
	batch, err := models.NewPaymentBatch("JKT.INV.000001", "JKT", "user-1", 2, 190_000, time.Now().UTC())
	s.Require().NoError(err)
	return batch
}

func (s *HandlerSuite) TestCreateBatch() {
	s.Run("decodes ids and returns the created batch", func() {
		batch := submittedBatch(&s.Suite)
		memberIDs := []id.RequestID{id.NewRequestID(), id.NewRequestID()}

		var received []id.RequestID
		s.service.createBatch = func(_ context.Context, requestIDs []id.RequestID) (*models.PaymentBatch, error) {
			received = requestIDs
			return batch, nil
		}

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/batches", map[string]any{
			"request_ids": []string{memberIDs[0].String(), memberIDs[1].String()},
		})
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleRegional, "JKT"))

		s.Equal(http.StatusCreated, rr.Code)
		s.Equal(memberIDs, received)

		body := testutil.DecodeResponse[models.PaymentBatch](s.T(), rr)
		s.Equal("JKT.INV.000001", body.InvoiceNumber)
		s.Equal(models.BatchStatusSubmitted, body.Status)

		// The wire form of the id must be the canonical uuid string a client
		// can feed back into /api/batches/{id}/paid.
		raw := testutil.DecodeResponse[map[string]any](s.T(), rr)
		s.Equal(batch.ID.String(), (*raw)["id"])
	})

	s.Run("rejects a malformed body", func() {
		req := testutil.NewRawRequest(s.T(), http.MethodPost, "/api/batches", `{"request_ids": [`)
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleRegional, "JKT"))

		testutil.AssertErrorResponse(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("rejects a non-uuid request id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/batches", map[string]any{
			"request_ids": []string{"not-a-uuid"},
		})
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleRegional, "JKT"))

		testutil.AssertErrorResponse(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("maps service errors to the uniform body", func() {
		s.service.createBatch = func(context.Context, []id.RequestID) (*models.PaymentBatch, error) {
			return nil, dErrors.New(dErrors.CodeInvalidRequestSet, "requests span multiple regions")
		}

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/batches", map[string]any{
			"request_ids": []string{id.NewRequestID().String()},
		})
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleRegional, "JKT"))

		testutil.AssertErrorResponse(s.T(), rr, http.StatusUnprocessableEntity, "invalid_request_set")
	})
}

func (s *HandlerSuite) TestMarkPaid() {
	s.Run("passes the proof reference through", func() {
		batch := submittedBatch(&s.Suite)

		var receivedProof string
		s.service.markPaid = func(_ context.Context, batchID id.BatchID, proofRef string) (*models.PaymentBatch, error) {
			s.Equal(batch.ID, batchID)
			receivedProof = proofRef
			return batch, nil
		}

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/batches/"+batch.ID.String()+"/paid",
			map[string]string{"proof_ref": "proof/JKT/transfer.pdf"})
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleRegional, "JKT"))

		s.Equal(http.StatusOK, rr.Code)
		s.Equal("proof/JKT/transfer.pdf", receivedProof)
	})

	s.Run("rejects a malformed batch id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/batches/nope/paid",
			map[string]string{"proof_ref": "proof/JKT/transfer.pdf"})
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleRegional, "JKT"))

		testutil.AssertErrorResponse(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestVerifyRequiresCentralRole() {
	s.service.verify = func(_ context.Context, _ id.BatchID, approved bool, _ string) (*service.VerifyResult, error) {
		s.True(approved)
		return &service.VerifyResult{Batch: submittedBatch(&s.Suite)}, nil
	}

	batchID := id.NewBatchID()

	s.Run("regional callers are blocked before the service runs", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/batches/"+batchID.String()+"/verify",
			map[string]any{"approved": true})
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleRegional, "JKT"))

		testutil.AssertErrorResponse(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("central callers reach the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/batches/"+batchID.String()+"/verify",
			map[string]any{"approved": true})
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleCentral, ""))

		s.Equal(http.StatusOK, rr.Code)
	})
}

func (s *HandlerSuite) TestGetBatch() {
	batch := submittedBatch(&s.Suite)
	s.service.getBatch = func(_ context.Context, batchID id.BatchID) (*service.BatchDetail, error) {
		if batchID != batch.ID {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment batch not found")
		}
		return &service.BatchDetail{Batch: batch}, nil
	}

	s.Run("returns the detail for a known id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/batches/"+batch.ID.String(), nil)
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleCentral, ""))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.DecodeResponse[service.BatchDetail](s.T(), rr)
		s.Equal(batch.InvoiceNumber, body.Batch.InvoiceNumber)
	})

	s.Run("maps not found", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/batches/"+id.NewBatchID().String(), nil)
		rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleCentral, ""))

		testutil.AssertErrorResponse(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestListBatchesForwardsRegionFilter() {
	var receivedRegion string
	s.service.listBatches = func(_ context.Context, regionCode string) ([]*models.PaymentBatch, error) {
		receivedRegion = regionCode
		return []*models.PaymentBatch{}, nil
	}

	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/batches?region=JKT", nil)
	rr := testutil.DoRequest(s.router, asRole(req, requestcontext.RoleCentral, ""))

	s.Equal(http.StatusOK, rr.Code)
	s.Equal("JKT", receivedRegion)
}
