package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kta/internal/request/models"
	id "kta/pkg/domain"
	"kta/pkg/platform/sentinel"
	"kta/pkg/platform/tx"
)

// PostgresStore persists requests in PostgreSQL. The serials column carries a
// unique index, so a duplicate serial can never land even if the allocator's
// contract were somehow violated.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

const requestColumns = `id, national_id, name, job_title, sub_classification, tier,
	region_code, status, serial, artifact_ref, batch_id, base_price, final_price,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, request *models.Request) error {
	serial, artifactRef, batchID, basePrice, finalPrice := toNullable(request)
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.UUID(request.ID), request.NationalID, request.Name, request.JobTitle,
		request.SubClassification, request.Tier, request.RegionCode, string(request.Status),
		serial, artifactRef, batchID, basePrice, finalPrice,
		request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE id = $1`,
		uuid.UUID(requestID),
	)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, requestIDs []id.RequestID) ([]*models.Request, error) {
	ids := make([]uuid.UUID, len(requestIDs))
	for i, rid := range requestIDs {
		ids[i] = uuid.UUID(rid)
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE id = ANY($1)
		ORDER BY created_at`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("find requests by ids: %w", err)
	}
	defer rows.Close()

	out, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(out) != len(requestIDs) {
		return nil, sentinel.ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) FindByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Request, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE batch_id = $1
		ORDER BY created_at`,
		uuid.UUID(batchID),
	)
	if err != nil {
		return nil, fmt.Errorf("find requests by batch: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *PostgresStore) Update(ctx context.Context, request *models.Request) error {
	res, err := s.exec(ctx, request, `
		UPDATE requests SET national_id = $2, name = $3, job_title = $4,
			sub_classification = $5, tier = $6, status = $7, serial = $8,
			artifact_ref = $9, batch_id = $10, base_price = $11, final_price = $12,
			updated_at = $13
		WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return checkAffected(res, func() error { return sentinel.ErrNotFound })
}

func (s *PostgresStore) Transition(ctx context.Context, request *models.Request, from models.Status) error {
	res, err := s.exec(ctx, request, `
		UPDATE requests SET national_id = $2, name = $3, job_title = $4,
			sub_classification = $5, tier = $6, status = $7, serial = $8,
			artifact_ref = $9, batch_id = $10, base_price = $11, final_price = $12,
			updated_at = $13
		WHERE id = $1 AND status = $14`, string(from))
	if err != nil {
		return fmt.Errorf("transition request: %w", err)
	}
	return checkAffected(res, func() error {
		// Zero rows: either the id is unknown or a concurrent writer moved the
		// status first. Distinguish for the caller.
		if _, findErr := s.FindByID(ctx, request.ID); findErr != nil {
			return findErr
		}
		return sentinel.ErrInvalidState
	})
}

func (s *PostgresStore) ListByRegion(ctx context.Context, regionCode string) ([]*models.Request, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE region_code = $1
		ORDER BY created_at DESC`,
		regionCode,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests by region: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *PostgresStore) exec(ctx context.Context, request *models.Request, query string, extra ...any) (sql.Result, error) {
	serial, artifactRef, batchID, basePrice, finalPrice := toNullable(request)
	args := []any{
		uuid.UUID(request.ID), request.NationalID, request.Name, request.JobTitle,
		request.SubClassification, request.Tier, string(request.Status),
		serial, artifactRef, batchID, basePrice, finalPrice, request.UpdatedAt,
	}
	args = append(args, extra...)
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, sentinel.ErrConflict
		}
	}
	return res, err
}

func checkAffected(res sql.Result, onZero func() error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return onZero()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		request               models.Request
		requestID             uuid.UUID
		serial, artifactRef   sql.NullString
		batchID               uuid.NullUUID
		basePrice, finalPrice sql.NullInt64
		status                string
	)
	err := row.Scan(
		&requestID, &request.NationalID, &request.Name, &request.JobTitle,
		&request.SubClassification, &request.Tier, &request.RegionCode, &status,
		&serial, &artifactRef, &batchID, &basePrice, &finalPrice,
		&request.CreatedAt, &request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	request.ID = id.RequestID(requestID)
	request.Status = models.Status(status)
	request.Serial = serial.String
	request.ArtifactRef = artifactRef.String
	if batchID.Valid {
		request.BatchID = id.BatchID(batchID.UUID)
	}
	if basePrice.Valid {
		request.Price = &models.PriceSnapshot{
			BasePrice:  basePrice.Int64,
			FinalPrice: finalPrice.Int64,
		}
	}
	return &request, nil
}

func scanRequests(rows *sql.Rows) ([]*models.Request, error) {
	var out []*models.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, request)
	}
	return out, rows.Err()
}

func toNullable(request *models.Request) (serial, artifactRef sql.NullString, batchID uuid.NullUUID, basePrice, finalPrice sql.NullInt64) {
	serial = sql.NullString{String: request.Serial, Valid: request.Serial != ""}
	artifactRef = sql.NullString{String: request.ArtifactRef, Valid: request.ArtifactRef != ""}
	if !request.BatchID.IsNil() {
		batchID = uuid.NullUUID{UUID: uuid.UUID(request.BatchID), Valid: true}
	}
	if request.Price != nil {
		basePrice = sql.NullInt64{Int64: request.Price.BasePrice, Valid: true}
		finalPrice = sql.NullInt64{Int64: request.Price.FinalPrice, Valid: true}
	}
	return
}
