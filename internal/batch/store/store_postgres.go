package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kta/internal/batch/models"
	id "kta/pkg/domain"
	"kta/pkg/platform/sentinel"
	"kta/pkg/platform/tx"
)

// PostgresStore persists batches, lines, and approvals in PostgreSQL. It
// implements BatchStore, LineStore, and ApprovalStore.
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

const batchColumns = `id, invoice_number, region_code, status, submitted_by, submitted_at,
	proof_ref, paid_at, verified_by, verified_at, rejection_reason,
	total_count, total_amount, invoice_ref, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, batch *models.PaymentBatch) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO payment_batches (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		batchArgs(batch)...,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, batchID id.BatchID) (*models.PaymentBatch, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+batchColumns+` FROM payment_batches WHERE id = $1`,
		uuid.UUID(batchID),
	)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find batch by id: %w", err)
	}
	return batch, nil
}

const batchUpdateSet = `invoice_number = $2, status = $3, proof_ref = $4, paid_at = $5,
	verified_by = $6, verified_at = $7, rejection_reason = $8, invoice_ref = $9,
	updated_at = $10`

func (s *PostgresStore) Transition(ctx context.Context, batch *models.PaymentBatch, from models.BatchStatus) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE payment_batches SET `+batchUpdateSet+`
		WHERE id = $1 AND status = $11`,
		append(batchUpdateArgs(batch), string(from))...,
	)
	if err != nil {
		return fmt.Errorf("transition batch: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition batch rows affected: %w", err)
	}
	if rows == 0 {
		if _, findErr := s.FindByID(ctx, batch.ID); findErr != nil {
			return findErr
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, batch *models.PaymentBatch) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE payment_batches SET `+batchUpdateSet+`
		WHERE id = $1`,
		batchUpdateArgs(batch)...,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByRegion(ctx context.Context, regionCode string) ([]*models.PaymentBatch, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+batchColumns+` FROM payment_batches WHERE region_code = $1
		ORDER BY created_at DESC`,
		regionCode,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches by region: %w", err)
	}
	defer rows.Close()

	var out []*models.PaymentBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, batch)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateLines(ctx context.Context, lines []*models.PaymentLine) error {
	for _, line := range lines {
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO payment_lines (batch_id, request_id, amount, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.UUID(line.BatchID), uuid.UUID(line.RequestID), line.Amount,
			string(line.Status), line.CreatedAt, line.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("create payment line: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FindByBatch(ctx context.Context, batchID id.BatchID) ([]*models.PaymentLine, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT batch_id, request_id, amount, status, created_at, updated_at
		FROM payment_lines WHERE batch_id = $1 ORDER BY created_at`,
		uuid.UUID(batchID),
	)
	if err != nil {
		return nil, fmt.Errorf("find lines by batch: %w", err)
	}
	defer rows.Close()

	var out []*models.PaymentLine
	for rows.Next() {
		var (
			line               models.PaymentLine
			batchID, requestID uuid.UUID
			status             string
		)
		if err := rows.Scan(&batchID, &requestID, &line.Amount, &status, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment line: %w", err)
		}
		line.BatchID = id.BatchID(batchID)
		line.RequestID = id.RequestID(requestID)
		line.Status = models.LineStatus(status)
		out = append(out, &line)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetStatusForBatch(ctx context.Context, batchID id.BatchID, status models.LineStatus, now time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE payment_lines SET status = $2, updated_at = $3 WHERE batch_id = $1`,
		uuid.UUID(batchID), string(status), now,
	)
	if err != nil {
		return fmt.Errorf("set line status for batch: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set line status rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, record *models.ApprovalRecord) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO approval_records (id, request_id, batch_id, decision, reason, decided_by, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(record.ID), uuid.UUID(record.RequestID), uuid.UUID(record.BatchID),
		string(record.Decision), record.Reason, record.DecidedBy, record.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("append approval record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByBatch(ctx context.Context, batchID id.BatchID) ([]*models.ApprovalRecord, error) {
	return s.listApprovals(ctx, `batch_id = $1`, uuid.UUID(batchID))
}

func (s *PostgresStore) ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.ApprovalRecord, error) {
	return s.listApprovals(ctx, `request_id = $1`, uuid.UUID(requestID))
}

func (s *PostgresStore) listApprovals(ctx context.Context, where string, arg any) ([]*models.ApprovalRecord, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, request_id, batch_id, decision, reason, decided_by, decided_at
		FROM approval_records WHERE `+where+` ORDER BY decided_at`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	defer rows.Close()

	var out []*models.ApprovalRecord
	for rows.Next() {
		var (
			record                       models.ApprovalRecord
			recordID, requestID, batchID uuid.UUID
			decision                     string
		)
		if err := rows.Scan(&recordID, &requestID, &batchID, &decision, &record.Reason, &record.DecidedBy, &record.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan approval record: %w", err)
		}
		record.ID = id.ApprovalID(recordID)
		record.RequestID = id.RequestID(requestID)
		record.BatchID = id.BatchID(batchID)
		record.Decision = models.Decision(decision)
		out = append(out, &record)
	}
	return out, rows.Err()
}

func batchArgs(batch *models.PaymentBatch) []any {
	return []any{
		uuid.UUID(batch.ID), batch.InvoiceNumber, batch.RegionCode, string(batch.Status),
		batch.SubmittedBy, batch.SubmittedAt,
		nullString(batch.ProofRef), nullTime(batch.PaidAt),
		nullString(batch.VerifiedBy), nullTime(batch.VerifiedAt), nullString(batch.RejectionReason),
		batch.TotalCount, batch.TotalAmount, nullString(batch.InvoiceRef),
		batch.CreatedAt, batch.UpdatedAt,
	}
}

func batchUpdateArgs(batch *models.PaymentBatch) []any {
	return []any{
		uuid.UUID(batch.ID), batch.InvoiceNumber, string(batch.Status),
		nullString(batch.ProofRef), nullTime(batch.PaidAt),
		nullString(batch.VerifiedBy), nullTime(batch.VerifiedAt), nullString(batch.RejectionReason),
		nullString(batch.InvoiceRef), batch.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*models.PaymentBatch, error) {
	var (
		batch                                        models.PaymentBatch
		batchID                                      uuid.UUID
		status                                       string
		proofRef, verifiedBy, rejectionReason, inRef sql.NullString
		paidAt, verifiedAt                           sql.NullTime
	)
	err := row.Scan(
		&batchID, &batch.InvoiceNumber, &batch.RegionCode, &status,
		&batch.SubmittedBy, &batch.SubmittedAt,
		&proofRef, &paidAt, &verifiedBy, &verifiedAt, &rejectionReason,
		&batch.TotalCount, &batch.TotalAmount, &inRef,
		&batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	batch.ID = id.BatchID(batchID)
	batch.Status = models.BatchStatus(status)
	batch.ProofRef = proofRef.String
	batch.VerifiedBy = verifiedBy.String
	batch.RejectionReason = rejectionReason.String
	batch.InvoiceRef = inRef.String
	if paidAt.Valid {
		batch.PaidAt = &paidAt.Time
	}
	if verifiedAt.Valid {
		batch.VerifiedAt = &verifiedAt.Time
	}
	return &batch, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
