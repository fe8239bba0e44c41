package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"kta/internal/region/models"
	"kta/pkg/platform/sentinel"
	"kta/pkg/platform/tx"
)

// PostgresStore persists regions in PostgreSQL.
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

// execer returns the ambient transaction when one is in context, otherwise
// the pool.
func (s *PostgresStore) execer(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, region *models.Region) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO regions (code, name, discount_percent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		region.Code, region.Name, region.DiscountPercent, region.CreatedAt, region.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create region: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Region, error) {
	var region models.Region
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT code, name, discount_percent, created_at, updated_at
		FROM regions WHERE code = $1`,
		code,
	).Scan(&region.Code, &region.Name, &region.DiscountPercent, &region.CreatedAt, &region.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find region by code: %w", err)
	}
	return &region, nil
}

func (s *PostgresStore) Update(ctx context.Context, region *models.Region) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE regions SET name = $2, discount_percent = $3, updated_at = $4
		WHERE code = $1`,
		region.Code, region.Name, region.DiscountPercent, region.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update region: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update region rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Region, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT code, name, discount_percent, created_at, updated_at
		FROM regions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []*models.Region
	for rows.Next() {
		var region models.Region
		if err := rows.Scan(&region.Code, &region.Name, &region.DiscountPercent, &region.CreatedAt, &region.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, &region)
	}
	return out, rows.Err()
}
