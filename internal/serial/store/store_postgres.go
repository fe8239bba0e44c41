package store

import (
	"context"
	"database/sql"
	"fmt"

	"kta/pkg/platform/tx"
)

// PostgresCounterStore backs the counters with one row per (region, bucket)
// scope. The upsert-increment runs as a single statement, so concurrent
// callers serialize on the row lock and each sees a distinct value.
type PostgresCounterStore struct {
	db *sql.DB
}

func NewPostgresCounterStore(db *sql.DB) *PostgresCounterStore {
	return &PostgresCounterStore{db: db}
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresCounterStore) execer(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresCounterStore) Next(ctx context.Context, regionCode, bucket string) (int64, error) {
	var next int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO serial_counters (region_code, tier_bucket, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (region_code, tier_bucket)
		DO UPDATE SET last_value = serial_counters.last_value + 1
		RETURNING last_value`,
		regionCode, bucket,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("advance counter %s.%s: %w", regionCode, bucket, err)
	}
	return next, nil
}
