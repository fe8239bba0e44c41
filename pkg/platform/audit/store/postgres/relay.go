package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	audit "kta/pkg/platform/audit"

	"github.com/google/uuid"
)

// Emitter publishes one relayed event downstream, typically to Kafka.
type Emitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Relay drains the outbox: each unrelayed row is materialized into
// audit_events for querying, published through the emitter when one is
// configured, and stamped with relayed_at. Materialization uses AppendWithID,
// so a pass that dies between steps re-runs idempotently.
type Relay struct {
	store     *Store
	emitter   Emitter
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewRelay builds an outbox relay over the audit store. A nil emitter is
// valid: events are then only materialized locally.
func NewRelay(store *Store, emitter Emitter, logger *slog.Logger) *Relay {
	return &Relay{
		store:     store,
		emitter:   emitter,
		interval:  2 * time.Second,
		batchSize: 100,
		logger:    logger,
	}
}

// Run drains the outbox on a fixed interval until the context is canceled.
// A failed pass is logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err.Error())
			}
		}
	}
}

// RelayOnce processes one batch of unrelayed rows, oldest first, and returns
// how many were relayed. An emitter failure stops the pass before the row is
// stamped, so the event is re-delivered on the next tick.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.store.listUnrelayed(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	relayed := 0
	for _, entry := range entries {
		event, err := entry.toEvent()
		if err != nil {
			// An unparseable payload can never succeed; stamp it so it cannot
			// wedge the outbox, and leave the row for forensics.
			r.logger.ErrorContext(ctx, "outbox row has malformed payload; skipping",
				"outbox_id", entry.id.String(),
				"error", err.Error(),
			)
			if err := r.store.markRelayed(ctx, entry.id); err != nil {
				return relayed, err
			}
			continue
		}

		if err := r.store.AppendWithID(ctx, entry.id, event); err != nil {
			return relayed, err
		}
		if r.emitter != nil {
			if err := r.emitter.Emit(ctx, event); err != nil {
				return relayed, fmt.Errorf("emit outbox event %s: %w", entry.id, err)
			}
		}
		if err := r.store.markRelayed(ctx, entry.id); err != nil {
			return relayed, err
		}
		relayed++
	}
	return relayed, nil
}

type outboxEntry struct {
	id      uuid.UUID
	payload []byte
}

func (e outboxEntry) toEvent() (audit.Event, error) {
	var payload outboxPayload
	if err := json.Unmarshal(e.payload, &payload); err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	timestamp, err := time.Parse(time.RFC3339Nano, payload.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse outbox timestamp: %w", err)
	}
	return audit.Event{
		Category:   audit.EventCategory(payload.Category),
		Timestamp:  timestamp,
		ActorID:    payload.ActorID,
		Subject:    payload.Subject,
		Action:     payload.Action,
		BatchID:    payload.BatchID,
		RegionCode: payload.RegionCode,
		Decision:   payload.Decision,
		Reason:     payload.Reason,
		Amount:     payload.Amount,
		RequestID:  payload.RequestID,
	}, nil
}

func (s *Store) listUnrelayed(ctx context.Context, limit int) ([]outboxEntry, error) {
	query := `
		SELECT id, payload
		FROM outbox
		WHERE relayed_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unrelayed outbox rows: %w", err)
	}
	defer rows.Close()

	var entries []outboxEntry
	for rows.Next() {
		var entry outboxEntry
		if err := rows.Scan(&entry.id, &entry.payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return entries, nil
}

func (s *Store) markRelayed(ctx context.Context, outboxID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET relayed_at = $2 WHERE id = $1 AND relayed_at IS NULL`,
		outboxID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("mark outbox row relayed: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("outbox row %s already relayed: %w", outboxID, sql.ErrNoRows)
	}
	return nil
}
