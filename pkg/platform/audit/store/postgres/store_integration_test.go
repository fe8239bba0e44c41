//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "kta/pkg/platform/audit"
	txcontext "kta/pkg/platform/tx"
	"kta/pkg/testutil"
	"kta/pkg/testutil/containers"
)

// recordingEmitter captures relayed events; failUntil lets a test simulate a
// broker outage for the first N emits.
type recordingEmitter struct {
	events    []audit.Event
	failUntil int
}

func (e *recordingEmitter) Emit(_ context.Context, event audit.Event) error {
	if e.failUntil > 0 {
		e.failUntil--
		return errors.New("broker unavailable")
	}
	e.events = append(e.events, event)
	return nil
}

func TestPostgresAuditStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../../../migrations")
	t.Cleanup(func() {
		_ = pg.DB.Close()
		_ = pg.Container.Terminate(context.Background())
	})

	ctx := context.Background()
	store := New(pg.DB)

	verifiedEvent := func(subject string) audit.Event {
		return audit.Event{
			Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
			ActorID:    "verifier-1",
			Subject:    subject,
			Action:     string(audit.EventBatchVerified),
			RegionCode: "JKT",
			Decision:   "approved",
			Amount:     90_000,
		}
	}

	unrelayedCount := func(t *testing.T) int {
		t.Helper()
		var count int
		err := pg.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM outbox WHERE relayed_at IS NULL`).Scan(&count)
		require.NoError(t, err)
		return count
	}

	t.Run("relay materializes committed outbox rows for querying", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		event := verifiedEvent("batch-1")
		require.NoError(t, store.Append(ctx, event))

		// Before a relay pass the event sits only in the outbox.
		listed, err := store.ListBySubject(ctx, "batch-1")
		require.NoError(t, err)
		assert.Empty(t, listed)
		assert.Equal(t, 1, unrelayedCount(t))

		relay := NewRelay(store, nil, testutil.DiscardLogger())
		relayed, err := relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, relayed)

		listed, err = store.ListBySubject(ctx, "batch-1")
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, audit.CategoryCompliance, listed[0].Category)
		assert.Equal(t, event.Timestamp, listed[0].Timestamp.UTC())
		assert.Equal(t, "verifier-1", listed[0].ActorID)
		assert.Equal(t, string(audit.EventBatchVerified), listed[0].Action)
		assert.Equal(t, "approved", listed[0].Decision)
		assert.Equal(t, int64(90_000), listed[0].Amount)
		assert.Equal(t, 0, unrelayedCount(t))

		// A second pass finds nothing; rows are relayed exactly once.
		relayed, err = relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, relayed)
	})

	t.Run("an emitter outage leaves the row for the next pass", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		require.NoError(t, store.Append(ctx, verifiedEvent("batch-2")))

		emitter := &recordingEmitter{failUntil: 1}
		relay := NewRelay(store, emitter, testutil.DiscardLogger())

		relayed, err := relay.RelayOnce(ctx)
		assert.Error(t, err)
		assert.Equal(t, 0, relayed)
		assert.Equal(t, 1, unrelayedCount(t))

		// Broker back: the same row is delivered and stamped, and the
		// duplicate materialization is absorbed by AppendWithID.
		relayed, err = relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, relayed)
		require.Len(t, emitter.events, 1)
		assert.Equal(t, "batch-2", emitter.events[0].Subject)

		listed, err := store.ListBySubject(ctx, "batch-2")
		require.NoError(t, err)
		assert.Len(t, listed, 1)
		assert.Equal(t, 0, unrelayedCount(t))
	})

	t.Run("events append inside the caller's transaction", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))

		tx, err := pg.DB.BeginTx(ctx, nil)
		require.NoError(t, err)
		txCtx := txcontext.WithTx(ctx, tx)
		require.NoError(t, store.Append(txCtx, verifiedEvent("batch-3")))
		require.NoError(t, tx.Rollback())

		// The rolled-back append never reaches the outbox.
		assert.Equal(t, 0, unrelayedCount(t))
	})
}
