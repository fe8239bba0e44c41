//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kta/internal/request/models"
	id "kta/pkg/domain"
	"kta/pkg/platform/sentinel"
	"kta/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations")
	t.Cleanup(func() {
		_ = pg.DB.Close()
		_ = pg.Container.Terminate(context.Background())
	})

	ctx := context.Background()
	store := NewPostgres(pg.DB)

	seedRegion := func(t *testing.T) {
		t.Helper()
		_, err := pg.DB.ExecContext(ctx, `
			INSERT INTO regions (code, name, discount_percent, created_at, updated_at)
			VALUES ('JKT', 'Jakarta', 10, NOW(), NOW())`)
		require.NoError(t, err)
	}

	newFetched := func(t *testing.T, nationalID string) *models.Request {
		t.Helper()
		now := time.Now().UTC().Truncate(time.Microsecond)
		request, err := models.NewRequest(nationalID, "JKT", now)
		require.NoError(t, err)
		request.ApplyRegistryData("Budi Santoso", "Site Engineer", "Civil", 3, now)
		require.NoError(t, store.Create(ctx, request))
		return request
	}

	t.Run("round-trips nullable fields", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		seedRegion(t)
		request := newFetched(t, "3174012345670001")

		stored, err := store.FindByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFetched, stored.Status)
		assert.Empty(t, stored.Serial)
		assert.Nil(t, stored.Price)
		assert.True(t, stored.BatchID.IsNil())

		now := time.Now().UTC().Truncate(time.Microsecond)
		request.ApplySubmission(id.NewBatchID(), models.PriceSnapshot{BasePrice: 100_000, FinalPrice: 90_000}, now)
		require.NoError(t, store.Update(ctx, request))

		stored, err = store.FindByID(ctx, request.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Price)
		assert.Equal(t, int64(90_000), stored.Price.FinalPrice)
		assert.False(t, stored.BatchID.IsNil())
	})

	t.Run("transition is guarded by the expected status", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		seedRegion(t)
		request := newFetched(t, "3174012345670002")

		now := time.Now().UTC().Truncate(time.Microsecond)
		from := request.Status
		request.ApplyEdit(models.Edit{Name: "Budi S."}, now)
		require.NoError(t, store.Transition(ctx, request, from))

		// Replaying the same move fails: the stored status already advanced.
		err := store.Transition(ctx, request, from)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))

		err = store.Transition(ctx, request, models.StatusPrinted)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
	})

	t.Run("duplicate serial is refused by the unique index", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		seedRegion(t)

		now := time.Now().UTC().Truncate(time.Microsecond)
		issue := func(request *models.Request) error {
			request.ApplySubmission(id.NewBatchID(), models.PriceSnapshot{BasePrice: 100_000, FinalPrice: 90_000}, now)
			request.ApplyPaymentReceived(now)
			request.ApplyApproval(now)
			from := request.Status
			request.ApplyIssuance("JKT.02.000001", "card/JKT.02.000001", now)
			return store.Transition(ctx, request, from)
		}

		first := newFetched(t, "3174012345670003")
		require.NoError(t, issue(first))

		second := newFetched(t, "3174012345670004")
		err := issue(second)
		assert.True(t, errors.Is(err, sentinel.ErrConflict))
	})

	t.Run("FindByIDs requires every id to exist", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		seedRegion(t)
		request := newFetched(t, "3174012345670005")

		found, err := store.FindByIDs(ctx, []id.RequestID{request.ID})
		require.NoError(t, err)
		assert.Len(t, found, 1)

		_, err = store.FindByIDs(ctx, []id.RequestID{request.ID, id.NewRequestID()})
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})
}
