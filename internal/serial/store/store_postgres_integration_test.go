//go:build integration

package store

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kta/pkg/testutil/containers"
)

func TestPostgresCounterStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations")
	t.Cleanup(func() {
		_ = pg.DB.Close()
		_ = pg.Container.Terminate(context.Background())
	})

	ctx := context.Background()
	store := NewPostgresCounterStore(pg.DB)

	t.Run("sequences start at one and are per bucket", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))

		first, err := store.Next(ctx, "JKT", "02")
		require.NoError(t, err)
		assert.Equal(t, int64(1), first)

		second, err := store.Next(ctx, "JKT", "02")
		require.NoError(t, err)
		assert.Equal(t, int64(2), second)

		otherBucket, err := store.Next(ctx, "JKT", "01")
		require.NoError(t, err)
		assert.Equal(t, int64(1), otherBucket)

		otherRegion, err := store.Next(ctx, "SBY", "02")
		require.NoError(t, err)
		assert.Equal(t, int64(1), otherRegion)
	})

	t.Run("concurrent allocation is gapless and duplicate-free", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))

		const goroutines = 64
		var (
			mu     sync.Mutex
			wg     sync.WaitGroup
			values []int64
		)
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				value, err := store.Next(ctx, "JKT", "02")
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				values = append(values, value)
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, values, goroutines)
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		for i, value := range values {
			assert.Equal(t, int64(i+1), value)
		}
	})
}
