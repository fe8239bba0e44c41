package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore backs the counters with Redis INCR, which is atomic
// across processes. Suited to multi-instance deployments that keep serials
// outside the relational database.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Next(ctx context.Context, regionCode, bucket string) (int64, error) {
	key := fmt.Sprintf("kta:serial:%s:%s", regionCode, bucket)
	next, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("advance counter %s: %w", key, err)
	}
	return next, nil
}
