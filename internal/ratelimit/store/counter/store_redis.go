package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"perimeter/pkg/platform/sentinel"
)

var incrementDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "perimeter_ratelimit_increment_duration_ms",
	Help:    "Latency of counter increments in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// RedisCounterStore is the Redis-backed counter store. INCR gives the
// atomic increment-and-read every gateway instance shares, which is what
// makes the quotas hold across the whole deployment.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore wraps an existing Redis client. The client's
// lifecycle is managed by the caller.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Increment atomically increments the counter at key and returns the new
// count. Connectivity failures wrap sentinel.ErrUnavailable so the limiter
// can tell an outage from a quota decision.
func (s *RedisCounterStore) Increment(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	defer func() {
		incrementDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return count, nil
}

// Expire sets the counter's TTL so stale buckets reclaim themselves.
func (s *RedisCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}
