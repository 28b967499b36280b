// Package cache provides Redis-backed read-through decorators for the
// rule and promotion repositories. Cache failures are logged and fall
// through to the underlying repository, so Redis going away degrades
// latency, not correctness.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL bounds how stale a cached rule set or promotion may be.
// Usage counters are never served from cache; the ledger reads them from
// the database.
const DefaultTTL = 30 * time.Second

// NewClient connects a go-redis client from a redis:// URL and verifies
// the connection with a ping.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func logMiss(lg *zap.Logger, op, key string, err error) {
	lg.Warn("cache unavailable, falling through",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
