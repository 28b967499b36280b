package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/price-engine/internal/domain/promo"
)

var _ promo.Repository = (*PromotionCache)(nil)

// PromotionCache caches promotion definitions by code. Unknown codes are
// negative-cached so that guessed codes do not hammer the database. Usage
// counters read through the cached definition are advisory; the ledger is
// authoritative at validation and commit time.
type PromotionCache struct {
	next   promo.Repository
	client *redis.Client
	ttl    time.Duration
	lg     *zap.Logger
}

// NewPromotionCache decorates a promo.Repository with a Redis read-through cache.
func NewPromotionCache(next promo.Repository, client *redis.Client, ttl time.Duration, lg *zap.Logger) *PromotionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PromotionCache{next: next, client: client, ttl: ttl, lg: lg}
}

func promotionKey(code string) string {
	return "promotion:" + strings.ToUpper(code)
}

// negativeEntry marks a code known to not exist.
const negativeEntry = "!"

// FindByCode implements promo.Repository.
func (c *PromotionCache) FindByCode(ctx context.Context, code string) (*promo.Promotion, error) {
	key := promotionKey(code)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if string(data) == negativeEntry {
			return nil, promo.ErrNotFound
		}
		var p promo.Promotion
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		_ = c.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		logMiss(c.lg, "promotion.get", key, err)
	}

	p, err := c.next.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, promo.ErrNotFound) {
			if err := c.client.Set(ctx, key, negativeEntry, c.ttl).Err(); err != nil {
				logMiss(c.lg, "promotion.set", key, err)
			}
			return nil, promo.ErrNotFound
		}
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logMiss(c.lg, "promotion.set", key, err)
		}
	}
	return p, nil
}

// Invalidate drops a cached promotion, for use after promotion mutations.
func (c *PromotionCache) Invalidate(ctx context.Context, code string) error {
	return c.client.Del(ctx, promotionKey(code)).Err()
}
