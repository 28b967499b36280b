package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/price-engine/internal/domain/rule"
)

const ruleSetKey = "price_rules:active"

var _ rule.Repository = (*RuleCache)(nil)

// RuleCache caches the full active rule set under a single key. The set is
// small and every request needs all of it, so one key beats per-rule entries.
type RuleCache struct {
	next   rule.Repository
	client *redis.Client
	ttl    time.Duration
	lg     *zap.Logger
}

// NewRuleCache decorates a rule.Repository with a Redis read-through cache.
func NewRuleCache(next rule.Repository, client *redis.Client, ttl time.Duration, lg *zap.Logger) *RuleCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RuleCache{next: next, client: client, ttl: ttl, lg: lg}
}

// ListActive implements rule.Repository.
func (c *RuleCache) ListActive(ctx context.Context) ([]rule.PriceRule, error) {
	data, err := c.client.Get(ctx, ruleSetKey).Bytes()
	if err == nil {
		var rules []rule.PriceRule
		if err := json.Unmarshal(data, &rules); err == nil {
			return rules, nil
		}
		// Corrupted entry; drop it and reload.
		_ = c.client.Del(ctx, ruleSetKey).Err()
	} else if err != redis.Nil {
		logMiss(c.lg, "rules.get", ruleSetKey, err)
	}

	rules, err := c.next.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rules); err == nil {
		if err := c.client.Set(ctx, ruleSetKey, data, c.ttl).Err(); err != nil {
			logMiss(c.lg, "rules.set", ruleSetKey, err)
		}
	}
	return rules, nil
}

// Invalidate drops the cached rule set, for use after rule mutations.
func (c *RuleCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, ruleSetKey).Err()
}
