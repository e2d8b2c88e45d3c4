package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/BillingStore/internal/pkg/cache"
)

const webhookCountersPrefix = "webhook:counters:"

// WebhookCounter tallies webhook deliveries per provider and outcome in Redis hashes.
type WebhookCounter struct {
	rdb *redis.Client
}

// NewWebhookCounter creates a counter on rdb, or on the shared cache client when rdb is nil.
func NewWebhookCounter(rdb *redis.Client) *WebhookCounter {
	if rdb == nil {
		rdb = cache.GetClient()
	}
	return &WebhookCounter{rdb: rdb}
}

func counterKey(provider string) string {
	return webhookCountersPrefix + provider
}

// RecordDelivery increments the pending counter for provider and outcome.
// Failures are logged; counting never blocks webhook handling.
func (c *WebhookCounter) RecordDelivery(ctx context.Context, provider, outcome string) {
	if err := c.rdb.HIncrBy(ctx, counterKey(provider), outcome, 1).Err(); err != nil {
		log.Warnf("[Counter] Failed to count %s delivery for %s: %v", outcome, provider, err)
	}
}

// Snapshot returns the pending counters of a provider without resetting them.
func (c *WebhookCounter) Snapshot(ctx context.Context, provider string) (map[string]int64, error) {
	data, err := c.rdb.HGetAll(ctx, counterKey(provider)).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

// Drain returns and resets the counters of a provider.
// Uses RENAME to a temporary key so increments arriving meanwhile are kept.
func (c *WebhookCounter) Drain(ctx context.Context, provider string) (map[string]int64, error) {
	key := counterKey(provider)
	tmpKey := fmt.Sprintf("%s:tmp:%d", key, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, key, tmpKey).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	defer c.rdb.Del(ctx, tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

func parseCounts(data map[string]string) map[string]int64 {
	out := make(map[string]int64, len(data))
	for outcome, v := range data {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n == 0 {
			continue
		}
		out[outcome] = n
	}
	return out
}
