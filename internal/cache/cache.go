// Package cache implements the Hot Cache & Update Log (C5): a Redis-backed
// snapshot cache beside the Order Store (Get reports a miss; it does not
// load from the Store), plus a bounded per-order
// log of recent transition events for fast replay to newly-subscribed
// clients. Never a source of truth — every write here happens strictly
// after the corresponding Store write. Grounded on the teacher's
// pkg/database/redis.go wrapper, simplified from its layered L1/L2/L3
// design down to the spec's single-TTL hot cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/pkg/database"
)

const (
	defaultTTL      = time.Hour
	maxLogEntries   = 50
	orderKeyPrefix  = "order:"
	logKeyPrefix    = "order_log:"
	activeSetKey    = "orders:active"
)

// Cache is the Hot Cache & Update Log (C5).
type Cache struct {
	redis *database.RedisClient
	ttl   time.Duration
}

// New builds a Cache over redis with the default ~1hr TTL.
func New(redis *database.RedisClient) *Cache {
	return &Cache{redis: redis, ttl: defaultTTL}
}

// Put refreshes the cached snapshot of order and adds it to the active set
// if it is not yet terminal.
func (c *Cache) Put(ctx context.Context, order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order for cache: %w", err)
	}

	if err := c.redis.SetWithExpiry(ctx, orderKeyPrefix+order.ID, data, c.ttl); err != nil {
		return fmt.Errorf("failed to cache order: %w", err)
	}

	if order.Status.IsTerminal() {
		if err := c.redis.SRem(ctx, activeSetKey, order.ID).Err(); err != nil {
			return fmt.Errorf("failed to remove order from active set: %w", err)
		}
		return nil
	}

	if err := c.redis.SAdd(ctx, activeSetKey, order.ID).Err(); err != nil {
		return fmt.Errorf("failed to add order to active set: %w", err)
	}
	return nil
}

// Get returns the cached snapshot of an order, if present.
func (c *Cache) Get(ctx context.Context, id string) (domain.Order, bool, error) {
	raw, found, err := c.redis.GetString(ctx, orderKeyPrefix+id)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("failed to read cached order: %w", err)
	}
	if !found {
		return domain.Order{}, false, nil
	}

	var order domain.Order
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return domain.Order{}, false, fmt.Errorf("failed to unmarshal cached order: %w", err)
	}
	return order, true, nil
}

// ActiveOrderIDs returns the ids of every order not yet in a terminal state.
func (c *Cache) ActiveOrderIDs(ctx context.Context) ([]string, error) {
	ids, err := c.redis.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active orders: %w", err)
	}
	return ids, nil
}

// AppendEvent appends a transition event to an order's update log, capping
// the log at maxLogEntries newest-first entries.
func (c *Cache) AppendEvent(ctx context.Context, event domain.TransitionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transition event: %w", err)
	}

	key := logKeyPrefix + event.OrderID
	if err := c.redis.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append transition event: %w", err)
	}
	if err := c.redis.LTrim(ctx, key, 0, maxLogEntries-1).Err(); err != nil {
		return fmt.Errorf("failed to trim transition log: %w", err)
	}
	if err := c.redis.Expire(ctx, key, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set transition log expiry: %w", err)
	}
	return nil
}

// RecentEvents returns an order's update log, newest first.
func (c *Cache) RecentEvents(ctx context.Context, orderID string) ([]domain.TransitionEvent, error) {
	raws, err := c.redis.LRange(ctx, logKeyPrefix+orderID, 0, maxLogEntries-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transition log: %w", err)
	}

	events := make([]domain.TransitionEvent, 0, len(raws))
	for _, raw := range raws {
		var e domain.TransitionEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Evict removes an order's cached snapshot and log, used once an order's
// terminal record has aged out of relevance to live traffic.
func (c *Cache) Evict(ctx context.Context, orderID string) error {
	if err := c.redis.DeleteKeys(ctx, orderKeyPrefix+orderID, logKeyPrefix+orderID); err != nil {
		return fmt.Errorf("failed to evict order from cache: %w", err)
	}
	if err := c.redis.SRem(ctx, activeSetKey, orderID).Err(); err != nil {
		return fmt.Errorf("failed to remove evicted order from active set: %w", err)
	}
	return nil
}
