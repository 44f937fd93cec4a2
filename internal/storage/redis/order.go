// Package redis provides a read-through Redis cache in front of an
// order.Repository.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

// DefaultTTL is the cache entry lifetime used when none is configured.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "checkout:order:"

var _ order.Repository = (*OrderCache)(nil)

// OrderCache decorates an order.Repository with a Redis read-through cache
// keyed by order reference. Cache failures are logged and never surface.
type OrderCache struct {
	next   order.Repository
	client redis.UniversalClient
	ttl    time.Duration
}

// NewOrderCache wraps next. A non-positive ttl selects DefaultTTL.
func NewOrderCache(next order.Repository, client redis.UniversalClient, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OrderCache{next: next, client: client, ttl: ttl}
}

func (c *OrderCache) Create(ctx context.Context, o *order.Order) error {
	return c.next.Create(ctx, o)
}

func (c *OrderCache) FindByReference(ctx context.Context, ref string) (*order.Order, error) {
	o, err := c.get(ctx, ref)
	switch {
	case err == nil:
		return o, nil
	case !errors.Is(err, redis.Nil):
		zctx.From(ctx).Warn("Order cache read failed", zap.String("order_reference", ref), zap.Error(err))
	}

	o, err = c.next.FindByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.set(ctx, o)
	return o, nil
}

func (c *OrderCache) UpdateStatus(ctx context.Context, ref, status string) (*order.Order, error) {
	o, err := c.next.UpdateStatus(ctx, ref, status)
	if err != nil {
		return nil, err
	}
	c.set(ctx, o)
	return o, nil
}

func (c *OrderCache) List(ctx context.Context, afterID int64, limit int) ([]order.Order, error) {
	return c.next.List(ctx, afterID, limit)
}

func (c *OrderCache) get(ctx context.Context, ref string) (*order.Order, error) {
	data, err := c.client.Get(ctx, cacheKey(ref)).Bytes()
	if err != nil {
		return nil, err
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, errors.Wrap(err, "unmarshal cached order")
	}
	return &o, nil
}

func (c *OrderCache) set(ctx context.Context, o *order.Order) {
	lg := zctx.From(ctx).With(zap.String("order_reference", o.Reference))
	data, err := json.Marshal(o)
	if err != nil {
		lg.Warn("Marshal order for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(o.Reference), data, c.ttl).Err(); err != nil {
		lg.Warn("Order cache write failed", zap.Error(err))
	}
}

func cacheKey(ref string) string {
	return keyPrefix + ref
}
