package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

type stubRepo struct {
	orders    map[string]*order.Order
	findCalls int
}

func (s *stubRepo) Create(_ context.Context, o *order.Order) error {
	s.orders[o.Reference] = o
	return nil
}

func (s *stubRepo) FindByReference(_ context.Context, ref string) (*order.Order, error) {
	s.findCalls++
	o, ok := s.orders[ref]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, ref, status string) (*order.Order, error) {
	o, ok := s.orders[ref]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (s *stubRepo) List(context.Context, int64, int) ([]order.Order, error) {
	return nil, nil
}

func setup(t *testing.T) (*OrderCache, *stubRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubRepo{orders: map[string]*order.Order{
		"ORD-1": {
			ID:        1,
			Reference: "ORD-1",
			Subtotal:  decimal.RequireFromString("59.98"),
			Status:    order.StatusPending,
			CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			Items: []order.Item{{
				ProductName: "Wireless Mouse",
				Quantity:    2,
				UnitPrice:   decimal.RequireFromString("29.99"),
				LineTotal:   decimal.RequireFromString("59.98"),
			}},
		},
	}}
	return NewOrderCache(repo, client, time.Minute), repo, mr
}

func TestOrderCache_ReadThrough(t *testing.T) {
	cache, repo, mr := setup(t)
	ctx := context.Background()

	first, err := cache.FindByReference(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.findCalls)
	assert.True(t, mr.Exists(cacheKey("ORD-1")))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey("ORD-1")))

	second, err := cache.FindByReference(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.findCalls, "second read served from cache")
	assert.Equal(t, first.Reference, second.Reference)
	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	require.Len(t, second.Items, 1)
	assert.Equal(t, "Wireless Mouse", second.Items[0].ProductName)
}

func TestOrderCache_NotFoundNotCached(t *testing.T) {
	cache, _, mr := setup(t)

	_, err := cache.FindByReference(context.Background(), "ORD-404")
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.False(t, mr.Exists(cacheKey("ORD-404")))
}

func TestOrderCache_UpdateStatusRefreshes(t *testing.T) {
	cache, _, mr := setup(t)
	ctx := context.Background()

	_, err := cache.FindByReference(ctx, "ORD-1")
	require.NoError(t, err)

	_, err = cache.UpdateStatus(ctx, "ORD-1", "shipped")
	require.NoError(t, err)

	raw, err := mr.Get(cacheKey("ORD-1"))
	require.NoError(t, err)
	var cached order.Order
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, "shipped", cached.Status)
}

func TestOrderCache_CorruptEntryFallsBack(t *testing.T) {
	cache, repo, mr := setup(t)
	require.NoError(t, mr.Set(cacheKey("ORD-1"), "{not json"))

	o, err := cache.FindByReference(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", o.Reference)
	assert.Equal(t, 1, repo.findCalls)
}

func TestOrderCache_RedisDownFallsBack(t *testing.T) {
	cache, repo, mr := setup(t)
	mr.Close()

	o, err := cache.FindByReference(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", o.Reference)
	assert.Equal(t, 1, repo.findCalls)
}
