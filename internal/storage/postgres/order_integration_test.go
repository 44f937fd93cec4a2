//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("checkout"),
		postgres.WithPassword("checkout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func newOrder(ref string) *order.Order {
	return &order.Order{
		Reference:    ref,
		CustomerName: "Jane Doe",
		Address: order.Address{
			Street:     "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62701",
			Country:    "USA",
		},
		Subtotal: decimal.RequireFromString("189.97"),
		Status:   order.StatusPending,
		Items: []order.Item{
			{ProductName: "Wireless Mouse", Quantity: 2, UnitPrice: decimal.RequireFromString("29.99"), LineTotal: decimal.RequireFromString("59.98")},
			{ProductName: "Mechanical Keyboard", Quantity: 1, UnitPrice: decimal.RequireFromString("129.99"), LineTotal: decimal.RequireFromString("129.99")},
		},
	}
}

func TestOrderRepository(t *testing.T) {
	pool := setupPool(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	t.Run("CreateAndFind", func(t *testing.T) {
		o := newOrder("ORD-1700000000000-AAAAAAAAA")
		o.Location = &order.Location{Latitude: 39.78, Longitude: -89.65, FormattedAddress: "Springfield, IL, USA"}
		require.NoError(t, repo.Create(ctx, o))
		assert.NotZero(t, o.ID)
		assert.False(t, o.CreatedAt.IsZero())

		got, err := repo.FindByReference(ctx, o.Reference)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Equal(t, o.Address, got.Address)
		assert.Equal(t, "189.97", got.Subtotal.StringFixed(2))
		require.NotNil(t, got.Location)
		assert.InDelta(t, 39.78, got.Location.Latitude, 1e-9)
		assert.Equal(t, "Springfield, IL, USA", got.Location.FormattedAddress)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "Wireless Mouse", got.Items[0].ProductName)
		assert.Equal(t, 2, got.Items[0].Quantity)
		assert.Equal(t, "59.98", got.Items[0].LineTotal.StringFixed(2))
		assert.Equal(t, "Mechanical Keyboard", got.Items[1].ProductName)
	})

	t.Run("NilLocation", func(t *testing.T) {
		o := newOrder("ORD-1700000000000-BBBBBBBBB")
		require.NoError(t, repo.Create(ctx, o))

		got, err := repo.FindByReference(ctx, o.Reference)
		require.NoError(t, err)
		assert.Nil(t, got.Location)
	})

	t.Run("DuplicateReference", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newOrder("ORD-1700000000000-CCCCCCCCC")))
		err := repo.Create(ctx, newOrder("ORD-1700000000000-CCCCCCCCC"))
		assert.ErrorIs(t, err, order.ErrDuplicateReference)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.FindByReference(ctx, "ORD-0-NOPE")
		assert.ErrorIs(t, err, order.ErrNotFound)

		_, err = repo.UpdateStatus(ctx, "ORD-0-NOPE", "shipped")
		assert.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		o := newOrder("ORD-1700000000000-DDDDDDDDD")
		require.NoError(t, repo.Create(ctx, o))

		got, err := repo.UpdateStatus(ctx, o.Reference, "shipped")
		require.NoError(t, err)
		assert.Equal(t, "shipped", got.Status)
		assert.Len(t, got.Items, 2)
	})

	t.Run("List", func(t *testing.T) {
		for i := range 3 {
			require.NoError(t, repo.Create(ctx, newOrder(fmt.Sprintf("ORD-1800000000000-%09d", i))))
		}

		var (
			all     []order.Order
			afterID int64
		)
		for {
			page, err := repo.List(ctx, afterID, 2)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			for _, o := range page {
				assert.Greater(t, o.ID, afterID)
				assert.Len(t, o.Items, 2)
				afterID = o.ID
			}
			all = append(all, page...)
		}
		assert.GreaterOrEqual(t, len(all), 6)
	})
}
