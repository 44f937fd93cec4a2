package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

type sliceLister struct {
	orders []order.Order
	calls  []int64
	failAt int64
}

func (s *sliceLister) List(_ context.Context, afterID int64, limit int) ([]order.Order, error) {
	s.calls = append(s.calls, afterID)
	if s.failAt > 0 && afterID >= s.failAt {
		return nil, errors.New("connection lost")
	}
	var page []order.Order
	for _, o := range s.orders {
		if o.ID > afterID && len(page) < limit {
			page = append(page, o)
		}
	}
	return page, nil
}

func makeOrders(n int) []order.Order {
	out := make([]order.Order, n)
	for i := range out {
		out[i] = order.Order{
			ID:           int64(i + 1),
			Reference:    fmt.Sprintf("ORD-1700000000000-%09d", i+1),
			CustomerName: "Jane Doe",
			Address:      order.Address{Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "USA"},
			Subtotal:     decimal.RequireFromString("59.98"),
			Status:       order.StatusPending,
			CreatedAt:    time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
			Items: []order.Item{{
				ProductName: "Wireless Mouse",
				Quantity:    2,
				UnitPrice:   decimal.RequireFromString("29.99"),
				LineTotal:   decimal.RequireFromString("59.98"),
			}},
		}
	}
	out[0].Location = &order.Location{Latitude: 39.78, Longitude: -89.65, FormattedAddress: "Springfield, IL, USA"}
	return out
}

type exportedOrder struct {
	ID       int64  `json:"id"`
	OrderID  string `json:"orderId"`
	City     string `json:"city"`
	Location *struct {
		Latitude         float64 `json:"latitude"`
		FormattedAddress string  `json:"formattedAddress"`
	} `json:"location"`
	Subtotal  string    `json:"subtotal"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []struct {
		ProductName string `json:"productName"`
		Quantity    int    `json:"quantity"`
		LineTotal   string `json:"lineTotal"`
	} `json:"items"`
}

func readLines(t *testing.T, data []byte) []exportedOrder {
	t.Helper()
	zr, err := pgzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	var out []exportedOrder
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var o exportedOrder
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o), sc.Text())
		out = append(out, o)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestWrite(t *testing.T) {
	src := &sliceLister{orders: makeOrders(7)}
	var buf bytes.Buffer

	n, err := Write(context.Background(), src, &buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []int64{0, 3, 6}, src.calls, "keyset paging stops on a short page")

	lines := readLines(t, buf.Bytes())
	require.Len(t, lines, 7)
	for i, o := range lines {
		assert.EqualValues(t, i+1, o.ID)
	}

	first := lines[0]
	assert.Equal(t, "ORD-1700000000000-000000001", first.OrderID)
	assert.Equal(t, "Springfield", first.City)
	assert.Equal(t, "59.98", first.Subtotal)
	require.NotNil(t, first.Location)
	assert.InDelta(t, 39.78, first.Location.Latitude, 1e-9)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "59.98", first.Items[0].LineTotal)
	assert.Nil(t, lines[1].Location)
	assert.True(t, lines[2].CreatedAt.Equal(time.Date(2025, 1, 1, 0, 0, 2, 0, time.UTC)))
}

func TestWrite_ExactPages(t *testing.T) {
	src := &sliceLister{orders: makeOrders(4)}
	var buf bytes.Buffer

	n, err := Write(context.Background(), src, &buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int64{0, 2, 4}, src.calls)
	assert.Len(t, readLines(t, buf.Bytes()), 4)
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(context.Background(), &sliceLister{}, &buf, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, readLines(t, buf.Bytes()))
}

func TestWrite_ListError(t *testing.T) {
	src := &sliceLister{orders: makeOrders(5), failAt: 2}
	var buf bytes.Buffer

	_, err := Write(context.Background(), src, &buf, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.jsonl.gz")
	require.NoError(t, os.WriteFile(path, []byte("previous export"), 0o600))

	n, err := WriteFile(context.Background(), &sliceLister{orders: makeOrders(3)}, path, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, FileMode, info.Mode().Perm(), "readable by other users")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readLines(t, data), 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWriteFile_FailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.jsonl.gz")
	require.NoError(t, os.WriteFile(path, []byte("previous export"), 0o600))

	_, err := WriteFile(context.Background(), &sliceLister{orders: makeOrders(5), failAt: 2}, path, 2)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous export", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")
}
