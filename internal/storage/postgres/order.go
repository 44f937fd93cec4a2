package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

const uniqueViolation = "23505"

const (
	insertOrderSQL = `INSERT INTO orders (
		order_reference, customer_name, street_address, city, state, postal_code, country,
		latitude, longitude, formatted_address, subtotal, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id, created_at`

	insertItemSQL = `INSERT INTO order_items (
		order_reference, position, product_name, quantity, unit_price, line_total
	) VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns = `id, order_reference, customer_name, street_address, city, state, postal_code,
		country, latitude, longitude, formatted_address, subtotal, status, created_at`

	selectOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_reference = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id > $1 ORDER BY id LIMIT $2`

	selectItemsSQL = `SELECT order_reference, product_name, quantity, unit_price, line_total
		FROM order_items WHERE order_reference = ANY($1) ORDER BY order_reference, position`

	updateStatusSQL = `UPDATE orders SET status = $2 WHERE order_reference = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var lat, lng *float64
		var formatted *string
		if o.Location != nil {
			lat, lng = &o.Location.Latitude, &o.Location.Longitude
			formatted = &o.Location.FormattedAddress
		}

		if err := tx.QueryRow(ctx, insertOrderSQL,
			o.Reference, o.CustomerName,
			o.Address.Street, o.Address.City, o.Address.State, o.Address.PostalCode, o.Address.Country,
			lat, lng, formatted,
			o.Subtotal, o.Status,
		).Scan(&o.ID, &o.CreatedAt); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(insertItemSQL, o.Reference, i, it.ProductName, it.Quantity, it.UnitPrice, it.LineTotal)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return order.ErrDuplicateReference
		}
		return errors.Wrapf(err, "create order %q", o.Reference)
	}
	return nil
}

// FindByReference loads an order with its items.
func (r *OrderRepository) FindByReference(ctx context.Context, ref string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrderSQL, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find order %q", ref)
	}

	orders := []order.Order{*o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// UpdateStatus overwrites the status and returns the updated order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, ref, status string) (*order.Order, error) {
	tag, err := r.pool.Exec(ctx, updateStatusSQL, ref, status)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %q status", ref)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}
	return r.FindByReference(ctx, ref)
}

// List returns a keyset page of orders with their items.
func (r *OrderRepository) List(ctx context.Context, afterID int64, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	if len(orders) == 0 {
		return nil, nil
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of all given orders with a single query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	refs := make([]string, len(orders))
	byRef := make(map[string]*order.Order, len(orders))
	for i := range orders {
		refs[i] = orders[i].Reference
		byRef[orders[i].Reference] = &orders[i]
		orders[i].Items = []order.Item{}
	}

	rows, err := r.pool.Query(ctx, selectItemsSQL, refs)
	if err != nil {
		return errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ref string
			it  order.Item
		)
		if err := rows.Scan(&ref, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		if o, ok := byRef[ref]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return errors.Wrap(rows.Err(), "iterate order items")
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o         order.Order
		lat, lng  *float64
		formatted *string
	)
	if err := row.Scan(
		&o.ID, &o.Reference, &o.CustomerName,
		&o.Address.Street, &o.Address.City, &o.Address.State, &o.Address.PostalCode, &o.Address.Country,
		&lat, &lng, &formatted,
		&o.Subtotal, &o.Status, &o.CreatedAt,
	); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		o.Location = &order.Location{Latitude: *lat, Longitude: *lng}
		if formatted != nil {
			o.Location.FormattedAddress = *formatted
		}
	}
	return &o, nil
}
