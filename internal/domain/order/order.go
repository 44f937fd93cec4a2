package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatusPending is the status every new order starts with. Status is
// otherwise free-form.
const StatusPending = "pending"

// Order is a persisted customer order.
type Order struct {
	// ID is the internal database key.
	ID           int64
	Reference    string
	CustomerName string
	Address      Address
	// Location is nil when geocoding was skipped or failed.
	Location  *Location
	Subtotal  decimal.Decimal
	Status    string
	CreatedAt time.Time
	Items     []Item
}

// Address is the shipping address of an order.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Location is a best-effort geocoded position of the shipping address.
type Location struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
}

// Item is an order line, copied from the submitted cart item.
type Item struct {
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order and its items atomically, filling ID and
	// CreatedAt. Returns ErrDuplicateReference when the reference is taken.
	Create(ctx context.Context, o *Order) error
	// FindByReference returns ErrNotFound when no order has the reference.
	FindByReference(ctx context.Context, ref string) (*Order, error)
	// UpdateStatus returns ErrNotFound when no order has the reference.
	UpdateStatus(ctx context.Context, ref, status string) (*Order, error)
	// List returns up to limit orders with ID greater than afterID, by ID.
	List(ctx context.Context, afterID int64, limit int) ([]Order, error)
}

// Geocoder resolves a city/country pair to a Location. Any error means
// "no location".
type Geocoder interface {
	Resolve(ctx context.Context, city, country string) (*Location, error)
}

// Cart is the part of the cart store the workflow needs.
type Cart interface {
	ResetAfter(fn func() error) error
}

// ReferenceGenerator issues order references.
type ReferenceGenerator interface {
	Next() string
}
