// Package cart implements the process-wide shopping cart.
//
// There is one cart per process, shared by every client. All mutations go
// through a single mutex, so the Store behaves as a single-writer store.
package cart

import (
	"github.com/go-faster/errors"

	"github.com/xenking/checkout-gateway/internal/domain/money"
)

var (
	// ErrItemNotFound is returned when the referenced cart item does not exist.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned when a quantity, or the quantity an add
	// would merge into, is outside [1, money.MaxQuantity].
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")
	// ErrInvalidPrice is returned when a unit price is negative or above
	// money.MaxAmount.
	ErrInvalidPrice = errors.New("unit price must be between 0 and 99999999.99")
	// ErrTotalTooLarge is returned when a line total or the subtotal would
	// exceed money.MaxAmount.
	ErrTotalTooLarge = errors.New("cart total must not exceed 99999999.99")
	// ErrMissingProduct is returned when a product id or name is empty.
	ErrMissingProduct = errors.New("product id and name are required")
)

// Item is a single cart line. LineTotal is always derived from Quantity and
// UnitPrice and never set independently.
type Item struct {
	ID          string
	ProductName string
	Quantity    int
	UnitPrice   float64
	LineTotal   float64
}

func (i *Item) recompute() {
	i.LineTotal = money.LineTotal(i.Quantity, i.UnitPrice)
}

// Cart is a point-in-time snapshot of the store.
type Cart struct {
	Items    []Item
	Subtotal float64
}

// DefaultSeed returns the demo products the cart starts with and returns to
// after every successful order.
func DefaultSeed() []Item {
	return []Item{
		{ID: "1", ProductName: "Wireless Mouse", Quantity: 2, UnitPrice: 29.99},
		{ID: "2", ProductName: "Mechanical Keyboard", Quantity: 1, UnitPrice: 129.99},
		{ID: "3", ProductName: "USB-C Hub", Quantity: 1, UnitPrice: 49.99},
	}
}
