package order

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/money"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems         = errors.New("items required")
	ErrNotFound           = errors.New("order not found")
	ErrDuplicateReference = errors.New("order reference already exists")
	ErrInvalidStatus      = errors.New("status must be 1-50 characters")
	ErrSubtotalTooLarge   = errors.New("order subtotal must not exceed 99999999.99")
)

// MaxStatusLength bounds the free-form status value.
const MaxStatusLength = 50

// lineTotalTolerance is half a cent.
const lineTotalTolerance = 0.005 + 1e-9

// InvalidItemError indicates a submitted line item breaks an arithmetic
// invariant the workflow relies on.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// ItemInput is a line item as submitted by the client.
type ItemInput struct {
	ProductName string
	Quantity    int
	UnitPrice   float64
	LineTotal   float64
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	CustomerName string
	Address      Address
	Items        []ItemInput
}

// Config tunes the order workflow.
type Config struct {
	// TrustLineTotals skips the check that each submitted line total equals
	// quantity × unit price.
	TrustLineTotals bool
	// ReferenceAttempts bounds how many references are tried when the
	// repository reports a duplicate.
	ReferenceAttempts int
	// GeocodeTimeout bounds the geocoding call.
	GeocodeTimeout time.Duration
}

// Service encapsulates the order placement workflow.
type Service struct {
	cfg      Config
	orders   Repository
	cart     Cart
	geocoder Geocoder
	refs     ReferenceGenerator
}

// NewService creates an order Service. geocoder may be nil.
func NewService(
	cfg Config,
	orders Repository,
	cart Cart,
	geocoder Geocoder,
	refs ReferenceGenerator,
) *Service {
	if cfg.ReferenceAttempts < 1 {
		cfg.ReferenceAttempts = 1
	}
	return &Service{
		cfg:      cfg,
		orders:   orders,
		cart:     cart,
		geocoder: geocoder,
		refs:     refs,
	}
}

// PlaceOrder validates the items, computes the subtotal from the submitted
// line totals, geocodes the address, persists the order and resets the cart.
// The cart is left untouched when persistence fails.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	items := make([]Item, len(req.Items))
	lineTotals := make([]float64, len(req.Items))
	for i, in := range req.Items {
		if err := s.validateItem(i, in); err != nil {
			return nil, err
		}
		items[i] = Item{
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			UnitPrice:   decimal.NewFromFloat(in.UnitPrice).Round(2),
			LineTotal:   decimal.NewFromFloat(in.LineTotal).Round(2),
		}
		lineTotals[i] = in.LineTotal
	}

	subtotal := money.Sum(lineTotals...)
	if !money.ValidAmount(subtotal) {
		return nil, ErrSubtotalTooLarge
	}

	o := &Order{
		Reference:    s.refs.Next(),
		CustomerName: req.CustomerName,
		Address:      req.Address,
		Location:     s.geocode(ctx, req.Address),
		Subtotal:     decimal.NewFromFloat(subtotal),
		Status:       StatusPending,
		Items:        items,
	}

	if err := s.cart.ResetAfter(func() error {
		return s.create(ctx, o)
	}); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_reference", o.Reference),
		zap.Int("items", len(o.Items)),
		zap.String("subtotal", o.Subtotal.StringFixed(2)),
	)
	return o, nil
}

// create persists o, drawing a new reference while the repository reports
// a duplicate and attempts remain.
func (s *Service) create(ctx context.Context, o *Order) error {
	for attempt := 1; ; attempt++ {
		err := s.orders.Create(ctx, o)
		if !errors.Is(err, ErrDuplicateReference) || attempt >= s.cfg.ReferenceAttempts {
			return err
		}
		zctx.From(ctx).Warn("Order reference collision, regenerating",
			zap.String("order_reference", o.Reference),
			zap.Int("attempt", attempt),
		)
		o.Reference = s.refs.Next()
	}
}

func (s *Service) validateItem(i int, in ItemInput) error {
	switch {
	case !money.ValidQuantity(in.Quantity):
		return &InvalidItemError{Index: i, Reason: "quantity must be between 1 and 2147483647"}
	case !money.ValidAmount(in.UnitPrice):
		return &InvalidItemError{Index: i, Reason: "unit price must be between 0 and 99999999.99"}
	case !money.ValidAmount(in.LineTotal):
		return &InvalidItemError{Index: i, Reason: "line total must be between 0 and 99999999.99"}
	}
	if s.cfg.TrustLineTotals {
		return nil
	}
	if want := money.LineTotal(in.Quantity, in.UnitPrice); math.Abs(in.LineTotal-want) > lineTotalTolerance {
		return &InvalidItemError{
			Index:  i,
			Reason: fmt.Sprintf("line total %.2f does not match quantity × unit price %.2f", in.LineTotal, want),
		}
	}
	return nil
}

// geocode resolves the city and country. Failures are logged and yield nil.
func (s *Service) geocode(ctx context.Context, addr Address) *Location {
	if s.geocoder == nil {
		return nil
	}
	if s.cfg.GeocodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GeocodeTimeout)
		defer cancel()
	}

	loc, err := s.geocoder.Resolve(ctx, addr.City, addr.Country)
	if err != nil {
		zctx.From(ctx).Warn("Geocoding skipped",
			zap.String("city", addr.City),
			zap.String("country", addr.Country),
			zap.Error(err),
		)
		return nil
	}
	return loc
}

// GetOrder returns the order with the given reference.
func (s *Service) GetOrder(ctx context.Context, ref string) (*Order, error) {
	o, err := s.orders.FindByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

// UpdateStatus overwrites the order status with the value as submitted. No
// transition rules apply; a blank status is rejected.
func (s *Service) UpdateStatus(ctx context.Context, ref, status string) (*Order, error) {
	if strings.TrimSpace(status) == "" || utf8.RuneCountInString(status) > MaxStatusLength {
		return nil, ErrInvalidStatus
	}
	o, err := s.orders.UpdateStatus(ctx, ref, status)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	zctx.From(ctx).Info("Order status updated",
		zap.String("order_reference", ref),
		zap.String("status", status),
	)
	return o, nil
}
