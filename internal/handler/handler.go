// Package handler implements the checkout gateway HTTP API on top of the
// cart store, the order workflow and the payment simulator.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/checkout-gateway/internal/domain/cart"
	"github.com/xenking/checkout-gateway/internal/domain/order"
	"github.com/xenking/checkout-gateway/internal/domain/payment"
)

// CartStore is the cart API the handlers use.
type CartStore interface {
	Get() cart.Cart
	Add(productID, productName string, quantity int, unitPrice float64) (cart.Cart, error)
	Update(itemID string, quantity int) (cart.Cart, error)
	Remove(itemID string) (cart.Cart, error)
}

// PaymentProcessor processes payment attempts.
type PaymentProcessor interface {
	Process(ctx context.Context, a payment.Attempt) (*payment.Result, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MeterProvider receives the business counters. Defaults to no-op.
	MeterProvider metric.MeterProvider
	// PaymentLimiter refuses payment attempts from clients with too many
	// recent declines. Nil disables limiting.
	PaymentLimiter *payment.Limiter
}

// Handler serves the cart, order and payment endpoints.
type Handler struct {
	cart     CartStore
	orders   *order.Service
	payments PaymentProcessor
	limiter  *payment.Limiter
	metrics  *metrics
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	cartStore CartStore,
	orders *order.Service,
	payments PaymentProcessor,
) (*Handler, error) {
	mp := cfg.MeterProvider
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m, err := newMetrics(mp)
	if err != nil {
		return nil, err
	}
	return &Handler{
		cart:     cartStore,
		orders:   orders,
		payments: payments,
		limiter:  cfg.PaymentLimiter,
		metrics:  m,
	}, nil
}

// Mount registers all API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addCartItem)
	r.Put("/cart/items/{id}", h.updateCartItem)
	r.Delete("/cart/items/{id}", h.removeCartItem)

	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{orderReference}", h.getOrder)
	r.Patch("/orders/{orderReference}/status", h.updateOrderStatus)

	r.Post("/payment/process", h.processPayment)
}
