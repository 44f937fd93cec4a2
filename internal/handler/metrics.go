package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xenking/checkout-gateway/internal/handler"

type metrics struct {
	ordersPlaced  metric.Int64Counter
	payments      metric.Int64Counter
	cartMutations metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m   metrics
		err error
	)
	if m.ordersPlaced, err = meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders persisted successfully"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if m.payments, err = meter.Int64Counter("checkout.payments.processed",
		metric.WithDescription("Payment attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "payments counter")
	}
	if m.cartMutations, err = meter.Int64Counter("checkout.cart.mutations",
		metric.WithDescription("Successful cart mutations by operation"),
	); err != nil {
		return nil, errors.Wrap(err, "cart counter")
	}
	return &m, nil
}

func (m *metrics) orderPlaced(ctx context.Context) {
	m.ordersPlaced.Add(ctx, 1)
}

func (m *metrics) paymentProcessed(ctx context.Context, outcome string) {
	m.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) cartMutated(ctx context.Context, op string) {
	m.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
