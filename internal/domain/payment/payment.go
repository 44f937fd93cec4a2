// Package payment simulates a card payment gateway.
package payment

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/xenking/checkout-gateway/internal/reference"
)

// Result messages.
const (
	MessageDeclined = "Payment declined. Please check your card details or try a different payment method."
	MessageFailed   = "Payment processing failed. Please try again."
	MessageApproved = "Payment processed successfully"
)

// declinedPrefix marks card numbers that are always declined.
const declinedPrefix = "4"

// Attempt is a single payment request. Format validation happens before
// the simulator is invoked.
type Attempt struct {
	CardNumber     string
	Expiry         string
	CVV            string
	CardholderName string
}

// Result is the gateway decision. A decline is a normal result, not an error.
type Result struct {
	Success       bool
	Message       string
	TransactionID string
}

// Config controls the simulated gateway behaviour.
type Config struct {
	// Latency is the simulated processing delay.
	Latency time.Duration
	// FailureRate is the probability in [0, 1] that an otherwise valid
	// payment fails.
	FailureRate float64
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRoll overrides the uniform [0, 1) source used for failure injection.
func WithRoll(roll func() float64) Option {
	return func(s *Simulator) { s.roll = roll }
}

// WithTransactionIDs overrides the transaction reference generator.
func WithTransactionIDs(g *reference.Generator) Option {
	return func(s *Simulator) { s.txIDs = g }
}

// Simulator is a mock payment gateway. It keeps no state between calls.
type Simulator struct {
	cfg   Config
	roll  func() float64
	txIDs *reference.Generator
}

// NewSimulator creates a Simulator.
func NewSimulator(cfg Config, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:   cfg,
		roll:  rand.Float64,
		txIDs: reference.NewGenerator(reference.PrefixTransaction),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Process waits for the configured latency and decides the outcome. The
// only error it returns is the context error when ctx ends during the wait.
func (s *Simulator) Process(ctx context.Context, a Attempt) (*Result, error) {
	if err := wait(ctx, s.cfg.Latency); err != nil {
		return nil, err
	}

	if strings.HasPrefix(StripSpaces(a.CardNumber), declinedPrefix) {
		return &Result{Message: MessageDeclined}, nil
	}
	if s.roll() < s.cfg.FailureRate {
		return &Result{Message: MessageFailed}, nil
	}
	return &Result{
		Success:       true,
		Message:       MessageApproved,
		TransactionID: s.txIDs.Next(),
	}, nil
}

// StripSpaces removes all whitespace from a card number.
func StripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
