// Package geocode resolves shipping addresses to coordinates using the
// Google Maps Geocoding API. Lookups are best-effort: every failure is
// reported as an error for the caller to discard.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/order"
)

// DefaultBaseURL is the Google Maps Geocoding API endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

const maxResponseSize = 1 << 20

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("geocoding API key is not configured")
	// ErrEmptyQuery is returned when both city and country are empty.
	ErrEmptyQuery = errors.New("city and country are empty")
	// ErrNoResult is returned when the upstream found nothing.
	ErrNoResult = errors.New("no geocoding result")
)

var _ order.Geocoder = (*Client)(nil)

// HTTPStatusError reports a non-2xx upstream response.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("geocoding API returned HTTP %d", e.Code)
}

// APIStatusError reports a non-OK "status" field in the upstream body.
type APIStatusError struct {
	Status string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("geocoding API returned status %s", e.Status)
}

// Config configures the Client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single upstream request.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive upstream failures that
	// opens the circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// Client is a Google Maps geocoding client guarded by a circuit breaker.
type Client struct {
	cfg     Config
	lg      *zap.Logger
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*order.Location]
}

// New creates a Client.
func New(lg *zap.Logger, cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	c := &Client{
		cfg: cfg,
		lg:  lg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*order.Location](gobreaker.Settings{
		Name:        "geocode",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// An address without a match says nothing about upstream health.
			return err == nil || errors.Is(err, ErrNoResult)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return c
}

// Resolve looks up "<city>, <country>". Street-level detail is not sent.
func (c *Client) Resolve(ctx context.Context, city, country string) (*order.Location, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	query := Query(city, country)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	loc, err := c.breaker.Execute(func() (*order.Location, error) {
		return c.lookup(ctx, query)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "geocode %q", query)
	}
	return loc, nil
}

// Query joins the trimmed, non-empty city and country with ", ".
func Query(city, country string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{city, country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (c *Client) lookup(ctx context.Context, query string) (*order.Location, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	q := u.Query()
	q.Set("address", query)
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return decodeResponse(body)
}
