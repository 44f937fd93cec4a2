// Package health provides liveness, readiness and status-report endpoints
// backed by periodically executed checks.
//
// Each registered check runs in its own background goroutine at its own
// interval. Failure/success thresholds avoid flapping: a check must fail
// consecutively failureThreshold times before being marked unhealthy, and
// succeed successThreshold times before being marked healthy again.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CheckFunc is a health check function. It should return nil if the checked
// component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// Result is the outcome of the most recent run of a check.
type Result struct {
	Err          error
	ResponseTime time.Duration
	CheckedAt    time.Time
}

// CheckOption configures a single check.
type CheckOption func(c *checkConfig)

// WithInterval overrides the interval passed to Start for this check.
func WithInterval(d time.Duration) CheckOption {
	return func(c *checkConfig) {
		c.interval = d
	}
}

// WithThresholds sets the consecutive failure and success counts needed to
// flip the check state.
func WithThresholds(failure, success int) CheckOption {
	return func(c *checkConfig) {
		c.failureThreshold = failure
		c.successThreshold = success
	}
}

// checkConfig holds the configuration and runtime state for a single check.
//
// run() is called from exactly one goroutine, so the counters need no
// synchronization. healthy and last are read by HTTP handlers.
type checkConfig struct {
	name             string
	timeout          time.Duration
	interval         time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int
	lg               *zap.Logger
	now              func() time.Time

	healthy atomic.Bool
	last    atomic.Pointer[Result]

	consecutiveFails int
	consecutiveOK    int
}

func (c *checkConfig) isHealthy() bool {
	return c.healthy.Load()
}

func (c *checkConfig) lastResult() *Result {
	return c.last.Load()
}

// run executes the check once and updates thresholds accordingly.
// Must be called from a single goroutine.
func (c *checkConfig) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	err := c.check(checkCtx)
	res := &Result{Err: err, ResponseTime: c.now().Sub(start), CheckedAt: start}
	c.last.Store(res)

	was := c.isHealthy()
	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}

	lg := c.lg.With(zap.String("check", c.name), zap.Duration("response_time", res.ResponseTime))
	switch now := c.isHealthy(); {
	case was && !now:
		lg.Error("Health check is down", zap.Error(err))
	case !was && now:
		lg.Info("Health check recovered")
	case err != nil:
		lg.Warn("Health check failed", zap.Error(err))
	default:
		lg.Debug("Health check passed")
	}
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	lg    *zap.Logger
	now   func() time.Time
	ready atomic.Bool

	// mu protects check slices and cancel.
	mu              sync.RWMutex
	livenessChecks  []*checkConfig
	readinessChecks []*checkConfig
	cancel          context.CancelFunc
}

// New creates a new Health instance. The service starts in a not-ready state;
// call SetReady(true) once the service has finished initialization.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg, now: time.Now}
}

// AddLivenessCheck registers a liveness check: whether the process is alive
// and functioning.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	c := h.newCheck(name, timeout, check, opts)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, c)
}

// AddReadinessCheck registers a readiness check: whether the service can
// accept traffic, e.g. database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	c := h.newCheck(name, timeout, check, opts)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, c)
}

func (h *Health) newCheck(name string, timeout time.Duration, check CheckFunc, opts []CheckOption) *checkConfig {
	c := &checkConfig{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: 3,
		successThreshold: 1,
		lg:               h.lg.Named("health"),
		now:              h.now,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true) // assume healthy until proven otherwise
	return c
}

// Start begins running all registered checks in background goroutines.
// Checks without their own interval use the given one.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := h.allChecks()
	h.mu.Unlock()

	for _, c := range checks {
		every := interval
		if c.interval > 0 {
			every = c.interval
		}
		go runCheck(ctx, c, every)
	}
}

func (h *Health) allChecks() []*checkConfig {
	checks := make([]*checkConfig, 0, len(h.livenessChecks)+len(h.readinessChecks))
	checks = append(checks, h.livenessChecks...)
	return append(checks, h.readinessChecks...)
}

func runCheck(ctx context.Context, c *checkConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// SetReady manually sets the readiness state: true after initialization,
// false during graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and all readiness
// checks pass.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	checks := h.readinessChecks
	h.mu.RUnlock()

	for _, c := range checks {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

// Stop cancels all background check goroutines. It is safe to call Stop
// multiple times.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// statusResponse is the JSON response body for the liveness and readiness endpoints.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} if all liveness checks
// pass, otherwise 503 with the failing checks.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := append([]*checkConfig(nil), h.livenessChecks...)
	h.mu.RUnlock()

	writeResponse(w, collectFailures(checks))
}

// ReadyEndpoint serves /readyz: 200 if the service is marked ready and all
// readiness checks pass, otherwise 503 with details.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	checks := append([]*checkConfig(nil), h.readinessChecks...)
	h.mu.RUnlock()

	failures := collectFailures(checks)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// CheckReport describes one check in the /health report.
type CheckReport struct {
	Status         string     `json:"status"`
	ResponseTimeMs *int64     `json:"responseTimeMs,omitempty"`
	Error          string     `json:"error,omitempty"`
	CheckedAt      *time.Time `json:"checkedAt,omitempty"`
}

// Report is the /health response body.
type Report struct {
	Status      string                 `json:"status"`
	Checks      map[string]CheckReport `json:"checks"`
	LastChecked *time.Time             `json:"lastChecked"`
}

// Report builds the status of every registered check from the results of
// their latest scheduled runs.
func (h *Health) Report() Report {
	h.mu.RLock()
	checks := h.allChecks()
	h.mu.RUnlock()

	rep := Report{Status: "ok", Checks: make(map[string]CheckReport, len(checks))}
	for _, c := range checks {
		cr := CheckReport{Status: "up"}
		if !c.isHealthy() {
			cr.Status = "down"
			rep.Status = "error"
		}
		if res := c.lastResult(); res != nil {
			ms := res.ResponseTime.Milliseconds()
			at := res.CheckedAt.UTC()
			cr.ResponseTimeMs = &ms
			cr.CheckedAt = &at
			if res.Err != nil {
				cr.Error = res.Err.Error()
			}
			if rep.LastChecked == nil || at.After(*rep.LastChecked) {
				rep.LastChecked = &at
			}
		}
		rep.Checks[c.name] = cr
	}
	return rep
}

// ReportEndpoint serves /health with per-check details. It returns 503 when
// any check is down.
func (h *Health) ReportEndpoint(w http.ResponseWriter, _ *http.Request) {
	rep := h.Report()
	status := http.StatusOK
	if rep.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}

// collectFailures returns check name to error message for every unhealthy
// check, using the stored result rather than re-running the check.
func collectFailures(checks []*checkConfig) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if c.isHealthy() {
			continue
		}
		if res := c.lastResult(); res != nil && res.Err != nil {
			failures[c.name] = res.Err.Error()
		} else {
			failures[c.name] = "check is unhealthy"
		}
	}
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK

	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
