package payment

import (
	"context"
	"slices"
	"sync"
	"time"
)

// LimiterConfig bounds unsuccessful payment attempts per client.
type LimiterConfig struct {
	// MaxFailures is how many declined or failed attempts a client may make
	// within Window before further attempts are refused.
	MaxFailures int
	// Window is the sliding window failures are counted over.
	Window time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Limiter refuses payment attempts from clients that recently had too many
// declined or failed ones. Approved payments are not counted. An attempt in
// flight counts as a failure until it is settled, so concurrent attempts
// cannot overshoot the limit.
type Limiter struct {
	cfg LimiterConfig

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		cfg:      cfg,
		failures: make(map[string][]time.Time),
	}
}

// Acquire reserves an attempt for key. When ok is false the client must wait
// retryAfter before its oldest counted failure leaves the window. Otherwise
// settle must be called once the outcome is known; settle(false) releases
// the reservation.
func (l *Limiter) Acquire(key string) (settle func(failed bool), retryAfter time.Duration, ok bool) {
	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.live(key, now)
	if len(recent) >= l.cfg.MaxFailures {
		return nil, recent[0].Add(l.cfg.Window).Sub(now), false
	}
	l.failures[key] = append(recent, now)

	var once sync.Once
	return func(failed bool) {
		once.Do(func() {
			if !failed {
				l.release(key, now)
			}
		})
	}, 0, true
}

// Failures returns the number of failures currently counted for key.
func (l *Limiter) Failures(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live(key, l.cfg.Now()))
}

// Prune drops clients whose failures have all left the window.
func (l *Limiter) Prune() {
	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.failures {
		l.live(key, now)
	}
}

// Run prunes every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// live trims failures older than the window and returns the rest, oldest
// first. Must be called with l.mu held.
func (l *Limiter) live(key string, now time.Time) []time.Time {
	ts := l.failures[key]
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]
	if len(ts) == 0 {
		delete(l.failures, key)
		return nil
	}
	l.failures[key] = ts
	return ts
}

func (l *Limiter) release(key string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.failures[key]
	if i := slices.IndexFunc(ts, at.Equal); i >= 0 {
		ts = slices.Delete(ts, i, i+1)
	}
	if len(ts) == 0 {
		delete(l.failures, key)
		return
	}
	l.failures[key] = ts
}
