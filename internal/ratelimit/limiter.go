// Package ratelimit implements sliding-window admission control keyed by caller identity.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/kiranshivaraju/analyzr/internal/cache"
)

const (
	defaultWindow = time.Minute
	defaultMax    = 100
)

// CounterStore atomically trims, records, counts and expires the hits for key.
type CounterStore interface {
	SlidingWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
	// Degraded is set when the counter store failed and the request was admitted anyway.
	Degraded bool
}

// RetryAfterSeconds is the Retry-After header value for a rejected request.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// ResetUnix is the X-RateLimit-Reset header value: Reset in Unix seconds,
// rounded up so it is never earlier than Reset.
func (d Decision) ResetUnix() int64 {
	secs := d.Reset.Unix()
	if d.Reset.Nanosecond() > 0 {
		secs++
	}
	return secs
}

// Limiter decides admission for one identity at a time using a shared counter store.
type Limiter struct {
	store  CounterStore
	window time.Duration
	max    int
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a Limiter admitting at most max requests per window per identity.
func New(store CounterStore, window time.Duration, max int, opts ...Option) *Limiter {
	if window <= 0 {
		window = defaultWindow
	}
	if max <= 0 {
		max = defaultMax
	}
	l := &Limiter{
		store:  store,
		window: window,
		max:    max,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the configured request ceiling per window.
func (l *Limiter) Max() int {
	return l.max
}

// Check records the request for identity and returns the admission decision.
// Counter store failures admit the request and set Decision.Degraded.
func (l *Limiter) Check(ctx context.Context, identity string) Decision {
	now := l.now()
	windowStart := now.Add(-l.window)
	reset := windowStart.Add(l.window)

	count, err := l.store.SlidingWindow(ctx, cache.RateLimitKey(identity), now, l.window)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, admitting request",
			"identity", identity, "error", err)
		return Decision{
			Allowed:   true,
			Limit:     l.max,
			Remaining: l.max,
			Reset:     reset,
			Degraded:  true,
		}
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		Reset:     reset,
	}
	if !d.Allowed {
		d.RetryAfter = l.window
	}
	return d
}
