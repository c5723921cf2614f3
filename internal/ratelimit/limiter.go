// Package ratelimit enforces a fixed-window request budget per caller.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"civigate/internal/platform/kv"
)

const keyPrefix = "ratelimit:"

var rejectedRequests = promauto.NewCounter(prometheus.CounterOpts{
	Name: "civigate_ratelimit_rejected_total",
	Help: "Requests rejected by the rate limiter",
})

// Result is the outcome of one rate-limit check. Limit, Remaining, and
// Reset are echoed as response headers regardless of the outcome.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Duration
}

// Limiter counts requests per key in fixed windows. The window starts at
// the first increment: the counter's TTL is set once, when the key is
// created, and subsequent hits ride the same window until it expires.
type Limiter struct {
	store  kv.Store
	logger *slog.Logger
	limit  int64
	window time.Duration
}

// New constructs a limiter allowing limit requests per window.
func New(store kv.Store, logger *slog.Logger, limit int64, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("kv store is required")
	}
	if limit <= 0 {
		return nil, errors.New("rate limit must be positive")
	}
	return &Limiter{store: store, logger: logger, limit: limit, window: window}, nil
}

// Check records one request for key and reports whether it is within the
// budget. A store failure fails open: availability beats strict
// enforcement.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	count, err := l.store.Increment(ctx, keyPrefix+key)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limiter store unreachable, failing open",
			"key", key,
			"error", err,
		)
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit, Reset: l.window}
	}
	if count == 1 {
		if err := l.store.Expire(ctx, keyPrefix+key, l.window); err != nil {
			l.logger.WarnContext(ctx, "failed to set rate-limit window", "key", key, "error", err)
		}
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     l.window,
	}
}
