// Package ratelimit counts webhook deliveries per key in fixed windows. The
// in-process store is bounded and evicts expired windows; the Redis store
// shares counters between hub instances.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/franchiseos/leadhub/internal/config"
)

// Store increments the counter for key within the current window and
// returns the updated count.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter admits at most limit events per key and window.
type Limiter struct {
	store   Store
	limit   int64
	window  time.Duration
	enabled bool
	logger  *slog.Logger
}

func NewLimiter(log *slog.Logger, store Store, cfg config.RateLimitConfig) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{
		store:   store,
		limit:   cfg.Requests,
		window:  cfg.WindowDuration(),
		enabled: cfg.Enabled && store != nil && cfg.Requests > 0,
		logger:  log.With(slog.String("component", "ratelimit")),
	}
}

// Allow reports whether one more event for key fits in the window. Store
// failures admit the event.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || !l.enabled {
		return true
	}
	n, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Warn("rate limit store failed, admitting", slog.String("key", key), slog.Any("error", err))
		return true
	}
	return n <= l.limit
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}
