package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig configures a Limiter. Zero values pick defaults;
// RequestsPerMinute <= 0 disables the token bucket.
type LimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
}

// Limiter is the single rate-limit state shared by every import worker.
// It combines a token bucket with a global pause set whenever the
// provider answers "too many requests".
type Limiter struct {
	bucket *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
	consecutive int
	base        time.Duration
	max         time.Duration

	now func() time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}

	return &Limiter{
		bucket: rate.NewLimiter(limit, cfg.Burst),
		base:   cfg.BaseBackoff,
		max:    cfg.MaxBackoff,
		now:    time.Now,
	}
}

// Wait blocks until any global pause has elapsed and a token is available.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		d := l.pausedUntil.Sub(l.now())
		l.mu.Unlock()

		if d <= 0 {
			break
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return l.bucket.Wait(ctx)
}

// Backoff records a rate-limited response and pauses all callers of Wait.
// retryAfter is the provider's hint; zero means exponential backoff from
// the configured base. The returned duration is the pause applied.
func (l *Limiter) Backoff(retryAfter time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := retryAfter
	if d <= 0 {
		d = l.base << min(l.consecutive, 16)
	}
	if d > l.max {
		d = l.max
	}
	l.consecutive++

	until := l.now().Add(d)
	if until.After(l.pausedUntil) {
		l.pausedUntil = until
	}

	return d
}

// Success resets the exponential backoff after an accepted request.
func (l *Limiter) Success() {
	l.mu.Lock()
	l.consecutive = 0
	l.mu.Unlock()
}

// PausedUntil returns the end of the current global pause.
func (l *Limiter) PausedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pausedUntil
}
