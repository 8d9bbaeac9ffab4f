// Package ratelimit provides a process-local request gate for outbound
// oracle calls: a rolling-window budget plus a minimum spacing between
// consecutive requests.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/polycross/relaybot/internal/domain"
)

// Limiter implements domain.RateLimiter in process memory. The default
// configuration matches the oracle budget: 60 requests per rolling 60
// seconds with at least 1.1s between consecutive requests. Wait blocks
// until a slot is available; the wait is bounded by the window length and
// honours context cancellation.
type Limiter struct {
	limit      int
	window     time.Duration
	minSpacing time.Duration

	mu    sync.Mutex
	calls map[string][]time.Time
	last  map[string]time.Time

	now func() time.Time
}

// New creates a Limiter with the given rolling-window budget and minimum
// inter-request spacing. Non-positive arguments fall back to the oracle
// defaults (60 requests / 60s / 1.1s).
func New(limit int, window, minSpacing time.Duration) *Limiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if minSpacing <= 0 {
		minSpacing = 1100 * time.Millisecond
	}
	return &Limiter{
		limit:      limit,
		window:     window,
		minSpacing: minSpacing,
		calls:      make(map[string][]time.Time),
		last:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// Allow is a non-blocking probe against an explicit budget. When it returns
// true the request has been counted; the configured minimum spacing still
// applies.
func (l *Limiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(key, now, window)

	if len(l.calls[key]) >= limit {
		return false, nil
	}
	if last, ok := l.last[key]; ok && now.Sub(last) < l.minSpacing {
		return false, nil
	}

	l.recordLocked(key, now)
	return true, nil
}

// Wait blocks until the configured budget admits a request for key, then
// counts it. It returns early with the context error if ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		delay, ok := l.reserve(key)
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ratelimit: wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// reserve either counts a request immediately (ok=true) or returns how long
// the caller should sleep before trying again.
func (l *Limiter) reserve(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(key, now, l.window)

	var delay time.Duration
	if last, ok := l.last[key]; ok {
		if d := l.minSpacing - now.Sub(last); d > delay {
			delay = d
		}
	}
	if calls := l.calls[key]; len(calls) >= l.limit {
		if d := calls[0].Add(l.window).Sub(now); d > delay {
			delay = d
		}
	}

	if delay <= 0 {
		l.recordLocked(key, now)
		return 0, true
	}
	return delay, false
}

// pruneLocked drops timestamps that have left the rolling window.
func (l *Limiter) pruneLocked(key string, now time.Time, window time.Duration) {
	calls := l.calls[key]
	cutoff := now.Add(-window)
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls[key] = append([]time.Time(nil), calls[i:]...)
	}
}

func (l *Limiter) recordLocked(key string, now time.Time) {
	l.calls[key] = append(l.calls[key], now)
	l.last[key] = now
}

// Compile-time interface check.
var _ domain.RateLimiter = (*Limiter)(nil)
