// Package ratelimit implements the external-API client's local
// leaky-bucket capacity: how fast this process may issue calls,
// independent of whatever refill rate the remote later reports (see
// package budget for that half of the model, per spec.md's Open
// Question on keeping the two distinct).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a single-provider token bucket: a fixed local capacity
// (burst) and a rate that budget.Tracker keeps synchronized with the
// remote's authoritative refillPerMinute on every response.
type Limiter struct {
	mu    sync.RWMutex
	inner *rate.Limiter
	burst int
}

// NewLimiter creates a limiter with the given local bucket capacity and
// an initial requests-per-second estimate.
func NewLimiter(capacity int, initialRPS float64) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(initialRPS), capacity),
		burst: capacity,
	}
}

// Wait blocks until a single call's token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	inner := l.inner
	l.mu.RUnlock()
	return inner.Wait(ctx)
}

// Allow reports whether a single-unit call may proceed immediately.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.Allow()
}

// SetRate updates the limiter's requests-per-second. Called by
// budget.Tracker whenever a response carries a fresh refillPerMinute.
func (l *Limiter) SetRate(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner.SetLimit(rate.Limit(rps))
}

// Tokens reports the current token balance, for health reporting.
func (l *Limiter) Tokens() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.Tokens()
}

// Capacity returns the configured local bucket capacity (burst size).
func (l *Limiter) Capacity() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.burst
}

// Stats is a point-in-time read of the limiter's throttling state.
type Stats struct {
	Burst           int           `json:"burst"`
	RPS             float64       `json:"rps"`
	TokensAvailable float64       `json:"tokens_available"`
	Delay           time.Duration `json:"delay"`
}

// IsThrottled reports whether the limiter is currently delaying calls.
func (s Stats) IsThrottled() bool { return s.Delay > 0 }

// Stats returns the limiter's current throttling state without
// consuming a token.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	reservation := l.inner.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	return Stats{
		Burst:           l.burst,
		RPS:             float64(l.inner.Limit()),
		TokensAvailable: l.inner.Tokens(),
		Delay:           delay,
	}
}
