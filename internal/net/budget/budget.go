// Package budget tracks the remote's authoritative call budget: the
// periodic allowance the provider actually enforces, as distinct from
// the local leaky-bucket capacity in package ratelimit. A run consults
// both before every call; the two are never merged into one type,
// since one is a local ceiling this process imposes on itself and the
// other is a fact reported back by the remote on each response.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBudgetExhausted is returned when the period's budget is spent.
var ErrBudgetExhausted = errors.New("period budget exhausted")

// ErrBudgetWarning is returned when usage has crossed the warn threshold.
var ErrBudgetWarning = errors.New("budget warning threshold exceeded")

// ExhaustedError carries the detail behind ErrBudgetExhausted.
type ExhaustedError struct {
	Used  int64
	Limit int64
	ETA   time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted: %d/%d used, resets at %s",
		e.Used, e.Limit, e.ETA.Format("15:04 UTC"))
}

func (e *ExhaustedError) Unwrap() error { return ErrBudgetExhausted }

// WarningError carries the detail behind ErrBudgetWarning.
type WarningError struct {
	Used      int64
	Limit     int64
	Threshold float64
}

func (e *WarningError) Error() string {
	util := float64(e.Used) / float64(e.Limit) * 100
	return fmt.Sprintf("budget warning: %.1f%% used (%d/%d), threshold %.1f%%",
		util, e.Used, e.Limit, e.Threshold*100)
}

func (e *WarningError) Unwrap() error { return ErrBudgetWarning }

// Tracker tracks the provider's reported call budget over a rolling
// period, and keeps a ratelimit.Limiter synchronized whenever the
// provider reports a fresh refillPerMinute.
type Tracker struct {
	mu            sync.RWMutex
	limit         int64
	used          int64
	resetHour     int
	warnThreshold float64
	lastReset     time.Time
	refillPerMin  float64
	syncFn        func(rps float64)
}

// NewTracker creates a tracker for a budget that resets daily at
// resetHour UTC, warning once usage crosses warnThreshold (0,1].
func NewTracker(limit int64, resetHour int, warnThreshold float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnThreshold <= 0 || warnThreshold > 1 {
		warnThreshold = 0.8
	}
	now := time.Now().UTC()
	return &Tracker{
		limit:         limit,
		resetHour:     resetHour,
		warnThreshold: warnThreshold,
		lastReset:     lastResetBefore(now, resetHour),
	}
}

// BindLimiter registers a callback invoked whenever SyncFromResponse
// observes a new refillPerMinute, so the local ratelimit.Limiter's rate
// can track the remote's reported allowance.
func (t *Tracker) BindLimiter(setRate func(rps float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncFn = setRate
}

func lastResetBefore(now time.Time, resetHour int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Hour() >= resetHour {
		return today
	}
	return today.AddDate(0, 0, -1)
}

func (t *Tracker) nextReset() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastReset.Add(24 * time.Hour)
}

func (t *Tracker) resetIfDue() {
	now := time.Now().UTC()
	if now.Before(t.nextReset()) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.After(t.lastReset.Add(24 * time.Hour)) {
		atomic.StoreInt64(&t.used, 0)
		t.lastReset = lastResetBefore(now, t.resetHour)
	}
}

// Allow reports whether the budget currently permits another call,
// without consuming one.
func (t *Tracker) Allow() error {
	t.resetIfDue()
	used := atomic.LoadInt64(&t.used)
	if used >= t.limit {
		return &ExhaustedError{Used: used, Limit: t.limit, ETA: t.nextReset()}
	}
	if util := float64(used) / float64(t.limit); util >= t.warnThreshold {
		return &WarningError{Used: used, Limit: t.limit, Threshold: t.warnThreshold}
	}
	return nil
}

// Consume records units of usage, rejecting them if they would exceed the budget.
func (t *Tracker) Consume(units int64) error {
	t.resetIfDue()
	used := atomic.AddInt64(&t.used, units)
	if used > t.limit {
		atomic.AddInt64(&t.used, -units)
		return &ExhaustedError{Used: used - units, Limit: t.limit, ETA: t.nextReset()}
	}
	if util := float64(used) / float64(t.limit); util >= t.warnThreshold {
		return &WarningError{Used: used, Limit: t.limit, Threshold: t.warnThreshold}
	}
	return nil
}

// SyncFromResponse folds the provider's self-reported remaining budget
// and refill rate into the tracker, and pushes the refill rate through
// to any bound limiter. tokensLeft overrides the local usage counter
// directly — the remote's count is authoritative.
func (t *Tracker) SyncFromResponse(tokensLeft int64, refillPerMinute float64) {
	t.mu.Lock()
	if tokensLeft >= 0 {
		used := t.limit - tokensLeft
		if used < 0 {
			used = 0
		}
		atomic.StoreInt64(&t.used, used)
	}
	t.refillPerMin = refillPerMinute
	syncFn := t.syncFn
	t.mu.Unlock()

	if syncFn != nil && refillPerMinute > 0 {
		syncFn(refillPerMinute / 60.0)
	}
}

// Stats is a point-in-time snapshot of the tracker's state.
type Stats struct {
	Limit           int64     `json:"limit"`
	Used            int64     `json:"used"`
	Remaining       int64     `json:"remaining"`
	UtilizationRate float64   `json:"utilization_rate"`
	RefillPerMinute float64   `json:"refill_per_minute"`
	LastReset       time.Time `json:"last_reset"`
	NextReset       time.Time `json:"next_reset"`
	IsWarning       bool      `json:"is_warning"`
	IsExhausted     bool      `json:"is_exhausted"`
}

// TimeToReset is the duration remaining until the next period boundary.
func (s Stats) TimeToReset() time.Duration { return time.Until(s.NextReset) }

// Stats returns the tracker's current state.
func (t *Tracker) Stats() Stats {
	t.resetIfDue()
	t.mu.RLock()
	defer t.mu.RUnlock()

	used := atomic.LoadInt64(&t.used)
	util := float64(used) / float64(t.limit)
	return Stats{
		Limit:           t.limit,
		Used:            used,
		Remaining:       t.limit - used,
		UtilizationRate: util,
		RefillPerMinute: t.refillPerMin,
		LastReset:       t.lastReset,
		NextReset:       t.lastReset.Add(24 * time.Hour),
		IsWarning:       util >= t.warnThreshold,
		IsExhausted:     used >= t.limit,
	}
}

// Reset manually clears the usage counter, used by tests and by
// operator intervention.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	atomic.StoreInt64(&t.used, 0)
	t.lastReset = time.Now().UTC()
}

// SetLimit updates the period's budget ceiling.
func (t *Tracker) SetLimit(limit int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
}
