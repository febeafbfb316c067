package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/oppscan/oppscan/internal/domain"
)

const freshnessKeyPrefix = "oppscan:freshness:"

// FreshnessTracker answers Phase 2's "was this product captured
// recently enough to skip re-fetching" question without a Postgres
// round trip.
type FreshnessTracker struct {
	cache     Cache
	threshold time.Duration
}

func NewFreshnessTracker(c Cache, threshold time.Duration) *FreshnessTracker {
	return &FreshnessTracker{cache: c, threshold: threshold}
}

// IsFresh reports whether id was captured within the configured
// freshness threshold. A cache miss means "not known to be fresh" —
// the caller should fetch.
func (f *FreshnessTracker) IsFresh(ctx context.Context, id domain.ProductID) bool {
	raw, ok := f.cache.Get(ctx, freshnessKeyPrefix+string(id))
	if !ok {
		return false
	}
	unixNanos, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false
	}
	capturedAt := time.Unix(0, unixNanos)
	return time.Since(capturedAt) < f.threshold
}

// MarkCaptured records that id was just fetched, with a TTL equal to
// the freshness threshold so a stale entry self-evicts.
func (f *FreshnessTracker) MarkCaptured(ctx context.Context, id domain.ProductID, capturedAt time.Time) {
	val := strconv.FormatInt(capturedAt.UnixNano(), 10)
	f.cache.Set(ctx, freshnessKeyPrefix+string(id), []byte(val), f.threshold)
}
