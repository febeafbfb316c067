package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/scoring"
	"github.com/oppscan/oppscan/internal/store"
)

// categoryBaselineWindow is how far back phaseScoring looks for a
// product's snapshot history and recent events. The category top-10
// baseline does not use it; that baseline reads each peer's latest
// snapshot.
const categoryBaselineWindow = 30 * 24 * time.Hour

// categoryBaselines memoizes CategoryTop10AvgReviewCount per category
// for the lifetime of a single run; it is not shared across runs.
type categoryBaselines struct {
	store  store.ProductRepo
	snaps  store.SnapshotRepo
	cached map[string]float64
}

func newCategoryBaselines(products store.ProductRepo, snaps store.SnapshotRepo) *categoryBaselines {
	return &categoryBaselines{store: products, snaps: snaps, cached: make(map[string]float64)}
}

func (c *categoryBaselines) top10AvgReviewCount(ctx context.Context, categoryID string) float64 {
	if v, ok := c.cached[categoryID]; ok {
		return v
	}
	peers, err := c.store.ListActive(ctx, categoryID)
	if err != nil {
		log.Error().Err(err).Str("category_id", categoryID).Msg("aggregate: list category peers failed")
		c.cached[categoryID] = 0
		return 0
	}
	var counts []int
	for _, p := range peers {
		latest, err := c.snaps.Latest(ctx, p.ID)
		if err != nil || latest == nil || latest.ReviewCount == nil {
			continue
		}
		counts = append(counts, *latest.ReviewCount)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))
	if len(counts) > 10 {
		counts = counts[:10]
	}
	avg := 0.0
	if len(counts) > 0 {
		sum := 0
		for _, n := range counts {
			sum += n
		}
		avg = float64(sum) / float64(len(counts))
	}
	c.cached[categoryID] = avg
	return avg
}

// buildScoringInput assembles a scoring.Input for one product from its
// current snapshot, recent history, recent events, the category
// baseline, and (when ready) its improvement profile. History and
// events windows both look back 30 days, matching the trend and
// time-pressure factors' own documented windows.
func buildScoringInput(ctx context.Context, runID string, product domain.Product, latest domain.Snapshot, history []domain.Snapshot, priceEvents []domain.PriceEvent, stockEvents []domain.StockEvent, categoryAvgReviewCount float64, profile *domain.ImprovementProfile) scoring.Input {
	in := scoring.Input{
		ProductID: product.ID,
		RunID:     runID,
		PriceCurrent: derefFloat(latest.PriceCurrent),
		WeightKG:     0,
		PrimaryRank:  latest.PrimaryRank,
		ActiveSellerCount: derefInt(latest.SellerCount, 1),
		ReviewCount:                 derefInt(latest.ReviewCount, 0),
		CategoryTop10AvgReviewCount: categoryAvgReviewCount,
		ReviewRating:                derefFloat(latest.RatingAverage),
	}
	if product.Dimensions != nil {
		in.WeightKG = product.Dimensions.WeightKG
	}

	trend7, trend30 := rankTrends(latest, history)
	in.RankTrend7dPercent = trend7
	in.RankTrend30dPercent = trend30
	in.RankAccelerationPercent = trend30 - trend7

	in.ReviewsPerMonth = reviewVelocity(latest, history)
	in.PriceVolatilityPercent30d = priceVolatility(history)
	in.OneTwoStarSharePercent = oneTwoStarShare(latest)
	in.StockoutFrequencyPerMonth = stockoutFrequency(stockEvents)
	in.SellerRotation30d, in.BuyBoxChurn30d = sellerChurn(history)

	if profile != nil && profile.ReviewsReady {
		score := profile.ImprovementScore
		in.ImprovementScore = &score
	}
	return in
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefInt(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

// rankTrends returns the percent change in PrimaryRank over the last 7
// and 30 days. Negative means the rank number improved (went down).
// Missing endpoints yield 0 — a neutral trend, not a penalty.
func rankTrends(latest domain.Snapshot, history []domain.Snapshot) (trend7, trend30 float64) {
	rank7 := rankAt(history, latest.CapturedAt.Add(-7*24*time.Hour))
	rank30 := rankAt(history, latest.CapturedAt.Add(-30*24*time.Hour))
	if latest.PrimaryRank != nil {
		if rank7 != nil {
			trend7 = percentChange(float64(*rank7), float64(*latest.PrimaryRank))
		}
		if rank30 != nil {
			trend30 = percentChange(float64(*rank30), float64(*latest.PrimaryRank))
		}
	}
	return trend7, trend30
}

// rankAt returns the PrimaryRank of the snapshot closest to but not
// after cutoff, or nil if history doesn't reach back that far.
func rankAt(history []domain.Snapshot, cutoff time.Time) *int {
	var best *domain.Snapshot
	for i := range history {
		s := &history[i]
		if s.CapturedAt.After(cutoff) {
			continue
		}
		if best == nil || s.CapturedAt.After(best.CapturedAt) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	return best.PrimaryRank
}

func percentChange(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return 100 * (after - before) / before
}

// reviewVelocity approximates reviews/month from the review-count delta
// over the oldest-to-newest span of the 30-day history window.
func reviewVelocity(latest domain.Snapshot, history []domain.Snapshot) float64 {
	if len(history) == 0 || latest.ReviewCount == nil {
		return 0
	}
	oldest := history[0]
	for _, s := range history {
		if s.CapturedAt.Before(oldest.CapturedAt) {
			oldest = s
		}
	}
	if oldest.ReviewCount == nil {
		return 0
	}
	days := latest.CapturedAt.Sub(oldest.CapturedAt).Hours() / 24
	if days < 1 {
		return 0
	}
	delta := float64(*latest.ReviewCount - *oldest.ReviewCount)
	return delta / days * 30
}

// priceVolatility is the 30-day price range as a percent of the mean
// price, the cheapest volatility proxy that needs no distributional
// assumptions.
func priceVolatility(history []domain.Snapshot) float64 {
	var prices []float64
	for _, s := range history {
		if s.PriceCurrent != nil {
			prices = append(prices, *s.PriceCurrent)
		}
	}
	if len(prices) < 2 {
		return 0
	}
	min, max, sum := prices[0], prices[0], 0.0
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean == 0 {
		return 0
	}
	return 100 * (max - min) / mean
}

func oneTwoStarShare(latest domain.Snapshot) float64 {
	if latest.RatingDist == nil {
		return 0
	}
	return latest.RatingDist.OneStarPct + latest.RatingDist.TwoStarPct
}

func stockoutFrequency(stockEvents []domain.StockEvent) float64 {
	count := 0
	for _, e := range stockEvents {
		if e.Kind == domain.StockEventStockout {
			count++
		}
	}
	return float64(count)
}

// sellerChurn proxies seller rotation and buy-box churn from
// consecutive seller-count swings — the provider payload carries no
// distinct buy-box-holder field, so both factors share this one signal.
func sellerChurn(history []domain.Snapshot) (rotation, buyBox float64) {
	sorted := append([]domain.Snapshot(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CapturedAt.Before(sorted[j].CapturedAt) })

	var swings int
	var prev *int
	for i := range sorted {
		sc := sorted[i].SellerCount
		if sc == nil {
			continue
		}
		if prev != nil && *sc != *prev {
			swings++
		}
		prev = sc
	}
	if len(sorted) < 2 {
		return 0, 0
	}
	ratio := float64(swings) / float64(len(sorted)-1)
	if ratio > 1 {
		ratio = 1
	}
	return ratio, ratio
}
