package scoring

// rankTierPoints buckets absolute rank into a 0-15 tier score; fewer,
// lower-numbered ranks (better sellers) score higher.
func rankTierPoints(rank *int) float64 {
	if rank == nil {
		return 0
	}
	switch {
	case *rank <= 100:
		return 15
	case *rank <= 1000:
		return 12
	case *rank <= 5000:
		return 9
	case *rank <= 20000:
		return 6
	case *rank <= 100000:
		return 3
	default:
		return 0
	}
}

// trendPoints folds 7d/30d rank trend and review-growth velocity into a
// 0-10 score. A negative rank-trend percent means the rank number is
// falling, i.e. the listing is improving — that is what earns points.
func trendPoints(in Input) float64 {
	improvement := -(0.6*in.RankTrend7dPercent + 0.4*in.RankTrend30dPercent)
	trend := clamp(improvement/2, 0, 7)
	reviewGrowth := clamp(in.ReviewsPerMonth/5, 0, 3)
	return trend + reviewGrowth
}

func velocityScore(in Input) float64 {
	return clamp(rankTierPoints(in.PrimaryRank)+trendPoints(in), 0, 25)
}
