package scoring

import "github.com/oppscan/oppscan/internal/config"

// marginScore maps net margin percent linearly across the four
// calibrated thresholds to their point values. Below the weak threshold
// scales from 0, above the strong threshold clamps at the cap.
func marginScore(in Input, sc config.ScoringConfig) (score, marginPercent float64) {
	if in.PriceCurrent <= 0 {
		return 0, 0
	}
	netMargin := netMarginPerUnit(in, sc)
	marginPercent = netMargin / in.PriceCurrent

	points := []struct{ threshold, value float64 }{
		{0, 0},
		{sc.MarginWeakThreshold, sc.MarginWeakPoints},
		{sc.MarginFairThreshold, sc.MarginFairPoints},
		{sc.MarginGoodThreshold, sc.MarginGoodPoints},
		{sc.MarginStrongThreshold, sc.MarginStrongPoints},
	}

	if marginPercent <= points[0].threshold {
		return 0, marginPercent
	}
	if marginPercent >= points[len(points)-1].threshold {
		return sc.MarginStrongPoints, marginPercent
	}
	for i := 1; i < len(points); i++ {
		if marginPercent <= points[i].threshold {
			lo, hi := points[i-1], points[i]
			span := hi.threshold - lo.threshold
			if span <= 0 {
				return hi.value, marginPercent
			}
			frac := (marginPercent - lo.threshold) / span
			return lo.value + frac*(hi.value-lo.value), marginPercent
		}
	}
	return sc.MarginStrongPoints, marginPercent
}
