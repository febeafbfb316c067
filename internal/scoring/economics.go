package scoring

import (
	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
)

// fulfillmentFeeTable is a coarse, weight-tiered flat fee schedule
// standing in for a marketplace's real fulfilment fee card. Unknown
// weight (0) selects the smallest tier rather than erroring — margin
// math degrades gracefully instead of rejecting the product outright.
func fulfillmentFeeTable(weightKG float64) float64 {
	switch {
	case weightKG <= 0.5:
		return 3.50
	case weightKG <= 1.0:
		return 4.50
	case weightKG <= 2.0:
		return 6.00
	case weightKG <= 5.0:
		return 9.00
	default:
		return 14.00
	}
}

// netMarginPerUnit returns the per-unit dollar margin after cost of
// goods, fulfilment, referral, PPC, and returns are deducted.
func netMarginPerUnit(in Input, sc config.ScoringConfig) float64 {
	cogs := in.PriceCurrent * sc.CostOfGoodsPercent
	fulfilment := fulfillmentFeeTable(in.WeightKG)
	referral := in.PriceCurrent * sc.ReferralFeePercent
	ppc := in.PriceCurrent * sc.PPCPercent
	returns := in.PriceCurrent * sc.ReturnRatePercent
	return in.PriceCurrent - cogs - fulfilment - referral - ppc - returns
}

// monthlyUnitsFromRank is a coarse BSR-to-velocity heuristic: absolute
// category rank buckets map to an assumed monthly unit volume. It is
// deliberately conservative — the scorer only needs an order-of-magnitude
// estimate to turn a per-unit margin into a monthly dollar figure.
func monthlyUnitsFromRank(rank *int) float64 {
	if rank == nil {
		return 10
	}
	switch {
	case *rank <= 100:
		return 1000
	case *rank <= 1000:
		return 300
	case *rank <= 5000:
		return 100
	case *rank <= 20000:
		return 30
	case *rank <= 100000:
		return 8
	default:
		return 2
	}
}

// computeEconomics derives the scorer's dollar figures. windowMultiplier
// and improvementScore are folded in last, per the spec's rank-score
// formula — improvement is a bonus, never a base-score input.
func computeEconomics(in Input, sc config.ScoringConfig, windowMultiplier float64) domain.EconomicEstimate {
	netMargin := netMarginPerUnit(in, sc)
	monthlyUnits := monthlyUnitsFromRank(in.PrimaryRank)

	monthlyProfit := netMargin * monthlyUnits
	annualValue := 12 * monthlyProfit
	riskAdjusted := 0.7 * annualValue
	rankScore := riskAdjusted * windowMultiplier

	if in.ImprovementScore != nil {
		rankScore += *in.ImprovementScore * 0.2 * riskAdjusted
	}

	return domain.EconomicEstimate{
		MonthlyProfit:     monthlyProfit,
		AnnualValue:       annualValue,
		RiskAdjustedValue: riskAdjusted,
		RankScore:         rankScore,
	}
}
