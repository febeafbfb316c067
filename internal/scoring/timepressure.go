package scoring

import "github.com/oppscan/oppscan/internal/domain"

// The four threshold functions below are shared by the 0-10 TimePressure
// base-score component and the 0.5-2.0 time multiplier — the spec names
// the same three factors for the component (stockout, rank acceleration,
// price volatility) and adds seller churn for the multiplier alone.

func stockoutFactor(perMonth float64) float64 {
	switch {
	case perMonth >= 3:
		return 1.5
	case perMonth >= 1:
		return 1.2
	case perMonth >= 0.5:
		return 1.0
	default:
		return 0.8
	}
}

func sellerChurnFactor(churnPercent float64) float64 {
	switch {
	case churnPercent > 30:
		return 1.4
	case churnPercent > 20:
		return 1.2
	case churnPercent > 10:
		return 1.0
	default:
		return 0.8
	}
}

func priceVolatilityFactor(volatilityPercent float64) float64 {
	switch {
	case volatilityPercent > 20:
		return 1.3
	case volatilityPercent > 10:
		return 1.1
	default:
		return 1.0
	}
}

func rankAccelerationFactor(accelerationPercent float64) float64 {
	switch {
	case accelerationPercent > 10:
		return 1.4
	case accelerationPercent > 0:
		return 1.2
	case accelerationPercent > -5:
		return 1.0
	default:
		return 0.8
	}
}

// timePressureFactors computes all four factors plus their geometric
// mean, the shape persisted on the artifact for audit.
func timePressureFactors(in Input) domain.TimePressureFactors {
	stockout := stockoutFactor(in.StockoutFrequencyPerMonth)
	churn := sellerChurnFactor(in.BuyBoxChurn30d * 100)
	volatility := priceVolatilityFactor(in.PriceVolatilityPercent30d)
	acceleration := rankAccelerationFactor(in.RankAccelerationPercent)

	return domain.TimePressureFactors{
		StockoutFactor:   stockout,
		SellerChurn:      churn,
		PriceVolatility:  volatility,
		RankAcceleration: acceleration,
		GeometricMean:    geometricMean(stockout, churn, volatility, acceleration),
	}
}

// timeMultiplier clamps the four-factor geometric mean to [0.5, 2.0].
func timeMultiplier(f domain.TimePressureFactors) float64 {
	return clamp(f.GeometricMean, 0.5, 2.0)
}

// timePressureComponentScore maps the three component-relevant factors
// (stockout, price volatility, rank acceleration — seller churn feeds
// only the multiplier) onto the 0-10 base-score cap by normalizing each
// factor's known range and averaging.
func timePressureComponentScore(f domain.TimePressureFactors) float64 {
	normStockout := (f.StockoutFactor - 0.8) / (1.5 - 0.8)
	normVolatility := (f.PriceVolatility - 1.0) / (1.3 - 1.0)
	normAcceleration := (f.RankAcceleration - 0.8) / (1.4 - 0.8)

	avg := (normStockout + normVolatility + normAcceleration) / 3
	return clamp(avg, 0, 1) * 10
}
