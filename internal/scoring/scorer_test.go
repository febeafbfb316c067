package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
)

func testConfig() config.ScoringConfig {
	return config.Default().Scoring
}

func rankPtr(v int) *int { return &v }

func strongInput() Input {
	return Input{
		ProductID:                   "B0TEST0001",
		RunID:                       "run1",
		PriceCurrent:                40,
		WeightKG:                    0.4,
		PrimaryRank:                 rankPtr(50),
		RankTrend7dPercent:          -10,
		RankTrend30dPercent:         -15,
		ReviewsPerMonth:             8,
		ActiveSellerCount:           1,
		SellerRotation30d:           0.6,
		BuyBoxChurn30d:              0.5,
		ReviewCount:                 40,
		CategoryTop10AvgReviewCount: 4000,
		OneTwoStarSharePercent:      30,
		StockoutFrequencyPerMonth:   3,
		RankAccelerationPercent:     15,
		PriceVolatilityPercent30d:   25,
		ReviewRating:                4.1,
	}
}

func TestScore_StrongInputProducesHighFinalScore(t *testing.T) {
	s := NewScorer(testConfig())
	artifact := s.Score(strongInput(), time.Now())

	require.False(t, artifact.Rejected)
	assert.Greater(t, artifact.FinalScore, 50)
	assert.GreaterOrEqual(t, artifact.TimeMultiplier, 0.5)
	assert.LessOrEqual(t, artifact.TimeMultiplier, 2.0)
	assert.NotEmpty(t, artifact.InputsHash)
	assert.NotEmpty(t, artifact.Thesis)
}

func TestScore_HardGateRejectsNoWindow(t *testing.T) {
	in := strongInput()
	in.StockoutFrequencyPerMonth = 0
	in.RankAccelerationPercent = -20
	in.PriceVolatilityPercent30d = 0

	s := NewScorer(testConfig())
	artifact := s.Score(in, time.Now())

	assert.True(t, artifact.Rejected)
	assert.Equal(t, domain.RejectNoWindow, artifact.RejectReason)
	assert.Zero(t, artifact.FinalScore)
}

func TestScore_ComponentCapsNeverExceeded(t *testing.T) {
	in := strongInput()
	in.ReviewsPerMonth = 1000
	in.RankTrend7dPercent = -1000
	in.ActiveSellerCount = 0
	in.OneTwoStarSharePercent = 1000

	s := NewScorer(testConfig())
	artifact := s.Score(in, time.Now())

	assert.LessOrEqual(t, artifact.Components.Margin.Score, 30.0)
	assert.LessOrEqual(t, artifact.Components.Velocity.Score, 25.0)
	assert.LessOrEqual(t, artifact.Components.Competition.Score, 20.0)
	assert.LessOrEqual(t, artifact.Components.Gap.Score, 15.0)
	assert.LessOrEqual(t, artifact.Components.TimePressure.Score, 10.0)
	assert.LessOrEqual(t, artifact.FinalScore, 100)
}

func TestScore_Deterministic(t *testing.T) {
	in := strongInput()
	s := NewScorer(testConfig())
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a1 := s.Score(in, at)
	a2 := s.Score(in, at)

	assert.Equal(t, a1.InputsHash, a2.InputsHash)
	assert.Equal(t, a1.FinalScore, a2.FinalScore)
	assert.Equal(t, a1.Components, a2.Components)
	assert.Equal(t, a1.Economics, a2.Economics)
}

func TestScore_HashChangesWithInput(t *testing.T) {
	a := strongInput()
	b := strongInput()
	b.PriceCurrent = 41

	h1 := inputsHash(a, testConfig())
	h2 := inputsHash(b, testConfig())
	assert.NotEqual(t, h1, h2)
}

func TestScore_ImprovementScoreOnlyAffectsRankScore(t *testing.T) {
	s := NewScorer(testConfig())
	in := strongInput()
	without := s.Score(in, time.Now())

	bonus := 0.8
	in.ImprovementScore = &bonus
	with := s.Score(in, time.Now())

	assert.Equal(t, without.BaseScore, with.BaseScore)
	assert.Equal(t, without.FinalScore, with.FinalScore)
	assert.Greater(t, with.Economics.RankScore, without.Economics.RankScore)
}

func TestWindowClassify_Buckets(t *testing.T) {
	cases := []struct {
		days  int
		label domain.WindowLabel
	}{
		{10, domain.WindowCritical},
		{20, domain.WindowUrgent},
		{45, domain.WindowActive},
		{75, domain.WindowStandard},
		{120, domain.WindowExtended},
	}
	for _, c := range cases {
		label, _ := windowClassify(c.days)
		assert.Equal(t, c.label, label, "days=%d", c.days)
	}
}

func TestTimeMultiplier_ClampedRange(t *testing.T) {
	f := domain.TimePressureFactors{StockoutFactor: 1.5, SellerChurn: 1.4, PriceVolatility: 1.3, RankAcceleration: 1.4, GeometricMean: 1.4}
	assert.LessOrEqual(t, timeMultiplier(f), 2.0)

	f2 := domain.TimePressureFactors{StockoutFactor: 0.8, SellerChurn: 0.8, PriceVolatility: 1.0, RankAcceleration: 0.8, GeometricMean: 0.8}
	assert.GreaterOrEqual(t, timeMultiplier(f2), 0.5)
}

func TestMarginScore_InterpolatesBetweenThresholds(t *testing.T) {
	sc := testConfig()
	in := strongInput()
	// margin% = (40 - 14 - 3.5 - 6 - 3.2 - 2) / 40 = 11.3/40 ≈ 28.25%, between fair and good.
	score, pct := marginScore(in, sc)
	assert.InDelta(t, 0.2825, pct, 0.01)
	assert.Greater(t, score, sc.MarginFairPoints)
	assert.Less(t, score, sc.MarginGoodPoints)
}

func TestMarginScore_ZeroAtNonPositiveMargin(t *testing.T) {
	sc := testConfig()
	in := strongInput()
	in.PriceCurrent = 10
	sc.CostOfGoodsPercent = 0.9 // forces a negative margin
	score, _ := marginScore(in, sc)
	assert.Equal(t, 0.0, score)
}
