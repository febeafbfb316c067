package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/oppscan/oppscan/internal/config"
)

// canonicalInput is the subset of Input plus config fields that fully
// determine the artifact, serialized with fixed field order so the hash
// is stable across Go struct-layout or map-ordering changes.
type canonicalInput struct {
	ProductID                   string  `json:"product_id"`
	PriceCurrent                float64 `json:"price_current"`
	WeightKG                    float64 `json:"weight_kg"`
	PrimaryRank                 int     `json:"primary_rank"`
	RankTrend7dPercent          float64 `json:"rank_trend_7d_percent"`
	RankTrend30dPercent         float64 `json:"rank_trend_30d_percent"`
	ReviewsPerMonth             float64 `json:"reviews_per_month"`
	ActiveSellerCount           int     `json:"active_seller_count"`
	SellerRotation30d           float64 `json:"seller_rotation_30d"`
	BuyBoxChurn30d              float64 `json:"buy_box_churn_30d"`
	ReviewCount                 int     `json:"review_count"`
	CategoryTop10AvgReviewCount float64 `json:"category_top10_avg_review_count"`
	OneTwoStarSharePercent      float64 `json:"one_two_star_share_percent"`
	StockoutFrequencyPerMonth   float64 `json:"stockout_frequency_per_month"`
	RankAccelerationPercent     float64 `json:"rank_acceleration_percent"`
	PriceVolatilityPercent30d   float64 `json:"price_volatility_percent_30d"`
	ImprovementScore            float64 `json:"improvement_score"`

	Scoring config.ScoringConfig `json:"scoring_config"`
}

// inputsHash is the scorer's determinism guarantee: identical Input and
// ScoringConfig always produce the identical hex digest, independent of
// scoredAt or any other wall-clock value.
func inputsHash(in Input, sc config.ScoringConfig) string {
	rank := 0
	if in.PrimaryRank != nil {
		rank = *in.PrimaryRank
	}
	improvement := 0.0
	if in.ImprovementScore != nil {
		improvement = *in.ImprovementScore
	}

	c := canonicalInput{
		ProductID:                   string(in.ProductID),
		PriceCurrent:                in.PriceCurrent,
		WeightKG:                    in.WeightKG,
		PrimaryRank:                 rank,
		RankTrend7dPercent:          in.RankTrend7dPercent,
		RankTrend30dPercent:         in.RankTrend30dPercent,
		ReviewsPerMonth:             in.ReviewsPerMonth,
		ActiveSellerCount:           in.ActiveSellerCount,
		SellerRotation30d:           in.SellerRotation30d,
		BuyBoxChurn30d:              in.BuyBoxChurn30d,
		ReviewCount:                 in.ReviewCount,
		CategoryTop10AvgReviewCount: in.CategoryTop10AvgReviewCount,
		OneTwoStarSharePercent:      in.OneTwoStarSharePercent,
		StockoutFrequencyPerMonth:   in.StockoutFrequencyPerMonth,
		RankAccelerationPercent:     in.RankAccelerationPercent,
		PriceVolatilityPercent30d:   in.PriceVolatilityPercent30d,
		ImprovementScore:            improvement,
		Scoring:                     sc,
	}

	// json.Marshal of a struct walks fields in declaration order, which
	// is fixed — no map-ordering nondeterminism to guard against here.
	payload, err := json.Marshal(c)
	if err != nil {
		payload = []byte(string(in.ProductID))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
