package domain

import "time"

// StockStatus enumerates the stock states a snapshot can observe.
type StockStatus string

const (
	StockInStock     StockStatus = "in_stock"
	StockLow         StockStatus = "low_stock"
	StockOut         StockStatus = "out_of_stock"
	StockBackOrdered StockStatus = "back_ordered"
	StockUnknown     StockStatus = "unknown"
)

// Fulfillment enumerates how a listing is fulfilled.
type Fulfillment string

const (
	FulfillmentFBA     Fulfillment = "fba"
	FulfillmentFBM     Fulfillment = "fbm"
	FulfillmentFirst   Fulfillment = "first_party"
	FulfillmentUnknown Fulfillment = "unknown"
)

// RatingDistribution is the five-star percentile breakdown.
type RatingDistribution struct {
	FiveStarPct  float64 `json:"five_star_pct" db:"five_star_pct"`
	FourStarPct  float64 `json:"four_star_pct" db:"four_star_pct"`
	ThreeStarPct float64 `json:"three_star_pct" db:"three_star_pct"`
	TwoStarPct   float64 `json:"two_star_pct" db:"two_star_pct"`
	OneStarPct   float64 `json:"one_star_pct" db:"one_star_pct"`
}

// Snapshot is a single append-only per-observation record. Primary key
// is (ProductID, CapturedAt); CapturedAt values for a product must form
// a strictly increasing sequence. Delta fields are computed by the
// store on insert and must never be set by callers.
type Snapshot struct {
	ProductID  ProductID `json:"product_id" db:"product_id"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`

	PriceCurrent   *float64 `json:"price_current,omitempty" db:"price_current"`
	PriceOriginal  *float64 `json:"price_original,omitempty" db:"price_original"`
	LowestNew      *float64 `json:"lowest_new,omitempty" db:"lowest_new"`
	LowestUsed     *float64 `json:"lowest_used,omitempty" db:"lowest_used"`
	Currency       string   `json:"currency" db:"currency"`
	CouponPercent  *float64 `json:"coupon_percent,omitempty" db:"coupon_percent"`
	CouponAmount   *float64 `json:"coupon_amount,omitempty" db:"coupon_amount"`

	PrimaryRank       *int    `json:"primary_rank,omitempty" db:"primary_rank"`
	PrimaryRankCat    string  `json:"primary_rank_category" db:"primary_rank_category"`
	SecondaryRank     *int    `json:"secondary_rank,omitempty" db:"secondary_rank"`
	SecondaryRankCat  string  `json:"secondary_rank_category,omitempty" db:"secondary_rank_category"`

	StockStatus    StockStatus `json:"stock_status" db:"stock_status"`
	SellerCount    *int        `json:"seller_count,omitempty" db:"seller_count"`
	Fulfillment    Fulfillment `json:"fulfillment" db:"fulfillment"`

	RatingAverage *float64            `json:"rating_average,omitempty" db:"rating_average"`
	RatingCount   *int                `json:"rating_count,omitempty" db:"rating_count"`
	ReviewCount   *int                `json:"review_count,omitempty" db:"review_count"`
	RatingDist    *RatingDistribution `json:"rating_distribution,omitempty" db:"rating_distribution"`

	// Computed deltas — set exclusively by the store's snapshot-insert
	// transaction, never by the caller.
	PriceDelta        *float64 `json:"price_delta,omitempty" db:"price_delta"`
	PriceDeltaPercent *float64 `json:"price_delta_percent,omitempty" db:"price_delta_percent"`
	RankDelta         *int     `json:"rank_delta,omitempty" db:"rank_delta"`
	RankDeltaPercent  *float64 `json:"rank_delta_percent,omitempty" db:"rank_delta_percent"`
	ReviewCountDelta  *int     `json:"review_count_delta,omitempty" db:"review_count_delta"`

	SessionID string `json:"session_id" db:"session_id"`
}

// ComputeDeltas fills in s's delta fields against prior, the immediately
// preceding snapshot for the same product (nil if this is the first
// snapshot on record). Null propagation: a delta is left nil whenever
// either side of the comparison is nil, or (for percent fields) the
// prior value is zero.
func (s *Snapshot) ComputeDeltas(prior *Snapshot) {
	if prior == nil {
		return
	}
	if s.PriceCurrent != nil && prior.PriceCurrent != nil {
		delta := *s.PriceCurrent - *prior.PriceCurrent
		s.PriceDelta = &delta
		if *prior.PriceCurrent != 0 {
			pct := 100 * delta / *prior.PriceCurrent
			s.PriceDeltaPercent = &pct
		}
	}
	if s.PrimaryRank != nil && prior.PrimaryRank != nil {
		delta := *s.PrimaryRank - *prior.PrimaryRank
		s.RankDelta = &delta
		if *prior.PrimaryRank != 0 {
			pct := 100 * float64(delta) / float64(*prior.PrimaryRank)
			s.RankDeltaPercent = &pct
		}
	}
	if s.ReviewCount != nil && prior.ReviewCount != nil {
		delta := *s.ReviewCount - *prior.ReviewCount
		s.ReviewCountDelta = &delta
	}
}
