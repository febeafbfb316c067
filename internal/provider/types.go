package provider

import "time"

// RawProduct is the provider's response shape for a single product,
// before it is folded into domain.Product / domain.Snapshot.
type RawProduct struct {
	ASIN         string   `json:"asin"`
	Title        string   `json:"title"`
	Brand        string   `json:"brand"`
	Manufacturer string   `json:"manufacturer"`
	CategoryID   string   `json:"category_id"`
	CategoryPath []string `json:"category_path"`

	Price        *float64 `json:"price"`
	Currency     string   `json:"currency"`
	PrimaryRank  *int     `json:"primary_rank"`
	SubcatRank   *int     `json:"subcategory_rank"`

	StockStatus  string `json:"stock_status"`
	Fulfillment  string `json:"fulfillment"`
	SellerCount  *int   `json:"seller_count"`

	Rating      *float64 `json:"rating"`
	ReviewCount *int     `json:"review_count"`

	LengthCM *float64 `json:"length_cm"`
	WidthCM  *float64 `json:"width_cm"`
	HeightCM *float64 `json:"height_cm"`
	WeightKG *float64 `json:"weight_kg"`

	CapturedAt time.Time `json:"captured_at"`
}

// RawReview is the provider's response shape for a single review.
type RawReview struct {
	ID          string    `json:"id"`
	ASIN        string    `json:"asin"`
	Rating      int       `json:"rating"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PostedAt    time.Time `json:"posted_at"`
	Verified    bool      `json:"verified_purchase"`
	HelpfulVote int       `json:"helpful_votes"`
}

// DiscoveryPage is one page of a category-discovery response.
type DiscoveryPage struct {
	ASINs      []string `json:"asins"`
	NextCursor string   `json:"next_cursor"`
}

// Health reports the provider client's current operating state.
type Health struct {
	Healthy         bool      `json:"healthy"`
	TokensLeft      int64     `json:"tokens_left"`
	RefillPerMinute float64   `json:"refill_per_minute"`
	LastError       string    `json:"last_error,omitempty"`
	LastCheckedAt   time.Time `json:"last_checked_at"`
	CircuitState    string    `json:"circuit_state"`
}
