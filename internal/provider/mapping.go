package provider

import (
	"strings"
	"time"

	"github.com/oppscan/oppscan/internal/domain"
)

// ToProduct maps the provider's raw shape onto the stored Product
// aggregate. Fields the API omits are left at their zero value; the
// store's upsert writes a nil Title or Dimensions as NULL, replacing any
// earlier value.
func (r RawProduct) ToProduct() domain.Product {
	p := domain.Product{
		ID:               domain.ProductID(r.ASIN),
		Brand:            r.Brand,
		Manufacturer:     r.Manufacturer,
		CategoryID:       r.CategoryID,
		CategoryPath:     r.CategoryPath,
		Active:           true,
		TrackingPriority: 0,
		LastUpdatedAt:    time.Now().UTC(),
	}
	if r.Title != "" {
		title := r.Title
		p.Title = &title
	}
	if r.LengthCM != nil || r.WidthCM != nil || r.HeightCM != nil || r.WeightKG != nil {
		p.Dimensions = &domain.Dimensions{
			LengthCM: derefF(r.LengthCM),
			WidthCM:  derefF(r.WidthCM),
			HeightCM: derefF(r.HeightCM),
			WeightKG: derefF(r.WeightKG),
		}
	}
	return p
}

// ToSnapshot maps the provider's raw shape onto a point-in-time
// Snapshot. Its delta fields are left empty; the snapshot store's Insert
// computes them against the product's prior snapshot before writing it.
func (r RawProduct) ToSnapshot(sessionID string) domain.Snapshot {
	capturedAt := r.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	return domain.Snapshot{
		ProductID:     domain.ProductID(r.ASIN),
		CapturedAt:    capturedAt,
		PriceCurrent:  r.Price,
		Currency:      r.Currency,
		PrimaryRank:   r.PrimaryRank,
		SecondaryRank: r.SubcatRank,
		StockStatus:   mapStockStatus(r.StockStatus),
		Fulfillment:   mapFulfillment(r.Fulfillment),
		SellerCount:   r.SellerCount,
		RatingAverage: r.Rating,
		ReviewCount:   r.ReviewCount,
		SessionID:     sessionID,
	}
}

func derefF(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func mapStockStatus(s string) domain.StockStatus {
	switch strings.ToLower(s) {
	case "in_stock":
		return domain.StockInStock
	case "low_stock":
		return domain.StockLow
	case "out_of_stock":
		return domain.StockOut
	case "backordered":
		return domain.StockBackOrdered
	default:
		return domain.StockUnknown
	}
}

func mapFulfillment(s string) domain.Fulfillment {
	switch strings.ToUpper(s) {
	case "FBA":
		return domain.FulfillmentFBA
	case "FBM":
		return domain.FulfillmentFBM
	case "FIRST_PARTY", "1P":
		return domain.FulfillmentFirst
	default:
		return domain.FulfillmentUnknown
	}
}

// ToReview maps the provider's raw review shape onto the stored Review.
func (r RawReview) ToReview() domain.Review {
	return domain.Review{
		ID:               domain.ReviewID(r.ID),
		ProductID:        domain.ProductID(r.ASIN),
		Rating:           float64(r.Rating),
		Title:            r.Title,
		Body:             r.Body,
		ReviewDate:       r.PostedAt,
		VerifiedPurchase: r.Verified,
		CapturedAt:       time.Now().UTC(),
	}
}
