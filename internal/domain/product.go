// Package domain holds the storage-agnostic shapes shared by every
// pipeline stage: catalog products, snapshots, events, review signals,
// scored artifacts, run records, and shortlists.
package domain

import "time"

// ProductID is the 10-character opaque marketplace identifier used as
// the catalog primary key.
type ProductID string

// Dimensions is the optional structured size/weight block for a product.
type Dimensions struct {
	LengthCM float64 `json:"length_cm,omitempty" db:"length_cm"`
	WidthCM  float64 `json:"width_cm,omitempty" db:"width_cm"`
	HeightCM float64 `json:"height_cm,omitempty" db:"height_cm"`
	WeightKG float64 `json:"weight_kg,omitempty" db:"weight_kg"`
}

// Product is the stable catalog row. It is created on first discovery
// and mutated only by catalog upsert; it is never physically deleted.
type Product struct {
	ID               ProductID  `json:"id" db:"id"`
	Title            *string    `json:"title,omitempty" db:"title"`
	Brand            string     `json:"brand" db:"brand"`
	Manufacturer     string     `json:"manufacturer" db:"manufacturer"`
	CategoryID       string     `json:"category_id" db:"category_id"`
	CategoryPath     []string   `json:"category_path" db:"category_path"`
	Dimensions       *Dimensions `json:"dimensions,omitempty" db:"dimensions"`
	Active           bool       `json:"active" db:"active"`
	TrackingPriority int        `json:"tracking_priority" db:"tracking_priority"` // 1-10
	FirstSeenAt      time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt       time.Time  `json:"last_seen_at" db:"last_seen_at"`
	LastUpdatedAt    time.Time  `json:"last_updated_at" db:"last_updated_at"`
	SoftDeleted      bool       `json:"soft_deleted" db:"soft_deleted"`
}
