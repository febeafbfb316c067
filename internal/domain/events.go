package domain

import "time"

// Direction is the sign of a detected price or rank change.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// Severity is the event-engine urgency vocabulary. Kept distinct from
// UrgencyLevel per the spec's Open Question — the two
// enumerations share a vocabulary but not a type.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// PriceEvent is emitted when |priceDeltaPercent| >= 5.
type PriceEvent struct {
	ID                int64     `json:"id" db:"id"`
	ProductID         ProductID `json:"product_id" db:"product_id"`
	DetectedAt        time.Time `json:"detected_at" db:"detected_at"`
	PriceBefore       float64   `json:"price_before" db:"price_before"`
	PriceAfter        float64   `json:"price_after" db:"price_after"`
	AbsoluteChange    float64   `json:"absolute_change" db:"absolute_change"`
	PercentChange     float64   `json:"percent_change" db:"percent_change"`
	Direction         Direction `json:"direction" db:"direction"`
	Severity          Severity  `json:"severity" db:"severity"`
	Deal              bool      `json:"deal" db:"deal"`
	SnapshotBeforeAt  time.Time `json:"snapshot_before_at" db:"snapshot_before_at"`
	SnapshotAfterAt   time.Time `json:"snapshot_after_at" db:"snapshot_after_at"`
}

// RankEvent is emitted when |rankDeltaPercent| >= 20 or |rankDelta| >= 10000.
type RankEvent struct {
	ID               int64     `json:"id" db:"id"`
	ProductID        ProductID `json:"product_id" db:"product_id"`
	DetectedAt       time.Time `json:"detected_at" db:"detected_at"`
	RankBefore       int       `json:"rank_before" db:"rank_before"`
	RankAfter        int       `json:"rank_after" db:"rank_after"`
	AbsoluteChange   int       `json:"absolute_change" db:"absolute_change"`
	PercentChange    float64   `json:"percent_change" db:"percent_change"`
	Direction        Direction `json:"direction" db:"direction"` // "up" = improving (lower rank number)
	Severity         Severity  `json:"severity" db:"severity"`
	Sustained        bool      `json:"sustained" db:"sustained"`
	SnapshotBeforeAt time.Time `json:"snapshot_before_at" db:"snapshot_before_at"`
	SnapshotAfterAt  time.Time `json:"snapshot_after_at" db:"snapshot_after_at"`
}

// StockEventKind enumerates the stock-transition classifications.
type StockEventKind string

const (
	StockEventStockout      StockEventKind = "stockout"
	StockEventRestock       StockEventKind = "restock"
	StockEventLowStockAlert StockEventKind = "low_stock_alert"
	StockEventStatusChange  StockEventKind = "status_change"
)

// StockEvent is emitted whenever statusBefore != statusAfter.
type StockEvent struct {
	ID               int64          `json:"id" db:"id"`
	ProductID        ProductID      `json:"product_id" db:"product_id"`
	DetectedAt       time.Time      `json:"detected_at" db:"detected_at"`
	StatusBefore     StockStatus    `json:"status_before" db:"status_before"`
	StatusAfter      StockStatus    `json:"status_after" db:"status_after"`
	QuantityBefore   *int           `json:"quantity_before,omitempty" db:"quantity_before"`
	QuantityAfter    *int           `json:"quantity_after,omitempty" db:"quantity_after"`
	Kind             StockEventKind `json:"kind" db:"kind"`
	Severity         Severity       `json:"severity" db:"severity"`
	StockoutStart    *time.Time     `json:"stockout_start,omitempty" db:"stockout_start"`
	StockoutHours    *float64       `json:"stockout_duration_hours,omitempty" db:"stockout_duration_hours"`
	SnapshotBeforeAt time.Time      `json:"snapshot_before_at" db:"snapshot_before_at"`
	SnapshotAfterAt  time.Time      `json:"snapshot_after_at" db:"snapshot_after_at"`
}
