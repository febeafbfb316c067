// Package events turns a pair of consecutive snapshots into the
// price/rank/stock event rows the orchestrator persists and the
// shortlist ranker reads signals from. It holds no state of its own —
// every method is a pure function of the before/after snapshots,
// mirroring the stateless gate-evaluation style of the momentum
// pipeline's scoring helpers.
package events

import (
	"math"

	"github.com/oppscan/oppscan/internal/domain"
)

// Detector evaluates the fixed thresholds that decide whether a
// snapshot transition is event-worthy. It carries no configuration;
// the thresholds are invariants of the detection model, not tunables.
type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// DetectPrice returns a PriceEvent when before/after cross the 5%
// price-change threshold. Returns nil when either snapshot is missing
// a price, or the change is too small.
func (d *Detector) DetectPrice(before, after domain.Snapshot) *domain.PriceEvent {
	if after.PriceDeltaPercent == nil || before.PriceCurrent == nil || after.PriceCurrent == nil {
		return nil
	}
	pct := *after.PriceDeltaPercent
	if math.Abs(pct) < 5 {
		return nil
	}

	direction := domain.DirectionStable
	if pct > 0 {
		direction = domain.DirectionUp
	} else if pct < 0 {
		direction = domain.DirectionDown
	}

	return &domain.PriceEvent{
		ProductID:        after.ProductID,
		DetectedAt:       after.CapturedAt,
		PriceBefore:      *before.PriceCurrent,
		PriceAfter:       *after.PriceCurrent,
		AbsoluteChange:   derefOr(after.PriceDelta),
		PercentChange:    pct,
		Direction:        direction,
		Severity:         priceSeverity(pct),
		Deal:             pct <= -15,
		SnapshotBeforeAt: before.CapturedAt,
		SnapshotAfterAt:  after.CapturedAt,
	}
}

func priceSeverity(pct float64) domain.Severity {
	abs := math.Abs(pct)
	switch {
	case abs >= 25:
		return domain.SeverityCritical
	case abs >= 15:
		return domain.SeverityHigh
	case abs >= 10:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// DetectRank returns a RankEvent when before/after cross the 20%-or-
// 10000-unit rank-change threshold. A negative rank delta improves
// standing (lower rank number is better).
func (d *Detector) DetectRank(before, after domain.Snapshot) *domain.RankEvent {
	if after.RankDeltaPercent == nil || before.PrimaryRank == nil || after.PrimaryRank == nil || after.RankDelta == nil {
		return nil
	}
	pct := *after.RankDeltaPercent
	delta := *after.RankDelta
	if math.Abs(pct) < 20 && abs(delta) < 10000 {
		return nil
	}

	improving := delta < 0
	direction := domain.DirectionDown
	if improving {
		direction = domain.DirectionUp
	}

	var severity domain.Severity
	if improving {
		switch {
		case math.Abs(pct) >= 50 || abs(delta) >= 50000:
			severity = domain.SeverityCritical
		case math.Abs(pct) >= 30:
			severity = domain.SeverityHigh
		default:
			severity = domain.SeverityMedium
		}
	} else {
		severity = domain.SeverityLow
	}

	return &domain.RankEvent{
		ProductID:        after.ProductID,
		DetectedAt:       after.CapturedAt,
		RankBefore:       *before.PrimaryRank,
		RankAfter:        *after.PrimaryRank,
		AbsoluteChange:   delta,
		PercentChange:    pct,
		Direction:        direction,
		Severity:         severity,
		Sustained:        false,
		SnapshotBeforeAt: before.CapturedAt,
		SnapshotAfterAt:  after.CapturedAt,
	}
}

// DetectStock returns a StockEvent whenever the stock status changed.
// stockoutStart/stockoutHours are filled in by the caller once it knows
// how long a preceding stockout ran (the detector itself is stateless
// across more than one transition).
func (d *Detector) DetectStock(before, after domain.Snapshot) *domain.StockEvent {
	if before.StockStatus == "" || before.StockStatus == after.StockStatus {
		return nil
	}

	kind, severity := classifyStockTransition(before.StockStatus, after.StockStatus)

	return &domain.StockEvent{
		ProductID:        after.ProductID,
		DetectedAt:       after.CapturedAt,
		StatusBefore:     before.StockStatus,
		StatusAfter:      after.StockStatus,
		QuantityBefore:   nil,
		QuantityAfter:    nil,
		Kind:             kind,
		Severity:         severity,
		SnapshotBeforeAt: before.CapturedAt,
		SnapshotAfterAt:  after.CapturedAt,
	}
}

func classifyStockTransition(before, after domain.StockStatus) (domain.StockEventKind, domain.Severity) {
	wasAvailable := before == domain.StockInStock || before == domain.StockLow
	wasOut := before == domain.StockOut

	switch {
	case wasAvailable && after == domain.StockOut:
		return domain.StockEventStockout, domain.SeverityHigh
	case wasOut && (after == domain.StockInStock || after == domain.StockLow):
		return domain.StockEventRestock, domain.SeverityMedium
	case after == domain.StockLow:
		return domain.StockEventLowStockAlert, domain.SeverityLow
	default:
		return domain.StockEventStatusChange, domain.SeverityLow
	}
}

func derefOr(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
