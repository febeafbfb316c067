package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/domain"
)

func snapshotWithPrice(t time.Time, price float64) domain.Snapshot {
	return domain.Snapshot{CapturedAt: t, PriceCurrent: &price}
}

func TestDetector_DetectPrice_BelowThreshold(t *testing.T) {
	d := NewDetector()
	before := snapshotWithPrice(time.Now().Add(-time.Hour), 100.0)
	after := snapshotWithPrice(time.Now(), 104.999)
	after.ComputeDeltas(&before)

	assert.Nil(t, d.DetectPrice(before, after))
}

func TestDetector_DetectPrice_AtThreshold(t *testing.T) {
	d := NewDetector()
	before := snapshotWithPrice(time.Now().Add(-time.Hour), 100.0)
	after := snapshotWithPrice(time.Now(), 105.0)
	after.ComputeDeltas(&before)

	evt := d.DetectPrice(before, after)
	require.NotNil(t, evt)
	assert.Equal(t, domain.SeverityLow, evt.Severity)
	assert.Equal(t, domain.DirectionUp, evt.Direction)
}

func TestDetector_DetectPrice_SeverityTiers(t *testing.T) {
	d := NewDetector()
	cases := []struct {
		pctDrop  float64
		expected domain.Severity
	}{
		{9, domain.SeverityLow},
		{10, domain.SeverityMedium},
		{15, domain.SeverityHigh},
		{25, domain.SeverityCritical},
	}
	for _, c := range cases {
		before := snapshotWithPrice(time.Now().Add(-time.Hour), 100.0)
		after := snapshotWithPrice(time.Now(), 100.0*(1-c.pctDrop/100))
		after.ComputeDeltas(&before)
		evt := d.DetectPrice(before, after)
		require.NotNil(t, evt)
		assert.Equal(t, c.expected, evt.Severity)
		assert.True(t, evt.Deal == (c.pctDrop >= 15))
	}
}

func TestDetector_DetectRank_ImprovingCritical(t *testing.T) {
	d := NewDetector()
	rBefore, rAfter := 100000, 40000
	before := domain.Snapshot{CapturedAt: time.Now().Add(-time.Hour), PrimaryRank: &rBefore}
	after := domain.Snapshot{CapturedAt: time.Now(), PrimaryRank: &rAfter}
	after.ComputeDeltas(&before)

	evt := d.DetectRank(before, after)
	require.NotNil(t, evt)
	assert.Equal(t, domain.DirectionUp, evt.Direction)
	assert.Equal(t, domain.SeverityCritical, evt.Severity)
}

func TestDetector_DetectRank_WorseningIsAlwaysLow(t *testing.T) {
	d := NewDetector()
	rBefore, rAfter := 1000, 2000
	before := domain.Snapshot{CapturedAt: time.Now().Add(-time.Hour), PrimaryRank: &rBefore}
	after := domain.Snapshot{CapturedAt: time.Now(), PrimaryRank: &rAfter}
	after.ComputeDeltas(&before)

	evt := d.DetectRank(before, after)
	require.NotNil(t, evt)
	assert.Equal(t, domain.DirectionDown, evt.Direction)
	assert.Equal(t, domain.SeverityLow, evt.Severity)
}

func TestDetector_DetectRank_NoPriorRank(t *testing.T) {
	d := NewDetector()
	rAfter := 500
	before := domain.Snapshot{CapturedAt: time.Now().Add(-time.Hour)}
	after := domain.Snapshot{CapturedAt: time.Now(), PrimaryRank: &rAfter}
	after.ComputeDeltas(&before)

	assert.Nil(t, d.DetectRank(before, after))
}

func TestDetector_DetectStock_Stockout(t *testing.T) {
	d := NewDetector()
	before := domain.Snapshot{CapturedAt: time.Now().Add(-time.Hour), StockStatus: domain.StockInStock}
	after := domain.Snapshot{CapturedAt: time.Now(), StockStatus: domain.StockOut}

	evt := d.DetectStock(before, after)
	require.NotNil(t, evt)
	assert.Equal(t, domain.StockEventStockout, evt.Kind)
	assert.Equal(t, domain.SeverityHigh, evt.Severity)
}

func TestDetector_DetectStock_Restock(t *testing.T) {
	d := NewDetector()
	before := domain.Snapshot{CapturedAt: time.Now().Add(-time.Hour), StockStatus: domain.StockOut}
	after := domain.Snapshot{CapturedAt: time.Now(), StockStatus: domain.StockInStock}

	evt := d.DetectStock(before, after)
	require.NotNil(t, evt)
	assert.Equal(t, domain.StockEventRestock, evt.Kind)
	assert.Equal(t, domain.SeverityMedium, evt.Severity)
}

func TestDetector_DetectStock_NoChangeIsNil(t *testing.T) {
	d := NewDetector()
	before := domain.Snapshot{CapturedAt: time.Now().Add(-time.Hour), StockStatus: domain.StockInStock}
	after := domain.Snapshot{CapturedAt: time.Now(), StockStatus: domain.StockInStock}

	assert.Nil(t, d.DetectStock(before, after))
}

func TestDetector_DetectStock_NoPriorStatus(t *testing.T) {
	d := NewDetector()
	before := domain.Snapshot{CapturedAt: time.Now().Add(-time.Hour)}
	after := domain.Snapshot{CapturedAt: time.Now(), StockStatus: domain.StockOut}

	assert.Nil(t, d.DetectStock(before, after))
}
