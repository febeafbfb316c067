package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/domain"
)

func TestRankTrends_ImprovingRankIsNegativePercent(t *testing.T) {
	now := time.Now().UTC()
	latest := domain.Snapshot{CapturedAt: now, PrimaryRank: intPtr(100)}
	history := []domain.Snapshot{
		{CapturedAt: now.Add(-10 * 24 * time.Hour), PrimaryRank: intPtr(200)},
		{CapturedAt: now.Add(-40 * 24 * time.Hour), PrimaryRank: intPtr(400)},
	}
	trend7, trend30 := rankTrends(latest, history)
	assert.Less(t, trend7, 0.0)
	assert.Less(t, trend30, 0.0)
}

func TestRankTrends_NoHistoryIsNeutral(t *testing.T) {
	latest := domain.Snapshot{CapturedAt: time.Now().UTC(), PrimaryRank: intPtr(100)}
	trend7, trend30 := rankTrends(latest, nil)
	assert.Zero(t, trend7)
	assert.Zero(t, trend30)
}

func TestPriceVolatility_RangeOverMean(t *testing.T) {
	history := []domain.Snapshot{
		{PriceCurrent: f64Ptr(10)},
		{PriceCurrent: f64Ptr(20)},
		{PriceCurrent: f64Ptr(15)},
	}
	v := priceVolatility(history)
	assert.InDelta(t, 66.67, v, 0.1)
}

func TestPriceVolatility_SinglePointIsZero(t *testing.T) {
	assert.Zero(t, priceVolatility([]domain.Snapshot{{PriceCurrent: f64Ptr(10)}}))
}

func TestStockoutFrequency_CountsOnlyStockoutKind(t *testing.T) {
	events := []domain.StockEvent{
		{Kind: domain.StockEventStockout},
		{Kind: domain.StockEventRestock},
		{Kind: domain.StockEventStockout},
	}
	assert.Equal(t, 2.0, stockoutFrequency(events))
}

func TestSellerChurn_SteadyCountIsZero(t *testing.T) {
	history := []domain.Snapshot{
		{CapturedAt: time.Now().Add(-2 * time.Hour), SellerCount: intPtr(5)},
		{CapturedAt: time.Now().Add(-time.Hour), SellerCount: intPtr(5)},
		{CapturedAt: time.Now(), SellerCount: intPtr(5)},
	}
	rotation, churn := sellerChurn(history)
	assert.Zero(t, rotation)
	assert.Zero(t, churn)
}

func TestSellerChurn_EverySwingMaxesOut(t *testing.T) {
	history := []domain.Snapshot{
		{CapturedAt: time.Now().Add(-2 * time.Hour), SellerCount: intPtr(5)},
		{CapturedAt: time.Now().Add(-time.Hour), SellerCount: intPtr(6)},
		{CapturedAt: time.Now(), SellerCount: intPtr(4)},
	}
	rotation, churn := sellerChurn(history)
	assert.Equal(t, 1.0, rotation)
	assert.Equal(t, 1.0, churn)
}

func TestCategoryBaselines_AveragesTop10AndCaches(t *testing.T) {
	products := newFakeProducts()
	snaps := newFakeSnapshots()
	for i := 0; i < 15; i++ {
		id := domain.ProductID(string(rune('A' + i)))
		_ = products.Upsert(nil, domain.Product{ID: id, CategoryID: "cat1", Active: true})
		_ = snaps.Insert(nil, domain.Snapshot{ProductID: id, CapturedAt: time.Now(), ReviewCount: intPtr(100 + i)})
	}
	baselines := newCategoryBaselines(products, snaps)
	avg := baselines.top10AvgReviewCount(nil, "cat1")
	// top 10 of {100..114} are 105..114, average 109.5
	assert.InDelta(t, 109.5, avg, 0.01)

	cached := baselines.top10AvgReviewCount(nil, "cat1")
	assert.Equal(t, avg, cached)
}

func TestBuildScoringInput_CarriesImprovementScoreOnlyWhenReady(t *testing.T) {
	product := domain.Product{ID: "B1", CategoryID: "cat1"}
	latest := domain.Snapshot{
		ProductID: "B1", CapturedAt: time.Now().UTC(),
		PriceCurrent: f64Ptr(20), PrimaryRank: intPtr(100), ReviewCount: intPtr(50),
	}
	notReady := &domain.ImprovementProfile{ImprovementScore: 0.8, ReviewsReady: false}
	in := buildScoringInput(nil, "run1", product, latest, nil, nil, nil, 0, notReady)
	assert.Nil(t, in.ImprovementScore)

	ready := &domain.ImprovementProfile{ImprovementScore: 0.8, ReviewsReady: true}
	in = buildScoringInput(nil, "run1", product, latest, nil, nil, nil, 0, ready)
	require.NotNil(t, in.ImprovementScore)
}
