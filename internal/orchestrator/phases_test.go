package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/provider"
	"github.com/oppscan/oppscan/internal/store/cache"
)

func testConfig() config.Config {
	return config.Default()
}

func newTestFreshnessTracker() *cache.FreshnessTracker {
	return cache.NewFreshnessTracker(cache.New(), 20*time.Hour)
}

func TestPhaseDQGate_AllPresentPasses(t *testing.T) {
	o := &Orchestrator{cfg: testConfig()}
	run := &domain.PipelineRun{}
	snapshots := []domain.Snapshot{
		{PriceCurrent: f64Ptr(10), PrimaryRank: intPtr(100), ReviewCount: intPtr(5)},
		{PriceCurrent: f64Ptr(20), PrimaryRank: intPtr(200), ReviewCount: intPtr(10)},
	}
	o.phaseDQGate(run, snapshots)
	assert.True(t, run.DQPassed)
	assert.Zero(t, run.PriceMissingPercent)
}

func TestPhaseDQGate_MissingAboveThresholdFails(t *testing.T) {
	o := &Orchestrator{cfg: testConfig()}
	run := &domain.PipelineRun{}
	snapshots := []domain.Snapshot{
		{PriceCurrent: nil, PrimaryRank: intPtr(100), ReviewCount: intPtr(5)},
		{PriceCurrent: nil, PrimaryRank: intPtr(200), ReviewCount: intPtr(10)},
		{PriceCurrent: f64Ptr(20), PrimaryRank: intPtr(200), ReviewCount: intPtr(10)},
	}
	o.phaseDQGate(run, snapshots)
	assert.False(t, run.DQPassed)
	assert.InDelta(t, 66.67, run.PriceMissingPercent, 0.1)
}

func TestPhaseDQGate_NoSnapshotsFails(t *testing.T) {
	o := &Orchestrator{cfg: testConfig()}
	run := &domain.PipelineRun{}
	o.phaseDQGate(run, nil)
	assert.False(t, run.DQPassed)
}

func TestPhaseFreshnessFilter_DropsFreshAndCaps(t *testing.T) {
	o := &Orchestrator{cfg: testConfig(), freshness: newTestFreshnessTracker()}
	o.freshness.MarkCaptured(context.Background(), "B1", time.Now().UTC())

	filtered := o.phaseFreshnessFilter(context.Background(), &domain.PipelineRun{PhaseTimings: domain.PhaseTimings{}}, []string{"B1", "B2", "B3"}, RunOptions{})
	assert.ElementsMatch(t, []string{"B2", "B3"}, filtered)
}

func TestPhaseFreshnessFilter_RespectsMaxASINsOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Ingestion.MaxProducts = 100
	o := &Orchestrator{cfg: cfg, freshness: newTestFreshnessTracker()}

	filtered := o.phaseFreshnessFilter(context.Background(), &domain.PipelineRun{PhaseTimings: domain.PhaseTimings{}}, []string{"B1", "B2", "B3"}, RunOptions{MaxASINs: 2})
	assert.Len(t, filtered, 2)
}

func TestPhaseFetch_SynthesizesPerProductFailuresWithoutAbortingWholeBatch(t *testing.T) {
	p := &fakeProvider{
		products: []provider.RawProduct{{ASIN: "B1"}},
		fetchErrs: []error{
			&provider.FetchError{ProductID: "B2", Kind: provider.ErrTransient},
			&provider.FetchError{ProductID: "B3", Kind: provider.ErrMalformed},
		},
	}
	o := &Orchestrator{client: p}
	run := &domain.PipelineRun{PhaseTimings: domain.PhaseTimings{}}

	products, failures := o.phaseFetch(context.Background(), run, []string{"B1", "B2", "B3"})
	require.Len(t, products, 1)
	assert.Equal(t, "B1", products[0].ASIN)
	require.Len(t, failures, 2)
	assert.Equal(t, "B2", failures[0].ProductID)
	assert.Equal(t, "B3", failures[1].ProductID)
}

func TestPhaseStore_InsertsSnapshotAndMarksFresh(t *testing.T) {
	st, _ := newTestStore()
	o := &Orchestrator{store: st, freshness: newTestFreshnessTracker()}
	run := &domain.PipelineRun{ID: "run1", PhaseTimings: domain.PhaseTimings{}}

	products := []provider.RawProduct{
		{ASIN: "B1", CategoryID: "cat1", Price: f64Ptr(15), PrimaryRank: intPtr(50), CapturedAt: time.Now().UTC()},
	}
	snapshots := o.phaseStore(context.Background(), run, products)
	require.Len(t, snapshots, 1)
	assert.Equal(t, domain.ProductID("B1"), snapshots[0].ProductID)
	assert.True(t, o.freshness.IsFresh(context.Background(), "B1"))

	stored, err := st.Products.Get(context.Background(), "B1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Active)
}
