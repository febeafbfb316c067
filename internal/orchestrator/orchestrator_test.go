package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/provider"
	"github.com/oppscan/oppscan/internal/store"
	"github.com/oppscan/oppscan/internal/store/cache"
)

// --- in-memory store fakes ---

type fakeProducts struct {
	mu   sync.Mutex
	byID map[domain.ProductID]domain.Product
}

func newFakeProducts() *fakeProducts { return &fakeProducts{byID: make(map[domain.ProductID]domain.Product)} }

func (f *fakeProducts) Upsert(_ context.Context, p domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[p.ID] = p
	return nil
}
func (f *fakeProducts) Get(_ context.Context, id domain.ProductID) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
func (f *fakeProducts) ListActive(_ context.Context, categoryID string) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Product
	for _, p := range f.byID {
		if p.CategoryID == categoryID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeProducts) SoftDelete(_ context.Context, id domain.ProductID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID[id]
	p.SoftDeleted = true
	f.byID[id] = p
	return nil
}

type fakeSnapshots struct {
	mu    sync.Mutex
	byID  map[domain.ProductID][]domain.Snapshot
}

func newFakeSnapshots() *fakeSnapshots { return &fakeSnapshots{byID: make(map[domain.ProductID][]domain.Snapshot)} }

func (f *fakeSnapshots) Insert(_ context.Context, s domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.ProductID] = append(f.byID[s.ProductID], s)
	return nil
}
func (f *fakeSnapshots) Latest(_ context.Context, id domain.ProductID) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hist := f.byID[id]
	if len(hist) == 0 {
		return nil, nil
	}
	latest := hist[len(hist)-1]
	return &latest, nil
}
func (f *fakeSnapshots) ListRange(_ context.Context, id domain.ProductID, tr store.TimeRange) ([]domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Snapshot
	for _, s := range f.byID[id] {
		if !s.CapturedAt.Before(tr.From) && !s.CapturedAt.After(tr.To) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeRuns struct {
	mu   sync.Mutex
	byID map[string]domain.PipelineRun
}

func newFakeRuns() *fakeRuns { return &fakeRuns{byID: make(map[string]domain.PipelineRun)} }

func (f *fakeRuns) Create(_ context.Context, r domain.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[r.ID] = r
	return nil
}
func (f *fakeRuns) Update(_ context.Context, r domain.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[r.ID] = r
	return nil
}
func (f *fakeRuns) Get(_ context.Context, id string) (*domain.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}
func (f *fakeRuns) Latest(_ context.Context, limit int) ([]domain.PipelineRun, error) { return nil, nil }

type fakeArtifacts struct {
	mu     sync.Mutex
	byRun  map[string][]domain.OpportunityArtifact
}

func newFakeArtifacts() *fakeArtifacts { return &fakeArtifacts{byRun: make(map[string][]domain.OpportunityArtifact)} }

func (f *fakeArtifacts) InsertBatch(_ context.Context, artifacts []domain.OpportunityArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range artifacts {
		f.byRun[a.RunID] = append(f.byRun[a.RunID], a)
	}
	return nil
}
func (f *fakeArtifacts) ListByRun(_ context.Context, runID string) ([]domain.OpportunityArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byRun[runID], nil
}
func (f *fakeArtifacts) GetByRunAndProduct(_ context.Context, runID string, id domain.ProductID) (*domain.OpportunityArtifact, error) {
	return nil, nil
}

type fakeShortlists struct {
	mu        sync.Mutex
	snapshots []domain.ShortlistSnapshot
	nextID    int64
	activeID  int64
}

func newFakeShortlists() *fakeShortlists { return &fakeShortlists{} }

func (f *fakeShortlists) Insert(_ context.Context, s domain.ShortlistSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	f.snapshots = append(f.snapshots, s)
	return nil
}
func (f *fakeShortlists) ActivateOnly(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeID = id
	for i := range f.snapshots {
		f.snapshots[i].Active = f.snapshots[i].ID == id
	}
	return nil
}
func (f *fakeShortlists) GetActive(_ context.Context) (*domain.ShortlistSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.snapshots {
		if f.snapshots[i].ID == f.activeID {
			s := f.snapshots[i]
			return &s, nil
		}
	}
	return nil, nil
}
func (f *fakeShortlists) GetByRun(_ context.Context, runID string) (*domain.ShortlistSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.snapshots) - 1; i >= 0; i-- {
		if f.snapshots[i].RunID == runID {
			s := f.snapshots[i]
			return &s, nil
		}
	}
	return nil, nil
}

type fakeReviews struct{}

func (fakeReviews) InsertBatch(_ context.Context, reviews []domain.Review) (int, error) { return len(reviews), nil }
func (fakeReviews) ListUnanalyzed(_ context.Context, id domain.ProductID, limit int) ([]domain.Review, error) {
	return nil, nil
}
func (fakeReviews) MarkAnalyzed(_ context.Context, ids []domain.ReviewID, at time.Time) error { return nil }
func (fakeReviews) UpsertDefectSignals(_ context.Context, signals []domain.ReviewDefectSignal) error {
	return nil
}
func (fakeReviews) UpsertFeatureRequests(_ context.Context, requests []domain.ReviewFeatureRequest) error {
	return nil
}
func (fakeReviews) UpsertImprovementProfile(_ context.Context, profile domain.ImprovementProfile) error {
	return nil
}
func (fakeReviews) GetImprovementProfile(_ context.Context, runID string, id domain.ProductID) (*domain.ImprovementProfile, error) {
	return nil, nil
}

type fakeEvents struct{}

func (fakeEvents) InsertPriceEvents(_ context.Context, events []domain.PriceEvent) error { return nil }
func (fakeEvents) InsertRankEvents(_ context.Context, events []domain.RankEvent) error    { return nil }
func (fakeEvents) InsertStockEvents(_ context.Context, events []domain.StockEvent) error  { return nil }
func (fakeEvents) ListRecentForProduct(_ context.Context, id domain.ProductID, since time.Time) ([]domain.PriceEvent, []domain.RankEvent, []domain.StockEvent, error) {
	return nil, nil, nil, nil
}

type fakeAggregates struct{ refreshed int }

func (f *fakeAggregates) RefreshAggregates(_ context.Context) error {
	f.refreshed++
	return nil
}

// --- provider fake ---

type fakeProvider struct {
	health   provider.Health
	asins    []string
	products []provider.RawProduct
	fetchErrs []error
}

func (p *fakeProvider) DiscoverCategory(_ context.Context, _ string, yield func([]string) error) error {
	return yield(p.asins)
}
func (p *fakeProvider) FetchProducts(_ context.Context, asins []string) ([]provider.RawProduct, []error) {
	return p.products, p.fetchErrs
}
func (p *fakeProvider) FetchReviews(_ context.Context, _ string, _ int) ([]provider.RawReview, error) {
	return nil, nil
}
func (p *fakeProvider) HealthCheck(_ context.Context) provider.Health { return p.health }

func intPtr(v int) *int { return &v }
func f64Ptr(v float64) *float64 { return &v }

func newTestStore() (Store, *fakeAggregates) {
	agg := &fakeAggregates{}
	return Store{
		Products:   newFakeProducts(),
		Snapshots:  newFakeSnapshots(),
		Runs:       newFakeRuns(),
		Artifacts:  newFakeArtifacts(),
		Shortlists: newFakeShortlists(),
		Reviews:    fakeReviews{},
		Events:     fakeEvents{},
		Aggregates: agg,
	}, agg
}

func TestRun_HealthCheckFailureMarksFailed(t *testing.T) {
	st, _ := newTestStore()
	p := &fakeProvider{health: provider.Health{Healthy: false}}
	cfg := config.Default()
	o := New(cfg, p, st, cache.New(), "")

	run, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
}

func TestRun_HappyPathCompletes(t *testing.T) {
	st, agg := newTestStore()
	p := &fakeProvider{
		health: provider.Health{Healthy: true},
		asins:  []string{"B000000001"},
		products: []provider.RawProduct{
			{
				ASIN: "B000000001", Brand: "Acme", CategoryID: "cat1",
				Price: f64Ptr(29.99), Currency: "USD", PrimaryRank: intPtr(500),
				StockStatus: "in_stock", Fulfillment: "fba",
				SellerCount: intPtr(3), Rating: f64Ptr(4.2), ReviewCount: intPtr(120),
				CapturedAt: time.Now().UTC(),
			},
		},
	}
	cfg := config.Default()
	o := New(cfg, p, st, cache.New(), "")

	run, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, run.AsinsTotal)
	assert.Equal(t, 1, run.AsinsOK)
	assert.Equal(t, 0, run.AsinsFailed)
	assert.True(t, run.DQPassed)
	assert.Equal(t, 1, agg.refreshed)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.False(t, run.ShortlistFrozen)
}

func TestRun_FetchFailuresTrackedAsDegraded(t *testing.T) {
	st, _ := newTestStore()
	p := &fakeProvider{
		health:    provider.Health{Healthy: true},
		asins:     []string{"B1", "B2", "B3", "B4", "B5"},
		products:  nil,
		fetchErrs: []error{
			&provider.FetchError{ProductID: "B1", Kind: provider.ErrTransient},
			&provider.FetchError{ProductID: "B2", Kind: provider.ErrTransient},
			&provider.FetchError{ProductID: "B3", Kind: provider.ErrTransient},
			&provider.FetchError{ProductID: "B4", Kind: provider.ErrTransient},
			&provider.FetchError{ProductID: "B5", Kind: provider.ErrTransient},
		},
	}
	cfg := config.Default()
	o := New(cfg, p, st, cache.New(), "")

	run, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, run.AsinsFailed)
	assert.True(t, run.ErrorBudgetBreached)
	assert.Equal(t, domain.RunDegraded, run.Status)
	assert.True(t, run.ShortlistFrozen)
}

func TestRun_CancelledContextFreezesShortlist(t *testing.T) {
	st, _ := newTestStore()
	p := &fakeProvider{health: provider.Health{Healthy: true}, asins: []string{"B1"}}
	cfg := config.Default()
	o := New(cfg, p, st, cache.New(), "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := o.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, run.Status)
	assert.True(t, run.ShortlistFrozen)
}

func TestRun_ExplicitASINsSkipDiscovery(t *testing.T) {
	st, _ := newTestStore()
	p := &fakeProvider{
		health: provider.Health{Healthy: true},
		products: []provider.RawProduct{
			{ASIN: "Z1", CategoryID: "cat1", Price: f64Ptr(10), PrimaryRank: intPtr(10), ReviewCount: intPtr(5), CapturedAt: time.Now().UTC()},
		},
	}
	cfg := config.Default()
	o := New(cfg, p, st, cache.New(), "")

	run, err := o.Run(context.Background(), RunOptions{ASINs: []string{"Z1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, run.AsinsTotal)
}
