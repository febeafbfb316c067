// Package orchestrator drives one end-to-end run: pre-flight, discovery,
// freshness filtering, fetch, store, data-quality gating, scoring,
// aggregates refresh, and finalize (§4.G). Phases run strictly in
// sequence, and within a phase products are processed one after another
// on the calling goroutine; there is no worker pool.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/provider"
	"github.com/oppscan/oppscan/internal/reviews"
	"github.com/oppscan/oppscan/internal/scoring"
	"github.com/oppscan/oppscan/internal/shortlist"
	"github.com/oppscan/oppscan/internal/store"
	"github.com/oppscan/oppscan/internal/store/cache"
	"github.com/oppscan/oppscan/internal/telemetry"
)

// Provider is the subset of provider.Client the orchestrator depends
// on. Declared here, satisfied by *provider.Client, so tests can
// substitute a fake without dialing out or wiring gobreaker/budget.
type Provider interface {
	DiscoverCategory(ctx context.Context, categoryID string, yield func([]string) error) error
	FetchProducts(ctx context.Context, asins []string) ([]provider.RawProduct, []error)
	FetchReviews(ctx context.Context, asin string, limit int) ([]provider.RawReview, error)
	HealthCheck(ctx context.Context) provider.Health
}

// Store is the subset of store.Store (plus Aggregates) the orchestrator
// depends on. Declared here, satisfied by *postgres.Store, so tests can
// substitute an in-memory fake without importing database/sql.
type Store struct {
	Products   store.ProductRepo
	Snapshots  store.SnapshotRepo
	Runs       store.RunRepo
	Artifacts  store.ArtifactRepo
	Shortlists store.ShortlistRepo
	Reviews    store.ReviewRepo
	Events     store.EventRepo
	Aggregates store.Aggregates
}

// Orchestrator holds every dependency a run needs. It is built once at
// process start and reused across runs.
type Orchestrator struct {
	cfg    config.Config
	client Provider
	store  Store

	freshness *cache.FreshnessTracker
	extractor *reviews.Extractor
	scorer    *scoring.Scorer
	selector  *shortlist.Selector

	artifactDir string
	metrics     *telemetry.Registry
}

// SetMetrics attaches a telemetry registry. Optional — nil leaves every
// phase and run-outcome metric unrecorded, used freely by tests that
// have no interest in Prometheus wiring.
func (o *Orchestrator) SetMetrics(m *telemetry.Registry) {
	o.metrics = m
}

func New(cfg config.Config, client Provider, st Store, c cache.Cache, artifactDir string) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		client:      client,
		store:       st,
		freshness:   cache.NewFreshnessTracker(c, cfg.Ingestion.FreshnessThreshold),
		extractor:   reviews.NewExtractor(),
		scorer:      scoring.NewScorer(cfg.Scoring),
		selector:    shortlist.NewSelector(cfg.Scoring),
		artifactDir: artifactDir,
	}
}

// RunOptions configures a single invocation; these map directly onto
// the CLI surface (§6).
type RunOptions struct {
	MaxASINs      int
	Freeze        bool
	SkipDiscovery bool
	ASINs         []string
}

// Run executes one complete pipeline invocation and returns the final
// PipelineRun record. The returned error is non-nil only for conditions
// that prevented a run row from ever being durably recorded; ordinary
// degraded/failed outcomes are reported via run.Status, not via error.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*domain.PipelineRun, error) {
	run := &domain.PipelineRun{
		ID:             uuid.New().String(),
		Status:         domain.RunRunning,
		StartedAt:      time.Now().UTC(),
		PhaseTimings:   domain.PhaseTimings{},
		ConfigSnapshot: o.cfg.Snapshot(),
	}
	if opts.Freeze {
		run.ShortlistFrozen = true
	}

	log.Info().Str("run_id", run.ID).Msg("pipeline run starting")

	if err := o.store.Runs.Create(ctx, *run); err != nil {
		return nil, err
	}

	health := o.client.HealthCheck(ctx)
	if !health.Healthy {
		run.Status = domain.RunFailed
		run.ErrorMessage = "provider health check failed"
		o.finish(ctx, run, nil, nil)
		return run, nil
	}

	candidates, err := o.phaseDiscovery(ctx, run, opts)
	if err != nil {
		return o.abort(ctx, run, err), nil
	}
	if ctx.Err() != nil {
		return o.cancel(ctx, run), nil
	}

	filtered := o.phaseFreshnessFilter(ctx, run, candidates, opts)
	if ctx.Err() != nil {
		return o.cancel(ctx, run), nil
	}

	fetched, failures := o.phaseFetch(ctx, run, filtered)
	run.AsinsTotal = len(filtered)
	run.AsinsFailed = len(failures)
	run.AsinsOK = len(fetched)
	run.AsinsSkipped = len(candidates) - len(filtered)
	for _, fe := range failures {
		run.FailedProducts = append(run.FailedProducts, fe.ProductID)
	}
	for _, fe := range failures {
		if errors.Is(fe, provider.ErrFatal) {
			return o.abort(ctx, run, fe), nil
		}
	}
	if ctx.Err() != nil {
		return o.cancel(ctx, run), nil
	}

	snapshots := o.phaseStore(ctx, run, fetched)
	if ctx.Err() != nil {
		return o.cancel(ctx, run), nil
	}

	o.phaseDQGate(run, snapshots)

	artifacts := o.phaseScoring(ctx, run, fetched)
	if ctx.Err() != nil {
		return o.cancel(ctx, run), nil
	}

	o.phaseAggregatesRefresh(ctx, run)

	finalShortlist := o.phaseFinalize(ctx, run, artifacts, opts)

	o.finish(ctx, run, artifacts, finalShortlist)
	return run, nil
}

func (o *Orchestrator) abort(ctx context.Context, run *domain.PipelineRun, err error) *domain.PipelineRun {
	run.Status = domain.RunFailed
	run.ErrorMessage = err.Error()
	o.finish(ctx, run, nil, nil)
	return run
}

func (o *Orchestrator) cancel(ctx context.Context, run *domain.PipelineRun) *domain.PipelineRun {
	run.Status = domain.RunCancelled
	run.ShortlistFrozen = true
	o.finish(context.Background(), run, nil, nil)
	return run
}

func (o *Orchestrator) finish(ctx context.Context, run *domain.PipelineRun, artifacts []domain.OpportunityArtifact, finalShortlist *domain.ShortlistSnapshot) {
	now := time.Now().UTC()
	run.EndedAt = &now
	if err := o.store.Runs.Update(ctx, *run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("failed to persist final run state")
	}
	if err := writeAuditArtifacts(o.artifactDir, run, artifacts, finalShortlist); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("failed to write audit artifacts")
	}
	if o.metrics != nil {
		o.metrics.RecordRunOutcome(string(run.Status), run.PriceMissingPercent, run.RankMissingPercent,
			run.ReviewMissingPercent, run.DQPassed, run.ErrorRate, run.ErrorBudgetBreached)
		if finalShortlist != nil {
			o.metrics.ShortlistLen.Set(float64(len(finalShortlist.ProductIDs)))
		}
	}
	log.Info().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("pipeline run finished")
}

func (o *Orchestrator) timePhase(run *domain.PipelineRun, name string, fn func()) {
	var timer *telemetry.PhaseTimer
	if o.metrics != nil {
		timer = o.metrics.StartPhaseTimer(name)
	}
	start := time.Now()
	fn()
	run.PhaseTimings[name] = time.Since(start)
	if timer != nil {
		timer.Stop()
	}
}
