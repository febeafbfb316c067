package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/provider"
	"github.com/oppscan/oppscan/internal/store"
)

// phaseDiscovery implements §4.G Phase 1: explicit ASIN list, category
// discovery, or (when both are skipped) the existing tracked catalog.
func (o *Orchestrator) phaseDiscovery(ctx context.Context, run *domain.PipelineRun, opts RunOptions) ([]string, error) {
	var candidates []string
	o.timePhase(run, "discovery", func() {
		if len(opts.ASINs) > 0 {
			candidates = append(candidates, opts.ASINs...)
			return
		}
		if opts.SkipDiscovery {
			tracked, err := o.store.Products.ListActive(ctx, o.cfg.Ingestion.CategoryID)
			if err != nil {
				log.Error().Err(err).Msg("discovery: list active products failed")
				return
			}
			for _, p := range tracked {
				candidates = append(candidates, string(p.ID))
			}
			return
		}
		err := o.client.DiscoverCategory(ctx, o.cfg.Ingestion.CategoryID, func(page []string) error {
			candidates = append(candidates, page...)
			if opts.MaxASINs > 0 && len(candidates) >= opts.MaxASINs {
				return errStopDiscovery
			}
			return nil
		})
		if err != nil && err != errStopDiscovery {
			log.Error().Err(err).Msg("discovery: category walk failed")
		}
	})
	if opts.MaxASINs > 0 && len(candidates) > opts.MaxASINs {
		candidates = candidates[:opts.MaxASINs]
	}
	return candidates, nil
}

var errStopDiscovery = &stopDiscoveryError{}

type stopDiscoveryError struct{}

func (e *stopDiscoveryError) Error() string { return "discovery: max asins reached" }

// phaseFreshnessFilter implements §4.G Phase 2: drop candidates captured
// within the freshness threshold, then cap at maxProducts.
func (o *Orchestrator) phaseFreshnessFilter(ctx context.Context, run *domain.PipelineRun, candidates []string, opts RunOptions) []string {
	var filtered []string
	o.timePhase(run, "freshness_filter", func() {
		for _, asin := range candidates {
			id := domain.ProductID(asin)
			if o.freshness.IsFresh(ctx, id) {
				continue
			}
			filtered = append(filtered, asin)
		}
		maxProducts := o.cfg.Ingestion.MaxProducts
		if opts.MaxASINs > 0 && opts.MaxASINs < maxProducts {
			maxProducts = opts.MaxASINs
		}
		if maxProducts > 0 && len(filtered) > maxProducts {
			filtered = filtered[:maxProducts]
		}
	})
	return filtered
}

// phaseFetch implements §4.G Phase 3: batched fetch with per-product
// failure accumulation — one bad ASIN never aborts the batch.
func (o *Orchestrator) phaseFetch(ctx context.Context, run *domain.PipelineRun, asins []string) ([]provider.RawProduct, []*provider.FetchError) {
	var products []provider.RawProduct
	var failures []*provider.FetchError
	o.timePhase(run, "fetch", func() {
		raw, errs := o.client.FetchProducts(ctx, asins)
		products = raw
		for _, e := range errs {
			if fe, ok := e.(*provider.FetchError); ok {
				failures = append(failures, fe)
			}
		}
	})
	return products, failures
}

// phaseStore implements §4.G Phase 4: catalog upsert then snapshot
// insert. Delta computation and event dispatch are the store's own
// side effect of the insert, not something this phase orchestrates.
func (o *Orchestrator) phaseStore(ctx context.Context, run *domain.PipelineRun, products []provider.RawProduct) []domain.Snapshot {
	var snapshots []domain.Snapshot
	o.timePhase(run, "store", func() {
		for _, rp := range products {
			product := rp.ToProduct()
			if err := o.store.Products.Upsert(ctx, product); err != nil {
				log.Error().Err(err).Str("product_id", string(product.ID)).Msg("store: product upsert failed")
				continue
			}
			snap := rp.ToSnapshot(run.ID)
			if err := o.store.Snapshots.Insert(ctx, snap); err != nil {
				log.Error().Err(err).Str("product_id", string(product.ID)).Msg("store: snapshot insert failed")
				continue
			}
			o.freshness.MarkCaptured(ctx, product.ID, snap.CapturedAt)
			snapshots = append(snapshots, snap)
		}
	})
	return snapshots
}

// phaseDQGate implements §4.G Phase 5: the three missingness ratios and
// the AND-gate that decides dqPassed.
func (o *Orchestrator) phaseDQGate(run *domain.PipelineRun, snapshots []domain.Snapshot) {
	total := len(snapshots)
	if total == 0 {
		run.DQPassed = false
		return
	}
	var priceMissing, rankMissing, reviewMissing int
	for _, s := range snapshots {
		if s.PriceCurrent == nil {
			priceMissing++
		}
		if s.PrimaryRank == nil {
			rankMissing++
		}
		if s.ReviewCount == nil {
			reviewMissing++
		}
	}
	run.PriceMissingPercent = 100 * float64(priceMissing) / float64(total)
	run.RankMissingPercent = 100 * float64(rankMissing) / float64(total)
	run.ReviewMissingPercent = 100 * float64(reviewMissing) / float64(total)

	threshold := o.cfg.Scoring.DQThresholdPercent
	run.DQPassed = run.PriceMissingPercent < threshold &&
		run.RankMissingPercent < threshold &&
		run.ReviewMissingPercent < threshold
}

// reviewFetchLimit bounds how many reviews phaseScoring pulls per
// product — enough to clear the extractor's 20-negative-review
// readiness bar for most listings without an unbounded per-product cost.
const reviewFetchLimit = 100

// phaseScoring implements §4.G Phase 6: per-product review analysis
// feeding the improvement-score bonus, aggregate-input assembly, and
// the deterministic scorer itself.
func (o *Orchestrator) phaseScoring(ctx context.Context, run *domain.PipelineRun, products []provider.RawProduct) []domain.OpportunityArtifact {
	var artifacts []domain.OpportunityArtifact
	o.timePhase(run, "scoring", func() {
		baselines := newCategoryBaselines(o.store.Products, o.store.Snapshots)
		now := time.Now().UTC()
		windowStart := now.Add(-categoryBaselineWindow)

		for _, rp := range products {
			if ctx.Err() != nil {
				return
			}
			id := domain.ProductID(rp.ASIN)

			product, err := o.store.Products.Get(ctx, id)
			if err != nil || product == nil {
				log.Error().Err(err).Str("product_id", rp.ASIN).Msg("scoring: product lookup failed")
				continue
			}
			latest, err := o.store.Snapshots.Latest(ctx, id)
			if err != nil || latest == nil {
				log.Error().Err(err).Str("product_id", rp.ASIN).Msg("scoring: snapshot lookup failed")
				continue
			}
			history, err := o.store.Snapshots.ListRange(ctx, id, store.TimeRange{From: windowStart, To: now})
			if err != nil {
				log.Error().Err(err).Str("product_id", rp.ASIN).Msg("scoring: history lookup failed")
			}
			priceEvents, _, stockEvents, err := o.store.Events.ListRecentForProduct(ctx, id, windowStart)
			if err != nil {
				log.Error().Err(err).Str("product_id", rp.ASIN).Msg("scoring: event lookup failed")
			}

			profile := o.analyzeReviews(ctx, run.ID, id)

			avgReviewCount := baselines.top10AvgReviewCount(ctx, product.CategoryID)
			input := buildScoringInput(ctx, run.ID, *product, *latest, history, priceEvents, stockEvents, avgReviewCount, profile)
			artifacts = append(artifacts, o.scorer.Score(input, now))
		}

		if err := o.store.Artifacts.InsertBatch(ctx, artifacts); err != nil {
			log.Error().Err(err).Msg("scoring: artifact batch insert failed")
		}
	})
	return artifacts
}

// analyzeReviews fetches a product's reviews, runs the defect/wish
// extractor, persists the derived signals, and returns the resulting
// improvement profile. A fetch or extraction failure degrades to a nil
// profile rather than aborting the product's scoring.
func (o *Orchestrator) analyzeReviews(ctx context.Context, runID string, id domain.ProductID) *domain.ImprovementProfile {
	raw, err := o.client.FetchReviews(ctx, string(id), reviewFetchLimit)
	if err != nil {
		log.Error().Err(err).Str("product_id", string(id)).Msg("reviews: fetch failed")
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	reviews := make([]domain.Review, 0, len(raw))
	for _, r := range raw {
		reviews = append(reviews, domain.Review{
			ID:               domain.ReviewID(r.ID),
			ProductID:        id,
			Body:             r.Body,
			Title:            r.Title,
			Rating:           float64(r.Rating),
			VerifiedPurchase: r.Verified,
			ReviewDate:       r.PostedAt,
			CapturedAt:       time.Now().UTC(),
		})
	}
	if _, err := o.store.Reviews.InsertBatch(ctx, reviews); err != nil {
		log.Error().Err(err).Str("product_id", string(id)).Msg("reviews: insert batch failed")
	}

	signals := o.extractor.DetectDefects(id, runID, reviews)
	if err := o.store.Reviews.UpsertDefectSignals(ctx, signals); err != nil {
		log.Error().Err(err).Str("product_id", string(id)).Msg("reviews: upsert defect signals failed")
	}
	wishes := o.extractor.DetectWishes(id, runID, reviews)
	if err := o.store.Reviews.UpsertFeatureRequests(ctx, wishes); err != nil {
		log.Error().Err(err).Str("product_id", string(id)).Msg("reviews: upsert feature requests failed")
	}

	profile := o.extractor.BuildImprovementProfile(id, runID, reviews, signals, wishes)
	if err := o.store.Reviews.UpsertImprovementProfile(ctx, profile); err != nil {
		log.Error().Err(err).Str("product_id", string(id)).Msg("reviews: upsert improvement profile failed")
	}

	ids := make([]domain.ReviewID, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ID)
	}
	if err := o.store.Reviews.MarkAnalyzed(ctx, ids, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("product_id", string(id)).Msg("reviews: mark analyzed failed")
	}

	return &profile
}

// phaseAggregatesRefresh implements §4.G Phase 7.
func (o *Orchestrator) phaseAggregatesRefresh(ctx context.Context, run *domain.PipelineRun) {
	o.timePhase(run, "aggregates_refresh", func() {
		if err := o.store.Aggregates.RefreshAggregates(ctx); err != nil {
			log.Error().Err(err).Msg("aggregates refresh failed")
		}
	})
}

// phaseFinalize implements §4.G Phase 8: error-budget evaluation, final
// status, and the new shortlist snapshot, which is always recorded and
// made the active one only when the run is not frozen.
func (o *Orchestrator) phaseFinalize(ctx context.Context, run *domain.PipelineRun, artifacts []domain.OpportunityArtifact, opts RunOptions) *domain.ShortlistSnapshot {
	var result *domain.ShortlistSnapshot
	o.timePhase(run, "finalize", func() {
		if run.AsinsTotal > 0 {
			run.ErrorRate = float64(run.AsinsFailed) / float64(run.AsinsTotal)
		}
		run.ErrorBudgetBreached = run.ErrorRate >= o.cfg.Scoring.ErrorBudgetThreshold

		switch {
		case run.Status == domain.RunFailed:
			// health-check or discovery already set this.
		case !run.DQPassed || run.ErrorBudgetBreached:
			run.Status = domain.RunDegraded
		default:
			run.Status = domain.RunCompleted
		}

		if run.Status == domain.RunDegraded || run.Status == domain.RunFailed {
			run.ShortlistFrozen = true
		}
		if opts.Freeze {
			run.ShortlistFrozen = true
		}

		previous, err := o.store.Shortlists.GetActive(ctx)
		if err != nil {
			log.Error().Err(err).Msg("finalize: failed to load active shortlist")
		}

		effectiveStatus := run.Status
		if run.ShortlistFrozen && effectiveStatus == domain.RunCompleted {
			effectiveStatus = domain.RunDegraded
		}
		snapshot := o.selector.Select(run.ID, artifacts, previous, effectiveStatus, time.Now().UTC())
		if err := o.store.Shortlists.Insert(ctx, snapshot); err != nil {
			log.Error().Err(err).Msg("finalize: failed to persist shortlist snapshot")
			result = &snapshot
			return
		}
		persisted, err := o.store.Shortlists.GetByRun(ctx, run.ID)
		if err == nil && persisted != nil {
			result = persisted
			if snapshot.Active {
				if err := o.store.Shortlists.ActivateOnly(ctx, persisted.ID); err != nil {
					log.Error().Err(err).Msg("finalize: failed to activate shortlist snapshot")
				} else {
					persisted.Active = true
				}
			}
		} else {
			result = &snapshot
		}
	})
	return result
}
