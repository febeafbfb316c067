// Package shortlist turns one run's scored artifacts into an ordered,
// gated, stability-tracked ShortlistSnapshot (§4.F). Selection is a pure
// function of the artifact set, the previous active snapshot, and the
// run's outcome — it performs no I/O itself.
package shortlist

import (
	"sort"
	"time"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
)

// Selector applies the gating thresholds and ordering rules from a
// frozen ScoringConfig.
type Selector struct {
	cfg config.ScoringConfig
}

func NewSelector(cfg config.ScoringConfig) *Selector {
	return &Selector{cfg: cfg}
}

// qualifies reports whether an artifact clears both shortlist gates.
// Rejected artifacts (no actionable window) never qualify regardless of
// score, mirroring the hard gate's intent in the scorer.
func (s *Selector) qualifies(a domain.OpportunityArtifact) bool {
	if a.Rejected {
		return false
	}
	return float64(a.FinalScore) >= s.cfg.MinScore && a.Economics.RiskAdjustedValue >= s.cfg.MinValue
}

// Select builds the run's shortlist. previous may be nil (no prior
// active snapshot). runStatus decides the freeze policy: a degraded or
// failed run is still recorded for audit but never marked active.
func (s *Selector) Select(runID string, artifacts []domain.OpportunityArtifact, previous *domain.ShortlistSnapshot, runStatus domain.RunStatus, now time.Time) domain.ShortlistSnapshot {
	qualified := make([]domain.OpportunityArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		if s.qualifies(a) {
			qualified = append(qualified, a)
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.Economics.RankScore != b.Economics.RankScore {
			return a.Economics.RankScore > b.Economics.RankScore
		}
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.WindowDays != b.WindowDays {
			return a.WindowDays < b.WindowDays
		}
		return a.ProductID < b.ProductID
	})

	if len(qualified) > s.cfg.MaxItems {
		qualified = qualified[:s.cfg.MaxItems]
	}

	productIDs := make([]domain.ProductID, len(qualified))
	scores := make([]int, len(qualified))
	var totalValue float64
	for i, a := range qualified {
		productIDs[i] = a.ProductID
		scores[i] = a.FinalScore
		totalValue += a.Economics.RiskAdjustedValue
	}

	added, removed, stability := diff(productIDs, previous)

	frozen := runStatus == domain.RunDegraded || runStatus == domain.RunFailed

	return domain.ShortlistSnapshot{
		RunID:      runID,
		CreatedAt:  now,
		ProductIDs: productIDs,
		Scores:     scores,
		TotalValue: totalValue,
		Added:      added,
		Removed:    removed,
		Stability:  stability,
		Frozen:     frozen,
		Active:     !frozen,
	}
}

// diff computes added/removed/stability between the new selection and
// the previous active snapshot's product set.
func diff(newIDs []domain.ProductID, previous *domain.ShortlistSnapshot) (added, removed []domain.ProductID, stability float64) {
	newSet := make(map[domain.ProductID]bool, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = true
	}

	if previous == nil {
		return append([]domain.ProductID(nil), newIDs...), nil, 0
	}

	prevSet := make(map[domain.ProductID]bool, len(previous.ProductIDs))
	for _, id := range previous.ProductIDs {
		prevSet[id] = true
	}

	for id := range newSet {
		if !prevSet[id] {
			added = append(added, id)
		}
	}
	for id := range prevSet {
		if !newSet[id] {
			removed = append(removed, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	intersection := 0
	union := len(newSet)
	for id := range prevSet {
		if newSet[id] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return added, removed, 0
	}
	return added, removed, float64(intersection) / float64(union)
}
