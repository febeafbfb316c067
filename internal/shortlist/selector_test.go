package shortlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
)

func artifact(id string, finalScore int, rankScore, riskValue float64, windowDays int) domain.OpportunityArtifact {
	return domain.OpportunityArtifact{
		ProductID:  domain.ProductID(id),
		FinalScore: finalScore,
		WindowDays: windowDays,
		Economics:  domain.EconomicEstimate{RankScore: rankScore, RiskAdjustedValue: riskValue},
	}
}

func testSelector() *Selector {
	cfg := config.Default().Scoring
	cfg.MinScore = 50
	cfg.MinValue = 1000
	cfg.MaxItems = 3
	return NewSelector(cfg)
}

func TestSelect_GatesOnScoreAndValue(t *testing.T) {
	s := testSelector()
	artifacts := []domain.OpportunityArtifact{
		artifact("B1", 60, 100, 2000, 30),
		artifact("B2", 40, 90, 2000, 30),  // below min score
		artifact("B3", 60, 80, 500, 30),   // below min value
	}
	snap := s.Select("run1", artifacts, nil, domain.RunCompleted, time.Now())
	require.Len(t, snap.ProductIDs, 1)
	assert.Equal(t, domain.ProductID("B1"), snap.ProductIDs[0])
}

func TestSelect_RejectedArtifactsExcludedEvenIfScoreHigh(t *testing.T) {
	s := testSelector()
	a := artifact("B1", 90, 200, 5000, 10)
	a.Rejected = true
	a.RejectReason = domain.RejectNoWindow
	snap := s.Select("run1", []domain.OpportunityArtifact{a}, nil, domain.RunCompleted, time.Now())
	assert.Empty(t, snap.ProductIDs)
}

func TestSelect_OrderingByRankScoreThenTieBreaks(t *testing.T) {
	s := testSelector()
	artifacts := []domain.OpportunityArtifact{
		artifact("B2", 70, 100, 2000, 20),
		artifact("B1", 70, 100, 2000, 10), // same rankScore/finalScore, shorter window wins
		artifact("B3", 80, 150, 2000, 30),
	}
	snap := s.Select("run1", artifacts, nil, domain.RunCompleted, time.Now())
	require.Len(t, snap.ProductIDs, 3)
	assert.Equal(t, domain.ProductID("B3"), snap.ProductIDs[0])
	assert.Equal(t, domain.ProductID("B1"), snap.ProductIDs[1])
	assert.Equal(t, domain.ProductID("B2"), snap.ProductIDs[2])
}

func TestSelect_CapsAtMaxItems(t *testing.T) {
	s := testSelector()
	var artifacts []domain.OpportunityArtifact
	for i := 0; i < 10; i++ {
		artifacts = append(artifacts, artifact(string(rune('A'+i)), 60, float64(100-i), 2000, 30))
	}
	snap := s.Select("run1", artifacts, nil, domain.RunCompleted, time.Now())
	assert.Len(t, snap.ProductIDs, 3)
}

func TestSelect_FreezePolicyOnDegraded(t *testing.T) {
	s := testSelector()
	artifacts := []domain.OpportunityArtifact{artifact("B1", 60, 100, 2000, 30)}
	snap := s.Select("run1", artifacts, nil, domain.RunDegraded, time.Now())
	assert.True(t, snap.Frozen)
	assert.False(t, snap.Active)
}

func TestSelect_FreezePolicyOnFailed(t *testing.T) {
	s := testSelector()
	artifacts := []domain.OpportunityArtifact{artifact("B1", 60, 100, 2000, 30)}
	snap := s.Select("run1", artifacts, nil, domain.RunFailed, time.Now())
	assert.True(t, snap.Frozen)
}

func TestSelect_NotFrozenOnCompleted(t *testing.T) {
	s := testSelector()
	artifacts := []domain.OpportunityArtifact{artifact("B1", 60, 100, 2000, 30)}
	snap := s.Select("run1", artifacts, nil, domain.RunCompleted, time.Now())
	assert.False(t, snap.Frozen)
	assert.True(t, snap.Active)
}

func TestSelect_StabilityAndDiffAgainstPrevious(t *testing.T) {
	s := testSelector()
	previous := &domain.ShortlistSnapshot{
		ProductIDs: []domain.ProductID{"B1", "B2"},
	}
	artifacts := []domain.OpportunityArtifact{
		artifact("B1", 60, 100, 2000, 30),
		artifact("B3", 60, 90, 2000, 30),
	}
	snap := s.Select("run1", artifacts, previous, domain.RunCompleted, time.Now())

	assert.ElementsMatch(t, []domain.ProductID{"B3"}, snap.Added)
	assert.ElementsMatch(t, []domain.ProductID{"B2"}, snap.Removed)
	// intersection {B1} = 1, union {B1,B2,B3} = 3
	assert.InDelta(t, 1.0/3.0, snap.Stability, 0.0001)
}

func TestSelect_NoPreviousMeansAllAdded(t *testing.T) {
	s := testSelector()
	artifacts := []domain.OpportunityArtifact{artifact("B1", 60, 100, 2000, 30)}
	snap := s.Select("run1", artifacts, nil, domain.RunCompleted, time.Now())
	assert.Equal(t, []domain.ProductID{"B1"}, snap.Added)
	assert.Empty(t, snap.Removed)
	assert.Zero(t, snap.Stability)
}
