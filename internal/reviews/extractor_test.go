package reviews

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppscan/oppscan/internal/domain"
)

func negReview(id, body string, rating float64) domain.Review {
	return domain.Review{ID: domain.ReviewID(id), ProductID: "B0TEST", Rating: rating, Body: body}
}

func TestDetectDefects_SingleKeywordType(t *testing.T) {
	e := NewExtractor()
	reviews := []domain.Review{
		negReview("r1", "It stopped working after a week.", 1),
		negReview("r2", "Great product, love it!", 5),
	}

	signals := e.DetectDefects("B0TEST", "run1", reviews)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.DefectMechanicalFailure, signals[0].DefectType)
	assert.Equal(t, 1, signals[0].Frequency)
	assert.Equal(t, 1, signals[0].NegativeReviewsScanned)
}

func TestDetectDefects_FrequencyFactorCapsAtOne(t *testing.T) {
	e := NewExtractor()
	var reviews []domain.Review
	for i := 0; i < 4; i++ {
		reviews = append(reviews, negReview("r", "it broke and stopped working", 1))
	}
	signals := e.DetectDefects("B0TEST", "run1", reviews)
	require.Len(t, signals, 1)
	assert.Equal(t, 0.90, signals[0].SeverityScore) // frequencyFactor saturates at 1, severity = baseWeight * 1
}

func TestDetectDefects_NoNegativeReviews(t *testing.T) {
	e := NewExtractor()
	reviews := []domain.Review{negReview("r1", "Excellent, no complaints", 5)}
	assert.Empty(t, e.DetectDefects("B0TEST", "run1", reviews))
}

func TestDetectDefects_MultipleTypesPerReview(t *testing.T) {
	e := NewExtractor()
	reviews := []domain.Review{
		negReview("r1", "It broke and is slippery, hard to hold.", 1),
	}
	signals := e.DetectDefects("B0TEST", "run1", reviews)
	types := make(map[domain.DefectType]bool)
	for _, s := range signals {
		types[s.DefectType] = true
	}
	assert.True(t, types[domain.DefectMechanicalFailure])
	assert.True(t, types[domain.DefectPoorGrip])
}

func TestDetectWishes_MatchesPattern(t *testing.T) {
	e := NewExtractor()
	reviews := []domain.Review{
		negReview("r1", "I wish it had a carrying case included.", 2),
		negReview("r2", "I wish it had a carrying case for travel.", 2),
	}
	wishes := e.DetectWishes("B0TEST", "run1", reviews)
	require.NotEmpty(t, wishes)
	assert.Contains(t, wishes[0].Phrase, "a carrying case")
	assert.GreaterOrEqual(t, wishes[0].Mentions, 1)
}

func TestDetectWishes_ConfidenceFormula(t *testing.T) {
	e := NewExtractor()
	var reviews []domain.Review
	for i := 0; i < 10; i++ {
		reviews = append(reviews, negReview("r", "needs a better handle overall", 2))
	}
	wishes := e.DetectWishes("B0TEST", "run1", reviews)
	require.Len(t, wishes, 1)
	assert.Equal(t, 10, wishes[0].Mentions)
	assert.Equal(t, 1.0, wishes[0].Confidence)
}

func TestBuildImprovementProfile_ReviewsReadyThreshold(t *testing.T) {
	e := NewExtractor()
	var reviews []domain.Review
	for i := 0; i < 20; i++ {
		reviews = append(reviews, negReview("r", "it broke after a month, very flimsy", 1))
	}
	signals := e.DetectDefects("B0TEST", "run1", reviews)
	wishes := e.DetectWishes("B0TEST", "run1", reviews)
	profile := e.BuildImprovementProfile("B0TEST", "run1", reviews, signals, wishes)

	assert.True(t, profile.ReviewsReady)
	assert.Equal(t, 20, profile.NegativeReviewsAnalyzed)
	assert.NotNil(t, profile.DominantPain)
	assert.LessOrEqual(t, profile.ImprovementScore, 1.0)
}

func TestBuildImprovementProfile_BelowReadyThreshold(t *testing.T) {
	e := NewExtractor()
	reviews := []domain.Review{negReview("r1", "it broke", 1)}
	signals := e.DetectDefects("B0TEST", "run1", reviews)
	profile := e.BuildImprovementProfile("B0TEST", "run1", reviews, signals, nil)
	assert.False(t, profile.ReviewsReady)
}

func TestDominantPain_TieBreaksByFrequencyThenLexical(t *testing.T) {
	signals := []domain.ReviewDefectSignal{
		{DefectType: domain.DefectSizeFit, SeverityScore: 0.5, Frequency: 2},
		{DefectType: domain.DefectDurability, SeverityScore: 0.5, Frequency: 3},
	}
	pain := dominantPain(signals)
	require.NotNil(t, pain)
	assert.Equal(t, domain.DefectDurability, *pain)
}
