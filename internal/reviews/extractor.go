package reviews

import (
	"regexp"
	"sort"
	"strings"

	"github.com/oppscan/oppscan/internal/domain"
)

// wishPatterns are the six regexes the extractor scans each review
// body with; the captured group is the normalized wish phrase.
var wishPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i wish it\s+(.{3,60})`),
	regexp.MustCompile(`(?i)would be great if\s+(.{3,60})`),
	regexp.MustCompile(`(?i)needs a\s+(.{3,60})`),
	regexp.MustCompile(`(?i)should have\s+(.{3,60})`),
	regexp.MustCompile(`(?i)missing\s+(.{3,60})`),
	regexp.MustCompile(`(?i)if only it had\s+(.{3,60})`),
}

var sentenceBoundary = regexp.MustCompile(`[.!?\n].*$`)

var stopWordTrim = regexp.MustCompile(`^(a|an|the|to|so|that|of)\s+`)

// Extractor turns a product's reviews into defect signals, wish
// mentions, and an improvement profile. It holds no per-call state —
// every method is a function of the reviews passed in.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// negativeReviews filters to rating <= 3 with a non-empty body, the
// extractor's documented input set.
func negativeReviews(rs []domain.Review) []domain.Review {
	out := make([]domain.Review, 0, len(rs))
	for _, r := range rs {
		if r.Rating <= 3 && strings.TrimSpace(r.Body) != "" {
			out = append(out, r)
		}
	}
	return out
}

type defectMatch struct {
	reviewIdx int
	quote     string
}

// DetectDefects matches every negative review's body against the
// lexicon and aggregates per-type frequency, severity, and up to three
// example quotes (shortest preferred).
func (e *Extractor) DetectDefects(productID domain.ProductID, runID string, reviews []domain.Review) []domain.ReviewDefectSignal {
	negatives := negativeReviews(reviews)
	n := len(negatives)
	if n == 0 {
		return nil
	}

	matches := make(map[domain.DefectType][]defectMatch)
	for idx, r := range negatives {
		body := strings.ToLower(r.Body)
		for _, defectType := range defectTypesOrdered {
			for _, kw := range defectKeywords[defectType] {
				if strings.Contains(body, kw) {
					matches[defectType] = append(matches[defectType], defectMatch{reviewIdx: idx, quote: r.Body})
					break
				}
			}
		}
	}

	var signals []domain.ReviewDefectSignal
	for _, defectType := range defectTypesOrdered {
		ms, ok := matches[defectType]
		if !ok {
			continue
		}
		frequency := len(ms)
		frequencyFactor := min1(2 * float64(frequency) / float64(n))
		severity := min1(defectWeights[defectType] * frequencyFactor)

		signals = append(signals, domain.ReviewDefectSignal{
			ProductID:              productID,
			RunID:                  runID,
			DefectType:             defectType,
			Frequency:              frequency,
			SeverityScore:          severity,
			ExampleQuotes:          topQuotes(ms, 3),
			ReviewsScanned:         len(reviews),
			NegativeReviewsScanned: n,
		})
	}
	return signals
}

func topQuotes(matches []defectMatch, limit int) []string {
	sorted := append([]defectMatch(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].quote) < len(sorted[j].quote)
	})
	out := make([]string, 0, limit)
	for _, m := range sorted {
		if len(out) >= limit {
			break
		}
		out = append(out, m.quote)
	}
	return out
}

// DetectWishes scans every negative review's body for the six wish
// patterns and aggregates mention counts by normalized phrase.
func (e *Extractor) DetectWishes(productID domain.ProductID, runID string, reviews []domain.Review) []domain.ReviewFeatureRequest {
	negatives := negativeReviews(reviews)

	type agg struct {
		mentions int
		quotes   []string
	}
	byPhrase := make(map[string]*agg)

	for _, r := range negatives {
		for _, pattern := range wishPatterns {
			match := pattern.FindStringSubmatch(r.Body)
			if match == nil {
				continue
			}
			phrase := normalizeWish(match[1])
			if phrase == "" {
				continue
			}
			a, ok := byPhrase[phrase]
			if !ok {
				a = &agg{}
				byPhrase[phrase] = a
			}
			a.mentions++
			if len(a.quotes) < 3 {
				a.quotes = append(a.quotes, r.Body)
			}
		}
	}

	phrases := make([]string, 0, len(byPhrase))
	for phrase := range byPhrase {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)

	requests := make([]domain.ReviewFeatureRequest, 0, len(phrases))
	for _, phrase := range phrases {
		a := byPhrase[phrase]
		requests = append(requests, domain.ReviewFeatureRequest{
			ProductID:  productID,
			RunID:      runID,
			Phrase:     phrase,
			Mentions:   a.mentions,
			Confidence: min1(float64(a.mentions) / 10),
			Quotes:     a.quotes,
		})
	}
	return requests
}

func normalizeWish(raw string) string {
	phrase := sentenceBoundary.ReplaceAllString(raw, "")
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	phrase = stopWordTrim.ReplaceAllString(phrase, "")
	return strings.TrimSpace(phrase)
}

// BuildImprovementProfile computes the deterministic 0-1 improvement
// score and dominant pain for a product from its defect signals and
// wish mentions.
func (e *Extractor) BuildImprovementProfile(productID domain.ProductID, runID string, reviews []domain.Review, signals []domain.ReviewDefectSignal, wishes []domain.ReviewFeatureRequest) domain.ImprovementProfile {
	negatives := negativeReviews(reviews)
	negativeCount := len(negatives)

	coverage := 0.0
	if negativeCount > 0 {
		matchedReviews := countReviewsWithAnyDefect(negatives, signals)
		coverage = float64(matchedReviews) / float64(negativeCount)
	}

	top5 := topSeverities(signals, 5)
	defectScore := weightedAverage(top5) * (0.5 + 0.5*coverage)

	wishesAtOrAbove3 := 0
	for _, w := range wishes {
		if w.Mentions >= 3 {
			wishesAtOrAbove3++
		}
	}
	wishBonus := minF(0.2, 0.1*float64(wishesAtOrAbove3))

	improvementScore := min1(defectScore + wishBonus)

	topDefects := make([]domain.DefectType, 0, len(top5))
	for _, s := range top5 {
		topDefects = append(topDefects, s.DefectType)
	}

	missingFeatures := make([]string, 0, len(wishes))
	for _, w := range wishes {
		missingFeatures = append(missingFeatures, w.Phrase)
	}

	profile := domain.ImprovementProfile{
		ProductID:               productID,
		RunID:                   runID,
		TopDefects:              topDefects,
		MissingFeatures:         missingFeatures,
		ImprovementScore:        improvementScore,
		ReviewsAnalyzed:         len(reviews),
		NegativeReviewsAnalyzed: negativeCount,
		ReviewsReady:            negativeCount >= 20,
	}
	if pain := dominantPain(signals); pain != nil {
		profile.DominantPain = pain
	}
	return profile
}

func countReviewsWithAnyDefect(negatives []domain.Review, signals []domain.ReviewDefectSignal) int {
	if len(signals) == 0 {
		return 0
	}
	count := 0
	for _, r := range negatives {
		body := strings.ToLower(r.Body)
		matched := false
		for _, s := range signals {
			for _, kw := range defectKeywords[s.DefectType] {
				if strings.Contains(body, kw) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}

func topSeverities(signals []domain.ReviewDefectSignal, limit int) []domain.ReviewDefectSignal {
	sorted := append([]domain.ReviewDefectSignal(nil), signals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SeverityScore != sorted[j].SeverityScore {
			return sorted[i].SeverityScore > sorted[j].SeverityScore
		}
		if sorted[i].Frequency != sorted[j].Frequency {
			return sorted[i].Frequency > sorted[j].Frequency
		}
		return sorted[i].DefectType < sorted[j].DefectType
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func weightedAverage(signals []domain.ReviewDefectSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var sum float64
	for _, s := range signals {
		sum += s.SeverityScore
	}
	return sum / float64(len(signals))
}

// dominantPain is the defect type with the highest severity, ties
// broken by frequency then lexical order — the same ordering
// topSeverities already applies.
func dominantPain(signals []domain.ReviewDefectSignal) *domain.DefectType {
	if len(signals) == 0 {
		return nil
	}
	top := topSeverities(signals, 1)[0]
	pain := top.DefectType
	return &pain
}

func min1(v float64) float64 { return minF(1, v) }

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
