package scoring

import (
	"fmt"
	"time"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
)

// Scorer turns one product's Input into an OpportunityArtifact. It holds
// only the configuration snapshot — no mutable state, no I/O.
type Scorer struct {
	cfg config.ScoringConfig
}

func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the full artifact for in. scoredAt is stamped by the
// caller rather than read from the clock internally, so every other
// field stays a pure function of (in, s.cfg) for the determinism
// guarantee to hold — only ScoredAt varies run to run.
func (s *Scorer) Score(in Input, scoredAt time.Time) domain.OpportunityArtifact {
	marginPts, marginPct := marginScore(in, s.cfg)
	velocityPts := velocityScore(in)
	competitionPts := competitionScore(in)
	gapPts := gapScore(in)
	tpFactors := timePressureFactors(in)
	timePressurePts := timePressureComponentScore(tpFactors)

	components := domain.ComponentBreakdown{
		Margin:       domain.ComponentScore{Score: marginPts, Max: 30},
		Velocity:     domain.ComponentScore{Score: velocityPts, Max: 25},
		Competition:  domain.ComponentScore{Score: competitionPts, Max: 20},
		Gap:          domain.ComponentScore{Score: gapPts, Max: 15},
		TimePressure: domain.ComponentScore{Score: timePressurePts, Max: 10},
	}

	rawBaseScore := marginPts + velocityPts + competitionPts + gapPts + timePressurePts

	artifact := domain.OpportunityArtifact{
		RunID:        in.RunID,
		ProductID:    in.ProductID,
		ScoredAt:     scoredAt,
		Components:   components,
		TimePressure: tpFactors,
		InputsHash:   inputsHash(in, s.cfg),
		Context: domain.ProductContext{
			Price:       in.PriceCurrent,
			ReviewCount: in.ReviewCount,
			Rating:      in.ReviewRating,
		},
	}
	if in.PrimaryRank != nil {
		artifact.Context.PrimaryRank = *in.PrimaryRank
	}

	if timePressurePts < s.cfg.TimePressureHardGate {
		artifact.Rejected = true
		artifact.RejectReason = domain.RejectNoWindow
		artifact.BaseScore = rawBaseScore / 100
		artifact.Thesis = "rejected: no actionable time window"
		artifact.SignalsAgainst = []string{
			fmt.Sprintf("time pressure score %.1f below hard gate %.1f", timePressurePts, s.cfg.TimePressureHardGate),
		}
		return artifact
	}

	mult := timeMultiplier(tpFactors)
	finalRaw := rawBaseScore * mult
	finalScore := int(clamp(finalRaw, 0, 100) + 0.5)

	days := windowDays(mult)
	label, windowMultiplier := windowClassify(days)

	economics := computeEconomics(in, s.cfg, windowMultiplier)

	artifact.BaseScore = rawBaseScore / 100
	artifact.TimeMultiplier = mult
	artifact.FinalScore = finalScore
	artifact.Economics = economics
	artifact.WindowDays = days
	artifact.Window = label
	artifact.Urgency = urgencyFor(label)
	artifact.SignalsFor, artifact.SignalsAgainst = buildSignals(in, components, marginPct)
	artifact.Thesis = buildThesis(label, finalScore, marginPct)
	artifact.Action = buildAction(label, economics.RiskAdjustedValue)

	return artifact
}

func urgencyFor(label domain.WindowLabel) domain.UrgencyLevel {
	switch label {
	case domain.WindowCritical:
		return domain.UrgencyCritical
	case domain.WindowUrgent:
		return domain.UrgencyHigh
	case domain.WindowActive:
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

func buildSignals(in Input, c domain.ComponentBreakdown, marginPct float64) (forSignals, against []string) {
	if c.Margin.Score >= c.Margin.Max*0.7 {
		forSignals = append(forSignals, fmt.Sprintf("strong net margin (%.0f%%)", marginPct*100))
	}
	if c.Competition.Score >= c.Competition.Max*0.7 {
		forSignals = append(forSignals, fmt.Sprintf("thin or unstable competition (%d active sellers)", in.ActiveSellerCount))
	}
	if c.Gap.Score >= c.Gap.Max*0.7 {
		forSignals = append(forSignals, "under-reviewed relative to category leaders")
	}
	if c.Velocity.Score < c.Velocity.Max*0.3 {
		against = append(against, "weak sales velocity signal")
	}
	if in.StockoutFrequencyPerMonth == 0 && in.RankAccelerationPercent <= 0 {
		against = append(against, "no observed urgency catalyst")
	}
	return forSignals, against
}

func buildThesis(label domain.WindowLabel, finalScore int, marginPct float64) string {
	return fmt.Sprintf("score %d, %s window, %.0f%% net margin", finalScore, label, marginPct*100)
}

func buildAction(label domain.WindowLabel, riskAdjusted float64) string {
	switch label {
	case domain.WindowCritical, domain.WindowUrgent:
		return fmt.Sprintf("move now — risk-adjusted annual value $%.0f", riskAdjusted)
	default:
		return fmt.Sprintf("evaluate — risk-adjusted annual value $%.0f", riskAdjusted)
	}
}
