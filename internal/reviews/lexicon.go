// Package reviews turns a product's stored negative reviews into the
// structured defect/wish/improvement signals the shortlist ranker uses
// as a rank bonus. Nothing here ever feeds the deterministic scorer's
// base score — see computeEconomics in package scoring.
package reviews

import "github.com/oppscan/oppscan/internal/domain"

// defectWeights is the closed lexicon's fixed severity base-weight per
// type, mirroring the catalyst registry's tier-weight table.
var defectWeights = map[domain.DefectType]float64{
	domain.DefectMechanicalFailure: 0.90,
	domain.DefectPoorGrip:          0.85,
	domain.DefectDurability:        0.75,
	domain.DefectCompatibility:     0.70,
	domain.DefectHeatIssue:         0.65,
	domain.DefectInstallation:      0.60,
	domain.DefectVibrationNoise:    0.55,
	domain.DefectMaterialQuality:   0.50,
	domain.DefectSizeFit:           0.40,
}

// defectKeywords is each type's domain-specific keyword set; a review
// matches a type iff any keyword occurs in its body (case-insensitive
// substring match).
var defectKeywords = map[domain.DefectType][]string{
	domain.DefectMechanicalFailure: {
		"stopped working", "broke", "broken", "doesn't work", "does not work",
		"malfunctio", "defective", "dead on arrival", "won't turn on", "failed after",
	},
	domain.DefectPoorGrip: {
		"slips", "slippery", "no grip", "poor grip", "hard to hold", "keeps sliding",
	},
	domain.DefectDurability: {
		"fell apart", "wore out", "cracked", "not durable", "flimsy", "broke after",
		"didn't last", "did not last", "cheaply made",
	},
	domain.DefectCompatibility: {
		"doesn't fit", "does not fit", "not compatible", "incompatible", "wrong size for",
		"doesn't work with", "does not work with",
	},
	domain.DefectHeatIssue: {
		"overheats", "gets too hot", "runs hot", "melted", "burning smell",
	},
	domain.DefectInstallation: {
		"hard to install", "difficult to install", "installation instructions",
		"couldn't install", "could not install", "confusing to set up",
	},
	domain.DefectVibrationNoise: {
		"vibrates", "rattles", "too loud", "noisy", "makes noise", "buzzing",
	},
	domain.DefectMaterialQuality: {
		"cheap plastic", "low quality", "feels cheap", "poor quality material", "flimsy material",
	},
	domain.DefectSizeFit: {
		"too small", "too big", "too large", "wrong size", "doesn't fit right", "runs small", "runs large",
	},
}

// defectTypesOrdered is the lexicon's canonical iteration order, the
// order in which DetectDefects checks and reports types.
var defectTypesOrdered = []domain.DefectType{
	domain.DefectMechanicalFailure,
	domain.DefectPoorGrip,
	domain.DefectDurability,
	domain.DefectCompatibility,
	domain.DefectHeatIssue,
	domain.DefectInstallation,
	domain.DefectVibrationNoise,
	domain.DefectMaterialQuality,
	domain.DefectSizeFit,
}
