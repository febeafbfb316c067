package domain

import "time"

// ReviewID is the opaque external review identifier.
type ReviewID string

// Review is an external-source-populated customer review.
type Review struct {
	ID               ReviewID  `json:"id" db:"id"`
	ProductID        ProductID `json:"product_id" db:"product_id"`
	Body             string    `json:"body" db:"body"`
	Title            string    `json:"title" db:"title"`
	Rating           float64   `json:"rating" db:"rating"`
	VerifiedPurchase bool      `json:"verified_purchase" db:"verified_purchase"`
	ReviewDate       time.Time `json:"review_date" db:"review_date"`
	CapturedAt       time.Time `json:"captured_at" db:"captured_at"`
	AnalyzedAt       *time.Time `json:"analyzed_at,omitempty" db:"analyzed_at"`
}

// DefectType is the closed lexicon of review-derived product defects.
type DefectType string

const (
	DefectMechanicalFailure DefectType = "mechanical_failure"
	DefectPoorGrip          DefectType = "poor_grip"
	DefectDurability        DefectType = "durability"
	DefectCompatibility     DefectType = "compatibility_issue"
	DefectHeatIssue         DefectType = "heat_issue"
	DefectInstallation      DefectType = "installation_issue"
	DefectVibrationNoise    DefectType = "vibration_noise"
	DefectMaterialQuality   DefectType = "material_quality"
	DefectSizeFit           DefectType = "size_fit"
)

// ReviewDefectSignal is a per-(product, run) aggregate for one defect type.
type ReviewDefectSignal struct {
	ProductID             ProductID  `json:"product_id" db:"product_id"`
	RunID                 string     `json:"run_id" db:"run_id"`
	DefectType            DefectType `json:"defect_type" db:"defect_type"`
	Frequency             int        `json:"frequency" db:"frequency"`
	SeverityScore         float64    `json:"severity_score" db:"severity_score"` // [0,1]
	ExampleQuotes         []string   `json:"example_quotes" db:"example_quotes"` // up to 3
	ReviewsScanned        int        `json:"reviews_scanned" db:"reviews_scanned"`
	NegativeReviewsScanned int       `json:"negative_reviews_scanned" db:"negative_reviews_scanned"`
}

// ReviewFeatureRequest is a per-(product, run) normalized wish mention.
type ReviewFeatureRequest struct {
	ProductID ProductID `json:"product_id" db:"product_id"`
	RunID     string    `json:"run_id" db:"run_id"`
	Phrase    string    `json:"phrase" db:"phrase"`
	Mentions  int       `json:"mentions" db:"mentions"`
	Confidence float64  `json:"confidence" db:"confidence"` // [0,1]
	Quotes    []string  `json:"quotes" db:"quotes"`
}

// ImprovementProfile is the per-(product, run) rollup used as a rank
// bonus downstream — it never contributes to the scorer's base score.
type ImprovementProfile struct {
	ProductID              ProductID    `json:"product_id" db:"product_id"`
	RunID                  string       `json:"run_id" db:"run_id"`
	TopDefects             []DefectType `json:"top_defects" db:"top_defects"`
	MissingFeatures        []string     `json:"missing_features" db:"missing_features"`
	DominantPain           *DefectType  `json:"dominant_pain,omitempty" db:"dominant_pain"`
	ImprovementScore       float64      `json:"improvement_score" db:"improvement_score"` // [0,1]
	ReviewsAnalyzed        int          `json:"reviews_analyzed" db:"reviews_analyzed"`
	NegativeReviewsAnalyzed int         `json:"negative_reviews_analyzed" db:"negative_reviews_analyzed"`
	ReviewsReady           bool         `json:"reviews_ready" db:"reviews_ready"` // negative reviews analyzed >= 20
}
