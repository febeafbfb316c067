package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/oppscan/oppscan/internal/domain"
)

type reviewRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReviewRepo returns a ReviewRepo backed by the reviews table plus
// its three derived-aggregate tables.
func NewReviewRepo(db *sqlx.DB, timeout time.Duration) *reviewRepo {
	return &reviewRepo{db: db, timeout: timeout}
}

type reviewRow struct {
	ID               string       `db:"id"`
	ProductID        string       `db:"product_id"`
	Body             string       `db:"body"`
	Title            string       `db:"title"`
	Rating           float64      `db:"rating"`
	VerifiedPurchase bool         `db:"verified_purchase"`
	ReviewDate       time.Time    `db:"review_date"`
	CapturedAt       time.Time    `db:"captured_at"`
	AnalyzedAt       sql.NullTime `db:"analyzed_at"`
}

// InsertBatch writes reviews, skipping duplicates by ID, and returns
// the number of rows actually inserted.
func (r *reviewRepo) InsertBatch(ctx context.Context, reviews []domain.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin review batch insert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO reviews (id, product_id, body, title, rating, verified_purchase, review_date, captured_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare review insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rv := range reviews {
		res, err := stmt.ExecContext(ctx, string(rv.ID), string(rv.ProductID), rv.Body, rv.Title,
			rv.Rating, rv.VerifiedPurchase, rv.ReviewDate, rv.CapturedAt)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				continue
			}
			return inserted, fmt.Errorf("insert review %s: %w", rv.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// ListUnanalyzed returns up to limit reviews for id that the extractor
// has not yet processed.
func (r *reviewRepo) ListUnanalyzed(ctx context.Context, id domain.ProductID, limit int) ([]domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []reviewRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, product_id, body, title, rating, verified_purchase, review_date, captured_at, analyzed_at
		FROM reviews WHERE product_id = $1 AND analyzed_at IS NULL
		ORDER BY review_date DESC LIMIT $2
	`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed reviews for %s: %w", id, err)
	}

	reviews := make([]domain.Review, 0, len(rows))
	for _, row := range rows {
		reviews = append(reviews, rowToReview(row))
	}
	return reviews, nil
}

// MarkAnalyzed stamps every review in ids as processed at the given time.
func (r *reviewRepo) MarkAnalyzed(ctx context.Context, ids []domain.ReviewID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}

	_, err := r.db.ExecContext(ctx, `UPDATE reviews SET analyzed_at = $1 WHERE id = ANY($2)`, at, pq.Array(strs))
	if err != nil {
		return fmt.Errorf("mark reviews analyzed: %w", err)
	}
	return nil
}

func rowToReview(row reviewRow) domain.Review {
	rv := domain.Review{
		ID:               domain.ReviewID(row.ID),
		ProductID:        domain.ProductID(row.ProductID),
		Body:             row.Body,
		Title:            row.Title,
		Rating:           row.Rating,
		VerifiedPurchase: row.VerifiedPurchase,
		ReviewDate:       row.ReviewDate,
		CapturedAt:       row.CapturedAt,
	}
	if row.AnalyzedAt.Valid {
		at := row.AnalyzedAt.Time
		rv.AnalyzedAt = &at
	}
	return rv
}

// UpsertDefectSignals writes the extractor's per-(product, run, defect
// type) aggregates, replacing any prior row for the same key — the
// extractor always recomputes a product's signals from scratch.
func (r *reviewRepo) UpsertDefectSignals(ctx context.Context, signals []domain.ReviewDefectSignal) error {
	if len(signals) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin defect signal upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO review_defect_signals (product_id, run_id, defect_type, frequency, severity_score,
			example_quotes, reviews_scanned, negative_reviews_scanned)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (product_id, run_id, defect_type) DO UPDATE SET
			frequency = EXCLUDED.frequency, severity_score = EXCLUDED.severity_score,
			example_quotes = EXCLUDED.example_quotes, reviews_scanned = EXCLUDED.reviews_scanned,
			negative_reviews_scanned = EXCLUDED.negative_reviews_scanned
	`)
	if err != nil {
		return fmt.Errorf("prepare defect signal upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range signals {
		if _, err := stmt.ExecContext(ctx, string(s.ProductID), s.RunID, string(s.DefectType), s.Frequency,
			s.SeverityScore, pq.Array(s.ExampleQuotes), s.ReviewsScanned, s.NegativeReviewsScanned); err != nil {
			return fmt.Errorf("upsert defect signal %s/%s: %w", s.ProductID, s.DefectType, err)
		}
	}
	return tx.Commit()
}

// UpsertFeatureRequests writes the extractor's per-(product, run,
// phrase) wish aggregates.
func (r *reviewRepo) UpsertFeatureRequests(ctx context.Context, requests []domain.ReviewFeatureRequest) error {
	if len(requests) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin feature request upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO review_feature_requests (product_id, run_id, phrase, mentions, confidence, quotes)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (product_id, run_id, phrase) DO UPDATE SET
			mentions = EXCLUDED.mentions, confidence = EXCLUDED.confidence, quotes = EXCLUDED.quotes
	`)
	if err != nil {
		return fmt.Errorf("prepare feature request upsert: %w", err)
	}
	defer stmt.Close()

	for _, req := range requests {
		if _, err := stmt.ExecContext(ctx, string(req.ProductID), req.RunID, req.Phrase, req.Mentions,
			req.Confidence, pq.Array(req.Quotes)); err != nil {
			return fmt.Errorf("upsert feature request %s/%s: %w", req.ProductID, req.Phrase, err)
		}
	}
	return tx.Commit()
}

// UpsertImprovementProfile writes the per-(product, run) rollup used as
// a downstream rank bonus.
func (r *reviewRepo) UpsertImprovementProfile(ctx context.Context, profile domain.ImprovementProfile) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	topDefects := make([]string, len(profile.TopDefects))
	for i, d := range profile.TopDefects {
		topDefects[i] = string(d)
	}
	var dominantPain interface{}
	if profile.DominantPain != nil {
		dominantPain = string(*profile.DominantPain)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO improvement_profiles (product_id, run_id, top_defects, missing_features, dominant_pain,
			improvement_score, reviews_analyzed, negative_reviews_analyzed, reviews_ready)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (product_id, run_id) DO UPDATE SET
			top_defects = EXCLUDED.top_defects, missing_features = EXCLUDED.missing_features,
			dominant_pain = EXCLUDED.dominant_pain, improvement_score = EXCLUDED.improvement_score,
			reviews_analyzed = EXCLUDED.reviews_analyzed,
			negative_reviews_analyzed = EXCLUDED.negative_reviews_analyzed,
			reviews_ready = EXCLUDED.reviews_ready
	`, string(profile.ProductID), profile.RunID, pq.Array(topDefects), pq.Array(profile.MissingFeatures),
		dominantPain, profile.ImprovementScore, profile.ReviewsAnalyzed, profile.NegativeReviewsAnalyzed,
		profile.ReviewsReady)
	if err != nil {
		return fmt.Errorf("upsert improvement profile for %s: %w", profile.ProductID, err)
	}
	return nil
}

// GetImprovementProfile returns the rollup for (runID, id), or nil if
// the extractor has not yet run for that product in that run.
func (r *reviewRepo) GetImprovementProfile(ctx context.Context, runID string, id domain.ProductID) (*domain.ImprovementProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row struct {
		ProductID               string         `db:"product_id"`
		RunID                   string         `db:"run_id"`
		TopDefects              pq.StringArray `db:"top_defects"`
		MissingFeatures         pq.StringArray `db:"missing_features"`
		DominantPain            sql.NullString `db:"dominant_pain"`
		ImprovementScore        float64        `db:"improvement_score"`
		ReviewsAnalyzed         int            `db:"reviews_analyzed"`
		NegativeReviewsAnalyzed int            `db:"negative_reviews_analyzed"`
		ReviewsReady            bool           `db:"reviews_ready"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT product_id, run_id, top_defects, missing_features, dominant_pain, improvement_score,
			reviews_analyzed, negative_reviews_analyzed, reviews_ready
		FROM improvement_profiles WHERE run_id = $1 AND product_id = $2
	`, runID, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get improvement profile for run %s product %s: %w", runID, id, err)
	}

	topDefects := make([]domain.DefectType, len(row.TopDefects))
	for i, d := range row.TopDefects {
		topDefects[i] = domain.DefectType(d)
	}
	profile := &domain.ImprovementProfile{
		ProductID:               domain.ProductID(row.ProductID),
		RunID:                   row.RunID,
		TopDefects:              topDefects,
		MissingFeatures:         []string(row.MissingFeatures),
		ImprovementScore:        row.ImprovementScore,
		ReviewsAnalyzed:         row.ReviewsAnalyzed,
		NegativeReviewsAnalyzed: row.NegativeReviewsAnalyzed,
		ReviewsReady:            row.ReviewsReady,
	}
	if row.DominantPain.Valid {
		pain := domain.DefectType(row.DominantPain.String)
		profile.DominantPain = &pain
	}
	return profile, nil
}
