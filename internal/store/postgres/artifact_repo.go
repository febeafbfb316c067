package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/oppscan/oppscan/internal/domain"
)

type artifactRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewArtifactRepo returns an ArtifactRepo backed by the
// opportunity_artifacts table, one immutable row per (run, product).
func NewArtifactRepo(db *sqlx.DB, timeout time.Duration) *artifactRepo {
	return &artifactRepo{db: db, timeout: timeout}
}

type artifactRow struct {
	RunID          string         `db:"run_id"`
	ProductID      string         `db:"product_id"`
	RankInRun      int            `db:"rank_in_run"`
	ScoredAt       time.Time      `db:"scored_at"`
	FinalScore     int            `db:"final_score"`
	BaseScore      float64        `db:"base_score"`
	TimeMultiplier float64        `db:"time_multiplier"`
	Components     []byte         `db:"components"`
	TimePressure   []byte         `db:"time_pressure_factors"`
	SignalsFor     pq.StringArray `db:"signals_for"`
	SignalsAgainst pq.StringArray `db:"signals_against"`
	Thesis         string         `db:"thesis"`
	Action         string         `db:"action"`
	Economics      []byte         `db:"economics"`
	WindowDays     int            `db:"window_days"`
	Window         string         `db:"window"`
	Urgency        string         `db:"urgency"`
	InputsHash     string         `db:"inputs_hash"`
	Context        []byte         `db:"product_context"`
	Rejected       bool           `db:"rejected"`
	RejectReason   string         `db:"reject_reason"`
}

// InsertBatch writes every scored artifact for a run in a single
// transaction, following the teacher's prepared-statement batch-insert
// idiom for high-throughput writes.
func (r *artifactRepo) InsertBatch(ctx context.Context, artifacts []domain.OpportunityArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin artifact batch insert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO opportunity_artifacts (run_id, product_id, rank_in_run, scored_at, final_score,
			base_score, time_multiplier, components, time_pressure_factors, signals_for, signals_against,
			thesis, action, economics, window_days, window, urgency, inputs_hash, product_context,
			rejected, reject_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (run_id, product_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare artifact insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artifacts {
		components, err := json.Marshal(a.Components)
		if err != nil {
			return fmt.Errorf("marshal components for %s: %w", a.ProductID, err)
		}
		timePressure, err := json.Marshal(a.TimePressure)
		if err != nil {
			return fmt.Errorf("marshal time pressure for %s: %w", a.ProductID, err)
		}
		economics, err := json.Marshal(a.Economics)
		if err != nil {
			return fmt.Errorf("marshal economics for %s: %w", a.ProductID, err)
		}
		productContext, err := json.Marshal(a.Context)
		if err != nil {
			return fmt.Errorf("marshal product context for %s: %w", a.ProductID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			a.RunID, string(a.ProductID), a.RankInRun, a.ScoredAt, a.FinalScore,
			a.BaseScore, a.TimeMultiplier, components, timePressure,
			pq.Array(a.SignalsFor), pq.Array(a.SignalsAgainst), a.Thesis, a.Action, economics,
			a.WindowDays, string(a.Window), string(a.Urgency), a.InputsHash, productContext,
			a.Rejected, string(a.RejectReason),
		); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				continue
			}
			return fmt.Errorf("insert artifact for %s: %w", a.ProductID, err)
		}
	}

	return tx.Commit()
}

// ListByRun returns every artifact scored for runID, ordered by rank.
func (r *artifactRepo) ListByRun(ctx context.Context, runID string) ([]domain.OpportunityArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []artifactRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, product_id, rank_in_run, scored_at, final_score, base_score, time_multiplier,
			components, time_pressure_factors, signals_for, signals_against, thesis, action, economics,
			window_days, window, urgency, inputs_hash, product_context, rejected, reject_reason
		FROM opportunity_artifacts WHERE run_id = $1 ORDER BY rank_in_run ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for run %s: %w", runID, err)
	}
	return rowsToArtifacts(rows)
}

// GetByRunAndProduct returns the single artifact for (runID, id), or
// nil if the product was never scored in that run.
func (r *artifactRepo) GetByRunAndProduct(ctx context.Context, runID string, id domain.ProductID) (*domain.OpportunityArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row artifactRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, product_id, rank_in_run, scored_at, final_score, base_score, time_multiplier,
			components, time_pressure_factors, signals_for, signals_against, thesis, action, economics,
			window_days, window, urgency, inputs_hash, product_context, rejected, reject_reason
		FROM opportunity_artifacts WHERE run_id = $1 AND product_id = $2
	`, runID, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact for run %s product %s: %w", runID, id, err)
	}
	artifacts, err := rowsToArtifacts([]artifactRow{row})
	if err != nil {
		return nil, err
	}
	return &artifacts[0], nil
}

func rowsToArtifacts(rows []artifactRow) ([]domain.OpportunityArtifact, error) {
	artifacts := make([]domain.OpportunityArtifact, 0, len(rows))
	for _, row := range rows {
		a := domain.OpportunityArtifact{
			RunID:          row.RunID,
			ProductID:      domain.ProductID(row.ProductID),
			RankInRun:      row.RankInRun,
			ScoredAt:       row.ScoredAt,
			FinalScore:     row.FinalScore,
			BaseScore:      row.BaseScore,
			TimeMultiplier: row.TimeMultiplier,
			SignalsFor:     []string(row.SignalsFor),
			SignalsAgainst: []string(row.SignalsAgainst),
			Thesis:         row.Thesis,
			Action:         row.Action,
			WindowDays:     row.WindowDays,
			Window:         domain.WindowLabel(row.Window),
			Urgency:        domain.UrgencyLevel(row.Urgency),
			InputsHash:     row.InputsHash,
			Rejected:       row.Rejected,
			RejectReason:   domain.RejectReason(row.RejectReason),
		}
		if err := json.Unmarshal(row.Components, &a.Components); err != nil {
			return nil, fmt.Errorf("unmarshal components for %s: %w", row.ProductID, err)
		}
		if err := json.Unmarshal(row.TimePressure, &a.TimePressure); err != nil {
			return nil, fmt.Errorf("unmarshal time pressure for %s: %w", row.ProductID, err)
		}
		if err := json.Unmarshal(row.Economics, &a.Economics); err != nil {
			return nil, fmt.Errorf("unmarshal economics for %s: %w", row.ProductID, err)
		}
		if err := json.Unmarshal(row.Context, &a.Context); err != nil {
			return nil, fmt.Errorf("unmarshal product context for %s: %w", row.ProductID, err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}
