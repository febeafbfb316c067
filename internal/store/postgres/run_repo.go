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

type runRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunRepo returns a RunRepo backed by the pipeline_runs audit table.
func NewRunRepo(db *sqlx.DB, timeout time.Duration) *runRepo {
	return &runRepo{db: db, timeout: timeout}
}

type runRow struct {
	ID                   string         `db:"id"`
	Status               string         `db:"status"`
	StartedAt            time.Time      `db:"started_at"`
	EndedAt              sql.NullTime   `db:"ended_at"`
	AsinsTotal           int            `db:"asins_total"`
	AsinsOK              int            `db:"asins_ok"`
	AsinsFailed          int            `db:"asins_failed"`
	AsinsSkipped         int            `db:"asins_skipped"`
	PhaseTimings         []byte         `db:"phase_timings"`
	TokensConsumed       int64          `db:"tokens_consumed"`
	PriceMissingPercent  float64        `db:"price_missing_percent"`
	RankMissingPercent   float64        `db:"rank_missing_percent"`
	ReviewMissingPercent float64        `db:"review_missing_percent"`
	DQPassed             bool           `db:"dq_passed"`
	ErrorRate            float64        `db:"error_rate"`
	ErrorBudgetBreached  bool           `db:"error_budget_breached"`
	ShortlistFrozen      bool           `db:"shortlist_frozen"`
	ConfigSnapshot       []byte         `db:"config_snapshot"`
	ErrorMessage         sql.NullString `db:"error_message"`
	FailedProducts       pq.StringArray `db:"failed_products"`
}

// Create inserts a fresh run record. Called once at the start of every
// invocation, before any phase runs.
func (r *runRepo) Create(ctx context.Context, run domain.PipelineRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cfg, err := json.Marshal(run.ConfigSnapshot)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}
	timings, err := marshalPhaseTimings(run.PhaseTimings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, status, started_at, asins_total, phase_timings, config_snapshot)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, run.ID, string(run.Status), run.StartedAt, run.AsinsTotal, timings, cfg)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate run %s: %w", run.ID, err)
		}
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// Update overwrites a run's mutable fields — called once, when the run
// finishes.
func (r *runRepo) Update(ctx context.Context, run domain.PipelineRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	timings, err := marshalPhaseTimings(run.PhaseTimings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET
			status = $2, ended_at = $3, asins_total = $4, asins_ok = $5, asins_failed = $6,
			asins_skipped = $7, phase_timings = $8, tokens_consumed = $9,
			price_missing_percent = $10, rank_missing_percent = $11, review_missing_percent = $12,
			dq_passed = $13, error_rate = $14, error_budget_breached = $15, shortlist_frozen = $16,
			error_message = $17, failed_products = $18
		WHERE id = $1
	`, run.ID, string(run.Status), run.EndedAt, run.AsinsTotal, run.AsinsOK, run.AsinsFailed,
		run.AsinsSkipped, timings, run.TokensConsumed,
		run.PriceMissingPercent, run.RankMissingPercent, run.ReviewMissingPercent,
		run.DQPassed, run.ErrorRate, run.ErrorBudgetBreached, run.ShortlistFrozen,
		nullIfEmpty(run.ErrorMessage), pq.Array(run.FailedProducts))
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns a single run by ID, or nil if not found.
func (r *runRepo) Get(ctx context.Context, id string) (*domain.PipelineRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, status, started_at, ended_at, asins_total, asins_ok, asins_failed, asins_skipped,
			phase_timings, tokens_consumed, price_missing_percent, rank_missing_percent,
			review_missing_percent, dq_passed, error_rate, error_budget_breached, shortlist_frozen,
			config_snapshot, error_message, failed_products
		FROM pipeline_runs WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return rowToRun(row)
}

// Latest returns the most recent runs, newest first.
func (r *runRepo) Latest(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, status, started_at, ended_at, asins_total, asins_ok, asins_failed, asins_skipped,
			phase_timings, tokens_consumed, price_missing_percent, rank_missing_percent,
			review_missing_percent, dq_passed, error_rate, error_budget_breached, shortlist_frozen,
			config_snapshot, error_message, failed_products
		FROM pipeline_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list latest runs: %w", err)
	}

	runs := make([]domain.PipelineRun, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func rowToRun(row runRow) (*domain.PipelineRun, error) {
	run := &domain.PipelineRun{
		ID:                   row.ID,
		Status:               domain.RunStatus(row.Status),
		StartedAt:            row.StartedAt,
		AsinsTotal:           row.AsinsTotal,
		AsinsOK:              row.AsinsOK,
		AsinsFailed:          row.AsinsFailed,
		AsinsSkipped:         row.AsinsSkipped,
		TokensConsumed:       row.TokensConsumed,
		PriceMissingPercent:  row.PriceMissingPercent,
		RankMissingPercent:   row.RankMissingPercent,
		ReviewMissingPercent: row.ReviewMissingPercent,
		DQPassed:             row.DQPassed,
		ErrorRate:            row.ErrorRate,
		ErrorBudgetBreached:  row.ErrorBudgetBreached,
		ShortlistFrozen:      row.ShortlistFrozen,
		FailedProducts:       []string(row.FailedProducts),
	}
	if row.EndedAt.Valid {
		endedAt := row.EndedAt.Time
		run.EndedAt = &endedAt
	}
	if row.ErrorMessage.Valid {
		run.ErrorMessage = row.ErrorMessage.String
	}

	timings, err := unmarshalPhaseTimings(row.PhaseTimings)
	if err != nil {
		return nil, fmt.Errorf("unmarshal phase timings for run %s: %w", row.ID, err)
	}
	run.PhaseTimings = timings

	if len(row.ConfigSnapshot) > 0 {
		var cfg map[string]interface{}
		if err := json.Unmarshal(row.ConfigSnapshot, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config snapshot for run %s: %w", row.ID, err)
		}
		run.ConfigSnapshot = cfg
	}
	return run, nil
}

func marshalPhaseTimings(t domain.PhaseTimings) ([]byte, error) {
	raw := make(map[string]int64, len(t))
	for phase, d := range t {
		raw[phase] = int64(d)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal phase timings: %w", err)
	}
	return b, nil
}

func unmarshalPhaseTimings(raw []byte) (domain.PhaseTimings, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded map[string]int64
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	timings := make(domain.PhaseTimings, len(decoded))
	for phase, nanos := range decoded {
		timings[phase] = time.Duration(nanos)
	}
	return timings, nil
}
