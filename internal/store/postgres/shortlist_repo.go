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

type shortlistRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewShortlistRepo returns a ShortlistRepo. At most one row system-wide
// ever has active = true; ActivateOnly enforces that inside a
// transaction so readers never observe two active snapshots.
func NewShortlistRepo(db *sqlx.DB, timeout time.Duration) *shortlistRepo {
	return &shortlistRepo{db: db, timeout: timeout}
}

type shortlistRow struct {
	ID         int64          `db:"id"`
	RunID      string         `db:"run_id"`
	CreatedAt  time.Time      `db:"created_at"`
	ProductIDs pq.StringArray `db:"product_ids"`
	Scores     pq.Int64Array  `db:"scores"`
	TotalValue float64        `db:"total_potential_value"`
	Added      pq.StringArray `db:"added"`
	Removed    pq.StringArray `db:"removed"`
	Stability  float64        `db:"stability"`
	Frozen     bool           `db:"frozen"`
	Active     bool           `db:"active"`
}

// Insert writes a new shortlist snapshot, inactive by default.
func (r *shortlistRepo) Insert(ctx context.Context, s domain.ShortlistSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shortlist_snapshots (run_id, created_at, product_ids, scores, total_potential_value,
			added, removed, stability, frozen, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false)
	`, s.RunID, s.CreatedAt, pq.Array(productIDStrings(s.ProductIDs)), pq.Array(intsToInt64s(s.Scores)),
		s.TotalValue, pq.Array(productIDStrings(s.Added)), pq.Array(productIDStrings(s.Removed)),
		s.Stability, s.Frozen)
	if err != nil {
		return fmt.Errorf("insert shortlist for run %s: %w", s.RunID, err)
	}
	return nil
}

// ActivateOnly deactivates every other shortlist and activates id,
// atomically.
func (r *shortlistRepo) ActivateOnly(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate shortlist tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE shortlist_snapshots SET active = false WHERE active = true`); err != nil {
		return fmt.Errorf("deactivate existing shortlists: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE shortlist_snapshots SET active = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("activate shortlist %d: %w", id, err)
	}
	return tx.Commit()
}

// GetActive returns the single active shortlist, or nil if none.
func (r *shortlistRepo) GetActive(ctx context.Context) (*domain.ShortlistSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row shortlistRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, run_id, created_at, product_ids, scores, total_potential_value, added, removed,
			stability, frozen, active
		FROM shortlist_snapshots WHERE active = true LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active shortlist: %w", err)
	}
	return rowToShortlist(row), nil
}

// GetByRun returns the shortlist produced by runID, or nil if none.
func (r *shortlistRepo) GetByRun(ctx context.Context, runID string) (*domain.ShortlistSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row shortlistRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, run_id, created_at, product_ids, scores, total_potential_value, added, removed,
			stability, frozen, active
		FROM shortlist_snapshots WHERE run_id = $1
	`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shortlist for run %s: %w", runID, err)
	}
	return rowToShortlist(row), nil
}

func rowToShortlist(row shortlistRow) *domain.ShortlistSnapshot {
	return &domain.ShortlistSnapshot{
		ID:         row.ID,
		RunID:      row.RunID,
		CreatedAt:  row.CreatedAt,
		ProductIDs: stringsToProductIDs(row.ProductIDs),
		Scores:     int64sToInts(row.Scores),
		TotalValue: row.TotalValue,
		Added:      stringsToProductIDs(row.Added),
		Removed:    stringsToProductIDs(row.Removed),
		Stability:  row.Stability,
		Frozen:     row.Frozen,
		Active:     row.Active,
	}
}

func productIDStrings(ids []domain.ProductID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToProductIDs(ss []string) []domain.ProductID {
	out := make([]domain.ProductID, len(ss))
	for i, s := range ss {
		out[i] = domain.ProductID(s)
	}
	return out
}

func intsToInt64s(is []int) []int64 {
	out := make([]int64, len(is))
	for i, v := range is {
		out[i] = int64(v)
	}
	return out
}

func int64sToInts(is []int64) []int {
	out := make([]int, len(is))
	for i, v := range is {
		out[i] = int(v)
	}
	return out
}
