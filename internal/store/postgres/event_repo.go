package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/oppscan/oppscan/internal/domain"
)

type eventRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEventRepo returns an EventRepo for ad-hoc event queries outside of
// the snapshot-insert transaction (which writes events directly via the
// insertXEventTx helpers below).
func NewEventRepo(db *sqlx.DB, timeout time.Duration) *eventRepo {
	return &eventRepo{db: db, timeout: timeout}
}

func (r *eventRepo) InsertPriceEvents(ctx context.Context, events []domain.PriceEvent) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range events {
			if err := insertPriceEventTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *eventRepo) InsertRankEvents(ctx context.Context, events []domain.RankEvent) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range events {
			if err := insertRankEventTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *eventRepo) InsertStockEvents(ctx context.Context, events []domain.StockEvent) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range events {
			if err := insertStockEventTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *eventRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event insert tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ListRecentForProduct returns every event of all three kinds detected
// for id since the given time, oldest first.
func (r *eventRepo) ListRecentForProduct(ctx context.Context, id domain.ProductID, since time.Time) ([]domain.PriceEvent, []domain.RankEvent, []domain.StockEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var priceEvents []domain.PriceEvent
	if err := r.db.SelectContext(ctx, &priceEvents, `
		SELECT id, product_id, detected_at, price_before, price_after, absolute_change, percent_change,
			direction, severity, deal, snapshot_before_at, snapshot_after_at
		FROM price_events WHERE product_id = $1 AND detected_at >= $2 ORDER BY detected_at ASC
	`, string(id), since); err != nil {
		return nil, nil, nil, fmt.Errorf("list price events for %s: %w", id, err)
	}

	var rankEvents []domain.RankEvent
	if err := r.db.SelectContext(ctx, &rankEvents, `
		SELECT id, product_id, detected_at, rank_before, rank_after, absolute_change, percent_change,
			direction, severity, sustained, snapshot_before_at, snapshot_after_at
		FROM rank_events WHERE product_id = $1 AND detected_at >= $2 ORDER BY detected_at ASC
	`, string(id), since); err != nil {
		return nil, nil, nil, fmt.Errorf("list rank events for %s: %w", id, err)
	}

	var stockEvents []domain.StockEvent
	if err := r.db.SelectContext(ctx, &stockEvents, `
		SELECT id, product_id, detected_at, status_before, status_after, quantity_before, quantity_after,
			kind, severity, stockout_start, stockout_duration_hours, snapshot_before_at, snapshot_after_at
		FROM stock_events WHERE product_id = $1 AND detected_at >= $2 ORDER BY detected_at ASC
	`, string(id), since); err != nil {
		return nil, nil, nil, fmt.Errorf("list stock events for %s: %w", id, err)
	}

	return priceEvents, rankEvents, stockEvents, nil
}

func insertPriceEventTx(ctx context.Context, tx *sqlx.Tx, e domain.PriceEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO price_events (product_id, detected_at, price_before, price_after, absolute_change,
			percent_change, direction, severity, deal, snapshot_before_at, snapshot_after_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (product_id, snapshot_before_at, snapshot_after_at) DO NOTHING
	`, string(e.ProductID), e.DetectedAt, e.PriceBefore, e.PriceAfter, e.AbsoluteChange,
		e.PercentChange, string(e.Direction), string(e.Severity), e.Deal, e.SnapshotBeforeAt, e.SnapshotAfterAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("insert price event for %s: %w", e.ProductID, err)
	}
	return nil
}

func insertRankEventTx(ctx context.Context, tx *sqlx.Tx, e domain.RankEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rank_events (product_id, detected_at, rank_before, rank_after, absolute_change,
			percent_change, direction, severity, sustained, snapshot_before_at, snapshot_after_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (product_id, snapshot_before_at, snapshot_after_at) DO NOTHING
	`, string(e.ProductID), e.DetectedAt, e.RankBefore, e.RankAfter, e.AbsoluteChange,
		e.PercentChange, string(e.Direction), string(e.Severity), e.Sustained, e.SnapshotBeforeAt, e.SnapshotAfterAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("insert rank event for %s: %w", e.ProductID, err)
	}
	return nil
}

func insertStockEventTx(ctx context.Context, tx *sqlx.Tx, e domain.StockEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_events (product_id, detected_at, status_before, status_after, quantity_before,
			quantity_after, kind, severity, stockout_start, stockout_duration_hours, snapshot_before_at, snapshot_after_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (product_id, snapshot_before_at, snapshot_after_at) DO NOTHING
	`, string(e.ProductID), e.DetectedAt, string(e.StatusBefore), string(e.StatusAfter), e.QuantityBefore,
		e.QuantityAfter, string(e.Kind), string(e.Severity), e.StockoutStart, e.StockoutHours,
		e.SnapshotBeforeAt, e.SnapshotAfterAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("insert stock event for %s: %w", e.ProductID, err)
	}
	return nil
}
