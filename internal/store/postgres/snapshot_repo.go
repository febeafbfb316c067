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
	"github.com/oppscan/oppscan/internal/events"
	"github.com/oppscan/oppscan/internal/net/circuit"
	"github.com/oppscan/oppscan/internal/store"
)

type snapshotRepo struct {
	db       *sqlx.DB
	timeout  time.Duration
	detector *events.Detector
	breakers *circuit.Manager
}

// NewSnapshotRepo returns a SnapshotRepo that computes deltas against
// the product's prior snapshot and dispatches price/rank/stock events
// in the same insert transaction, per the delta/event engine's
// idempotence requirement.
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration, detector *events.Detector, breakers *circuit.Manager) *snapshotRepo {
	return &snapshotRepo{db: db, timeout: timeout, detector: detector, breakers: breakers}
}

type snapshotRow struct {
	ProductID         string          `db:"product_id"`
	CapturedAt        time.Time       `db:"captured_at"`
	PriceCurrent      sql.NullFloat64 `db:"price_current"`
	PriceOriginal     sql.NullFloat64 `db:"price_original"`
	LowestNew         sql.NullFloat64 `db:"lowest_new"`
	LowestUsed        sql.NullFloat64 `db:"lowest_used"`
	Currency          string          `db:"currency"`
	CouponPercent     sql.NullFloat64 `db:"coupon_percent"`
	CouponAmount      sql.NullFloat64 `db:"coupon_amount"`
	PrimaryRank       sql.NullInt64   `db:"primary_rank"`
	PrimaryRankCat    string          `db:"primary_rank_category"`
	SecondaryRank     sql.NullInt64   `db:"secondary_rank"`
	SecondaryRankCat  sql.NullString  `db:"secondary_rank_category"`
	StockStatus       string          `db:"stock_status"`
	SellerCount       sql.NullInt64   `db:"seller_count"`
	Fulfillment       string          `db:"fulfillment"`
	RatingAverage     sql.NullFloat64 `db:"rating_average"`
	RatingCount       sql.NullInt64   `db:"rating_count"`
	ReviewCount       sql.NullInt64   `db:"review_count"`
	RatingDist        []byte          `db:"rating_distribution"`
	PriceDelta        sql.NullFloat64 `db:"price_delta"`
	PriceDeltaPercent sql.NullFloat64 `db:"price_delta_percent"`
	RankDelta         sql.NullInt64   `db:"rank_delta"`
	RankDeltaPercent  sql.NullFloat64 `db:"rank_delta_percent"`
	ReviewCountDelta  sql.NullInt64   `db:"review_count_delta"`
	SessionID         string          `db:"session_id"`
}

// Insert appends s, computing its deltas against the product's prior
// snapshot and dispatching any resulting price/rank/stock events, all
// inside one transaction. A conflicting (product_id, captured_at) pair
// is silently discarded, matching a re-executed run's idempotence
// requirement.
func (r *snapshotRepo) Insert(ctx context.Context, s domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.breakers.Call(ctx, "insert-snapshot", func(ctx context.Context) error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin snapshot insert tx: %w", err)
		}
		defer tx.Rollback()

		prior, err := r.latestTx(ctx, tx, s.ProductID)
		if err != nil {
			return fmt.Errorf("load prior snapshot for %s: %w", s.ProductID, err)
		}
		s.ComputeDeltas(prior)

		inserted, err := insertSnapshotRow(ctx, tx, s)
		if err != nil {
			return fmt.Errorf("insert snapshot for %s: %w", s.ProductID, err)
		}

		if inserted && prior != nil {
			if err := r.dispatchEvents(ctx, tx, *prior, s); err != nil {
				return fmt.Errorf("dispatch events for %s: %w", s.ProductID, err)
			}
		}

		return tx.Commit()
	})
}

func insertSnapshotRow(ctx context.Context, tx *sqlx.Tx, s domain.Snapshot) (bool, error) {
	var ratingDist []byte
	if s.RatingDist != nil {
		var err error
		ratingDist, err = json.Marshal(s.RatingDist)
		if err != nil {
			return false, fmt.Errorf("marshal rating distribution: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (product_id, captured_at, price_current, price_original, lowest_new,
			lowest_used, currency, coupon_percent, coupon_amount, primary_rank, primary_rank_category,
			secondary_rank, secondary_rank_category, stock_status, seller_count, fulfillment,
			rating_average, rating_count, review_count, rating_distribution,
			price_delta, price_delta_percent, rank_delta, rank_delta_percent, review_count_delta, session_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		ON CONFLICT (product_id, captured_at) DO NOTHING
	`,
		string(s.ProductID), s.CapturedAt, s.PriceCurrent, s.PriceOriginal, s.LowestNew, s.LowestUsed,
		s.Currency, s.CouponPercent, s.CouponAmount, s.PrimaryRank, s.PrimaryRankCat,
		s.SecondaryRank, nullIfEmpty(s.SecondaryRankCat), string(s.StockStatus), s.SellerCount, string(s.Fulfillment),
		s.RatingAverage, s.RatingCount, s.ReviewCount, ratingDist,
		s.PriceDelta, s.PriceDeltaPercent, s.RankDelta, s.RankDeltaPercent, s.ReviewCountDelta, s.SessionID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *snapshotRepo) dispatchEvents(ctx context.Context, tx *sqlx.Tx, before, after domain.Snapshot) error {
	if evt := r.detector.DetectPrice(before, after); evt != nil {
		if err := insertPriceEventTx(ctx, tx, *evt); err != nil {
			return err
		}
	}
	if evt := r.detector.DetectRank(before, after); evt != nil {
		if err := insertRankEventTx(ctx, tx, *evt); err != nil {
			return err
		}
	}
	if evt := r.detector.DetectStock(before, after); evt != nil {
		if err := insertStockEventTx(ctx, tx, *evt); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the most recent snapshot on record for id, or nil if
// the product has never been observed.
func (r *snapshotRepo) Latest(ctx context.Context, id domain.ProductID) (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row snapshotRow
	err := r.db.GetContext(ctx, &row, `
		SELECT product_id, captured_at, price_current, price_original, lowest_new, lowest_used, currency,
			coupon_percent, coupon_amount, primary_rank, primary_rank_category, secondary_rank,
			secondary_rank_category, stock_status, seller_count, fulfillment, rating_average, rating_count,
			review_count, rating_distribution, price_delta, price_delta_percent, rank_delta,
			rank_delta_percent, review_count_delta, session_id
		FROM snapshots WHERE product_id = $1 ORDER BY captured_at DESC LIMIT 1
	`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s: %w", id, err)
	}
	return rowToSnapshot(row)
}

func (r *snapshotRepo) latestTx(ctx context.Context, tx *sqlx.Tx, id domain.ProductID) (*domain.Snapshot, error) {
	var row snapshotRow
	err := tx.GetContext(ctx, &row, `
		SELECT product_id, captured_at, price_current, price_original, lowest_new, lowest_used, currency,
			coupon_percent, coupon_amount, primary_rank, primary_rank_category, secondary_rank,
			secondary_rank_category, stock_status, seller_count, fulfillment, rating_average, rating_count,
			review_count, rating_distribution, price_delta, price_delta_percent, rank_delta,
			rank_delta_percent, review_count_delta, session_id
		FROM snapshots WHERE product_id = $1 ORDER BY captured_at DESC LIMIT 1
	`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToSnapshot(row)
}

// ListRange returns every snapshot for id captured within tr, oldest first.
func (r *snapshotRepo) ListRange(ctx context.Context, id domain.ProductID, tr store.TimeRange) ([]domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []snapshotRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT product_id, captured_at, price_current, price_original, lowest_new, lowest_used, currency,
			coupon_percent, coupon_amount, primary_rank, primary_rank_category, secondary_rank,
			secondary_rank_category, stock_status, seller_count, fulfillment, rating_average, rating_count,
			review_count, rating_distribution, price_delta, price_delta_percent, rank_delta,
			rank_delta_percent, review_count_delta, session_id
		FROM snapshots WHERE product_id = $1 AND captured_at BETWEEN $2 AND $3
		ORDER BY captured_at ASC
	`, string(id), tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", id, err)
	}

	snaps := make([]domain.Snapshot, 0, len(rows))
	for _, row := range rows {
		s, err := rowToSnapshot(row)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *s)
	}
	return snaps, nil
}

func rowToSnapshot(row snapshotRow) (*domain.Snapshot, error) {
	s := &domain.Snapshot{
		ProductID:        domain.ProductID(row.ProductID),
		CapturedAt:       row.CapturedAt,
		Currency:         row.Currency,
		PrimaryRankCat:   row.PrimaryRankCat,
		StockStatus:      domain.StockStatus(row.StockStatus),
		Fulfillment:      domain.Fulfillment(row.Fulfillment),
		SessionID:        row.SessionID,
	}
	s.PriceCurrent = nullFloatPtr(row.PriceCurrent)
	s.PriceOriginal = nullFloatPtr(row.PriceOriginal)
	s.LowestNew = nullFloatPtr(row.LowestNew)
	s.LowestUsed = nullFloatPtr(row.LowestUsed)
	s.CouponPercent = nullFloatPtr(row.CouponPercent)
	s.CouponAmount = nullFloatPtr(row.CouponAmount)
	s.PrimaryRank = nullIntPtr(row.PrimaryRank)
	s.SecondaryRank = nullIntPtr(row.SecondaryRank)
	if row.SecondaryRankCat.Valid {
		s.SecondaryRankCat = row.SecondaryRankCat.String
	}
	s.SellerCount = nullIntPtr(row.SellerCount)
	s.RatingAverage = nullFloatPtr(row.RatingAverage)
	s.RatingCount = nullIntPtr(row.RatingCount)
	s.ReviewCount = nullIntPtr(row.ReviewCount)
	s.PriceDelta = nullFloatPtr(row.PriceDelta)
	s.PriceDeltaPercent = nullFloatPtr(row.PriceDeltaPercent)
	s.RankDelta = nullIntPtr(row.RankDelta)
	s.RankDeltaPercent = nullFloatPtr(row.RankDeltaPercent)
	s.ReviewCountDelta = nullIntPtr(row.ReviewCountDelta)

	if len(row.RatingDist) > 0 {
		var dist domain.RatingDistribution
		if err := json.Unmarshal(row.RatingDist, &dist); err != nil {
			return nil, fmt.Errorf("unmarshal rating distribution for %s: %w", row.ProductID, err)
		}
		s.RatingDist = &dist
	}
	return s, nil
}

func nullFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
