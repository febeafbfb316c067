// Package store defines the persistence-layer interfaces every
// orchestrator phase depends on, mirroring the way package persistence
// separates its Trade/Regime/Premove repos from the sqlx implementation
// underneath. The postgres subpackage is the only implementation; the
// cache subpackage sits alongside it as the freshness-check fast path.
package store

import (
	"context"
	"time"

	"github.com/oppscan/oppscan/internal/domain"
)

// TimeRange bounds a time-windowed query.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// ProductRepo persists the stable catalog row.
type ProductRepo interface {
	// Upsert inserts a new catalog row or updates the mutable fields of
	// an existing one, bumping LastSeenAt/LastUpdatedAt.
	Upsert(ctx context.Context, p domain.Product) error
	Get(ctx context.Context, id domain.ProductID) (*domain.Product, error)
	ListActive(ctx context.Context, categoryID string) ([]domain.Product, error)
	SoftDelete(ctx context.Context, id domain.ProductID) error
}

// SnapshotRepo persists append-only per-observation records. Insert
// computes deltas against the product's prior snapshot and dispatches
// price/rank/stock events in the same transaction.
type SnapshotRepo interface {
	Insert(ctx context.Context, s domain.Snapshot) error
	Latest(ctx context.Context, id domain.ProductID) (*domain.Snapshot, error)
	ListRange(ctx context.Context, id domain.ProductID, tr TimeRange) ([]domain.Snapshot, error)
}

// RunRepo persists per-invocation audit records.
type RunRepo interface {
	Create(ctx context.Context, r domain.PipelineRun) error
	Update(ctx context.Context, r domain.PipelineRun) error
	Get(ctx context.Context, id string) (*domain.PipelineRun, error)
	Latest(ctx context.Context, limit int) ([]domain.PipelineRun, error)
}

// ArtifactRepo persists per-(run, product) scoring records.
type ArtifactRepo interface {
	InsertBatch(ctx context.Context, artifacts []domain.OpportunityArtifact) error
	ListByRun(ctx context.Context, runID string) ([]domain.OpportunityArtifact, error)
	GetByRunAndProduct(ctx context.Context, runID string, id domain.ProductID) (*domain.OpportunityArtifact, error)
}

// ShortlistRepo persists per-run ordered selections. At most one row
// system-wide ever has Active == true.
type ShortlistRepo interface {
	Insert(ctx context.Context, s domain.ShortlistSnapshot) error
	ActivateOnly(ctx context.Context, id int64) error
	GetActive(ctx context.Context) (*domain.ShortlistSnapshot, error)
	GetByRun(ctx context.Context, runID string) (*domain.ShortlistSnapshot, error)
}

// ReviewRepo persists raw reviews and their derived defect/wish/
// improvement aggregates.
type ReviewRepo interface {
	InsertBatch(ctx context.Context, reviews []domain.Review) (int, error)
	ListUnanalyzed(ctx context.Context, id domain.ProductID, limit int) ([]domain.Review, error)
	MarkAnalyzed(ctx context.Context, ids []domain.ReviewID, at time.Time) error

	UpsertDefectSignals(ctx context.Context, signals []domain.ReviewDefectSignal) error
	UpsertFeatureRequests(ctx context.Context, requests []domain.ReviewFeatureRequest) error
	UpsertImprovementProfile(ctx context.Context, profile domain.ImprovementProfile) error
	GetImprovementProfile(ctx context.Context, runID string, id domain.ProductID) (*domain.ImprovementProfile, error)
}

// EventRepo persists the three event kinds emitted by the detection
// engine in package events.
type EventRepo interface {
	InsertPriceEvents(ctx context.Context, events []domain.PriceEvent) error
	InsertRankEvents(ctx context.Context, events []domain.RankEvent) error
	InsertStockEvents(ctx context.Context, events []domain.StockEvent) error
	ListRecentForProduct(ctx context.Context, id domain.ProductID, since time.Time) ([]domain.PriceEvent, []domain.RankEvent, []domain.StockEvent, error)
}

// Aggregates refreshes the per-product snapshot-statistics materialized
// views. The scorer and shortlist selector do not read them; scoring
// inputs are built from snapshot history.
type Aggregates interface {
	RefreshAggregates(ctx context.Context) error
}
