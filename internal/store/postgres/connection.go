// Package postgres implements every store.* repository interface
// against a single Postgres database via sqlx and lib/pq, following
// the teacher's connection-pool and per-repo-timeout conventions.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/oppscan/oppscan/internal/events"
	"github.com/oppscan/oppscan/internal/net/circuit"
	"github.com/oppscan/oppscan/internal/store"
)

// datastoreBreakerConfig bounds how long a stuck datastore operation is
// tolerated before its breaker trips, independent of the gobreaker
// instance guarding the external-API client in package provider.
var datastoreBreakerConfig = circuit.Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          30 * time.Second,
	RequestTimeout:   15 * time.Second,
}

// Store bundles every repository against one pooled connection, each
// exposed through its store.* interface so callers never depend on
// this package's concrete types.
type Store struct {
	DB         *sqlx.DB
	Products   store.ProductRepo
	Snapshots  store.SnapshotRepo
	Runs       store.RunRepo
	Artifacts  store.ArtifactRepo
	Shortlists store.ShortlistRepo
	Reviews    store.ReviewRepo
	Events     store.EventRepo

	breakers *circuit.Manager
}

// Open connects to dsn, configures the pool, and wires every repo with
// the shared query timeout.
func Open(ctx context.Context, dsn string, maxOpenConns int, queryTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	breakers := circuit.NewManager()
	breakers.AddOperation("insert-snapshot", datastoreBreakerConfig)
	breakers.AddOperation("refresh-aggregates", datastoreBreakerConfig)

	detector := events.NewDetector()
	return &Store{
		DB:         db,
		Products:   NewProductRepo(db, queryTimeout),
		Snapshots:  NewSnapshotRepo(db, queryTimeout, detector, breakers),
		Runs:       NewRunRepo(db, queryTimeout),
		Artifacts:  NewArtifactRepo(db, queryTimeout),
		Shortlists: NewShortlistRepo(db, queryTimeout),
		Reviews:    NewReviewRepo(db, queryTimeout),
		Events:     NewEventRepo(db, queryTimeout),
		breakers:   breakers,
	}, nil
}

// BreakerStats reports the health of every datastore-operation breaker,
// surfaced through the ops health handler alongside the provider's.
func (s *Store) BreakerStats() map[string]circuit.Stats {
	return s.breakers.Stats()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}
