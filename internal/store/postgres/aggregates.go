package postgres

import (
	"context"
	"fmt"
)

// RefreshAggregates recomputes the per-product latest-snapshot, 7-day,
// and 30-day materialized views CONCURRENTLY, so readers never block
// behind the refresh. Each view requires a unique index for the
// concurrent form to be usable; that is a migration-time concern, not
// this method's.
func (s *Store) RefreshAggregates(ctx context.Context) error {
	return s.breakers.Call(ctx, "refresh-aggregates", func(ctx context.Context) error {
		views := []string{
			"product_latest_snapshot",
			"product_stats_7d",
			"product_stats_30d",
		}
		for _, view := range views {
			if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", view)); err != nil {
				return fmt.Errorf("refresh %s: %w", view, err)
			}
		}
		return nil
	})
}
