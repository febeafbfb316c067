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

type productRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewProductRepo returns a ProductRepo backed by the catalog table.
func NewProductRepo(db *sqlx.DB, timeout time.Duration) *productRepo {
	return &productRepo{db: db, timeout: timeout}
}

type productRow struct {
	ID               string         `db:"id"`
	Title            sql.NullString `db:"title"`
	Brand            string         `db:"brand"`
	Manufacturer     string         `db:"manufacturer"`
	CategoryID       string         `db:"category_id"`
	CategoryPath     pq.StringArray `db:"category_path"`
	Dimensions       []byte         `db:"dimensions"`
	Active           bool           `db:"active"`
	TrackingPriority int            `db:"tracking_priority"`
	FirstSeenAt      time.Time      `db:"first_seen_at"`
	LastSeenAt       time.Time      `db:"last_seen_at"`
	LastUpdatedAt    time.Time      `db:"last_updated_at"`
	SoftDeleted      bool           `db:"soft_deleted"`
}

// Upsert inserts a new catalog row or refreshes the mutable fields of
// an existing one, bumping LastSeenAt/LastUpdatedAt to now.
func (r *productRepo) Upsert(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var dims []byte
	if p.Dimensions != nil {
		var err error
		dims, err = json.Marshal(p.Dimensions)
		if err != nil {
			return fmt.Errorf("marshal dimensions: %w", err)
		}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO products (id, title, brand, manufacturer, category_id, category_path,
			dimensions, active, tracking_priority, first_seen_at, last_seen_at, last_updated_at, soft_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, $10, false)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			brand = EXCLUDED.brand,
			manufacturer = EXCLUDED.manufacturer,
			category_id = EXCLUDED.category_id,
			category_path = EXCLUDED.category_path,
			dimensions = EXCLUDED.dimensions,
			active = EXCLUDED.active,
			tracking_priority = EXCLUDED.tracking_priority,
			last_seen_at = EXCLUDED.last_updated_at,
			last_updated_at = EXCLUDED.last_updated_at
	`
	var title sql.NullString
	if p.Title != nil {
		title = sql.NullString{String: *p.Title, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		string(p.ID), title, p.Brand, p.Manufacturer, p.CategoryID, pq.Array(p.CategoryPath),
		dims, p.Active, p.TrackingPriority, now,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate product %s: %w", p.ID, err)
		}
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

// Get returns a single product by ID, or nil if not found or soft-deleted.
func (r *productRepo) Get(ctx context.Context, id domain.ProductID) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row productRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, title, brand, manufacturer, category_id, category_path, dimensions,
			active, tracking_priority, first_seen_at, last_seen_at, last_updated_at, soft_deleted
		FROM products WHERE id = $1 AND soft_deleted = false
	`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return rowToProduct(row)
}

// ListActive returns every active, non-soft-deleted product in a category.
func (r *productRepo) ListActive(ctx context.Context, categoryID string) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []productRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, title, brand, manufacturer, category_id, category_path, dimensions,
			active, tracking_priority, first_seen_at, last_seen_at, last_updated_at, soft_deleted
		FROM products WHERE category_id = $1 AND active = true AND soft_deleted = false
		ORDER BY id
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list active products for category %s: %w", categoryID, err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := rowToProduct(row)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// SoftDelete marks a product as no longer tracked without physically
// removing its snapshot history.
func (r *productRepo) SoftDelete(ctx context.Context, id domain.ProductID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE products SET soft_deleted = true, active = false WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("soft delete product %s: %w", id, err)
	}
	return nil
}

func rowToProduct(row productRow) (*domain.Product, error) {
	p := &domain.Product{
		ID:               domain.ProductID(row.ID),
		Brand:            row.Brand,
		Manufacturer:     row.Manufacturer,
		CategoryID:       row.CategoryID,
		CategoryPath:     []string(row.CategoryPath),
		Active:           row.Active,
		TrackingPriority: row.TrackingPriority,
		FirstSeenAt:      row.FirstSeenAt,
		LastSeenAt:       row.LastSeenAt,
		LastUpdatedAt:    row.LastUpdatedAt,
		SoftDeleted:      row.SoftDeleted,
	}
	if row.Title.Valid {
		title := row.Title.String
		p.Title = &title
	}
	if len(row.Dimensions) > 0 {
		var dims domain.Dimensions
		if err := json.Unmarshal(row.Dimensions, &dims); err != nil {
			return nil, fmt.Errorf("unmarshal dimensions for %s: %w", row.ID, err)
		}
		p.Dimensions = &dims
	}
	return p, nil
}
