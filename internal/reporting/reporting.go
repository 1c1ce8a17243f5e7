// Package reporting produces a read-only post-run summary over the catalog
// the Bulk Upsert Coordinator wrote to: counts of products and offer lines
// per supplier, and per distinct "Brand" dynamic property value. Adapted
// from the teacher's internal/analytics processor's independent
// database/sql connection idiom, generalized from PO-specific brand/store
// resolution to a generic dynamic-property rollup over the
// Supplier/Offer/Product/ProductOffer schema, and rebuilt on jmoiron/sqlx
// (StructScan) rather than raw database/sql, per SPEC_FULL.md's Bulk Upsert
// Coordinator supplement.
package reporting

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// SupplierSummary is one supplier's catalog footprint after a run.
type SupplierSummary struct {
	SupplierName      string `db:"name"`
	OfferCount        int    `db:"offer_count"`
	ProductOfferCount int    `db:"product_offer_count"`
}

// BrandSummary counts ProductOffer rows per distinct "Brand" value found in
// the matching Product's dynamic_properties, for suppliers whose format
// extracts a Brand property. Products without a Brand key are excluded.
type BrandSummary struct {
	Brand string `db:"brand"`
	Count int    `db:"count"`
}

// Reporter runs read-only rollups over the catalog tables. It opens its own
// *sqlx.DB via lib/pq rather than reusing the Bulk Upsert Coordinator's pgx
// pool, mirroring the teacher's analytics processor's independent
// connection.
type Reporter struct {
	db *sqlx.DB
}

// Open connects to dsn via lib/pq and verifies connectivity.
func Open(dsn string) (*Reporter, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("reporting: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("reporting: ping: %w", err)
	}
	return &Reporter{db: db}, nil
}

// Close releases the underlying connection pool.
func (r *Reporter) Close() error { return r.db.Close() }

// SummarizeSuppliers reports offer and product-offer-line counts per
// supplier, across the whole catalog (not scoped to one run).
func (r *Reporter) SummarizeSuppliers(ctx context.Context) ([]SupplierSummary, error) {
	const q = `
		SELECT s.name AS name,
		       count(DISTINCT o.id)  AS offer_count,
		       count(po.id)          AS product_offer_count
		FROM suppliers s
		LEFT JOIN offers o ON o.supplier_id = s.id
		LEFT JOIN product_offers po ON po.offer_id = o.id
		GROUP BY s.name
		ORDER BY s.name`

	var out []SupplierSummary
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("summarize suppliers: %w", err)
	}
	return out, nil
}

// SummarizeBrands reports product-offer-line counts grouped by the
// Product.dynamic_properties->>'Brand' value, for products that carry one.
func (r *Reporter) SummarizeBrands(ctx context.Context) ([]BrandSummary, error) {
	const q = `
		SELECT p.dynamic_properties ->> 'Brand' AS brand, count(*) AS count
		FROM product_offers po
		JOIN products p ON p.id = po.product_id
		WHERE p.dynamic_properties ? 'Brand'
		GROUP BY brand
		ORDER BY count(*) DESC`

	var out []BrandSummary
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("summarize brands: %w", err)
	}
	return out, nil
}
