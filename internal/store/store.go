// Package store defines the persistence contract the Bulk Upsert
// Coordinator writes through; internal/store/postgres provides the pgx-
// backed implementation.
package store

import (
	"context"

	"github.com/thestrul/sacks/internal/domain"
)

// Tx is one transactional unit of work bound to a single file-processing
// run. Every write the Bulk Upsert Coordinator makes for one file goes
// through the same Tx, so a Commit failure rolls all of it back together.
type Tx interface {
	// GetOrCreateSupplier resolves Supplier by case-insensitive name,
	// creating it if absent.
	GetOrCreateSupplier(ctx context.Context, name string) (*domain.Supplier, error)

	// OfferExists reports whether (supplierID, offerName) already has an
	// Offer row.
	OfferExists(ctx context.Context, supplierID int64, offerName string) (bool, error)

	// CreateOffer inserts a new Offer row and returns it with its ID set.
	CreateOffer(ctx context.Context, supplierID int64, offerName, currency, description string) (*domain.Offer, error)

	// GetProductsByEANs fetches every existing Product whose EAN is in
	// eans, in a single round trip, keyed by EAN.
	GetProductsByEANs(ctx context.Context, eans []string) (map[string]*domain.Product, error)

	// BulkInsertProducts inserts every product in products, assigning IDs
	// in place.
	BulkInsertProducts(ctx context.Context, products []*domain.Product) error

	// BulkInsertProductOffers inserts every row in rows, each pointing at
	// its own OfferID and (already-resolved) ProductID.
	BulkInsertProductOffers(ctx context.Context, rows []*domain.ProductOffer) error
}

// Store opens transactional units of work, one per file processed.
type Store interface {
	// WithTx runs fn inside a single database transaction: fn's return
	// value of nil commits, any error rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases the underlying connection pool.
	Close()
}
