// Package upsert implements the Bulk Upsert Coordinator: merging a file's
// normalized rows into the catalog store under a single transaction, per
// spec §4.5.
package upsert

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/thestrul/sacks/internal/domain"
	"github.com/thestrul/sacks/internal/normalizer"
	"github.com/thestrul/sacks/internal/store"
)

// Result summarizes one file's upsert outcome for the orchestrator's
// ProcessingResult.
type Result struct {
	ProductsCreated   int
	ProductsUpdated   int
	OfferLinesCreated int
}

// Run merges rows into the store within one transaction, scoped to the
// offer identified by (supplierName, filePath). A pre-existing
// (supplierID, offerName) pair aborts the whole run with *domain.DuplicateOffer
// before any write happens, per the idempotence property of §4.5.
func Run(ctx context.Context, st store.Store, supplierName, currency, filePath string, rows []normalizer.NormalizedRow) (Result, error) {
	var result Result

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		supplier, err := tx.GetOrCreateSupplier(ctx, supplierName)
		if err != nil {
			return err
		}

		offerName := fmt.Sprintf("%s - %s", supplierName, filepath.Base(filePath))
		exists, err := tx.OfferExists(ctx, supplier.ID, offerName)
		if err != nil {
			return err
		}
		if exists {
			return &domain.DuplicateOffer{Supplier: supplierName, OfferName: offerName}
		}

		offer, err := tx.CreateOffer(ctx, supplier.ID, offerName, currency, "")
		if err != nil {
			return err
		}

		live := liveRows(rows)

		eans := distinctEANs(live)
		existing, err := tx.GetProductsByEANs(ctx, eans)
		if err != nil {
			return err
		}

		var newProducts []*domain.Product
		// productFor[i] resolves live[i]'s Product, possibly pointing at
		// an entry in newProducts whose ID isn't assigned yet.
		productFor := make([]*domain.Product, len(live))

		for i, row := range live {
			if row.Product.EAN != nil {
				if ex, ok := existing[*row.Product.EAN]; ok {
					mergeDynamicProperties(ex, row.Product)
					productFor[i] = ex
					result.ProductsUpdated++
					continue
				}
			}
			newProducts = append(newProducts, row.Product)
			productFor[i] = row.Product
		}

		if err := tx.BulkInsertProducts(ctx, newProducts); err != nil {
			return err
		}
		result.ProductsCreated = len(newProducts)

		productOffers := make([]*domain.ProductOffer, 0, len(live))
		for i, row := range live {
			p := productFor[i]
			productOffers = append(productOffers, &domain.ProductOffer{
				ProductID:       p.ID,
				OfferID:         offer.ID,
				Price:           row.Offer.Price,
				Quantity:        row.Offer.Quantity,
				Currency:        row.Offer.Currency,
				Description:     row.Offer.Description,
				OfferProperties: row.Offer.OfferProperties,
			})
		}

		if err := tx.BulkInsertProductOffers(ctx, productOffers); err != nil {
			return err
		}
		result.OfferLinesCreated = len(productOffers)

		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func liveRows(rows []normalizer.NormalizedRow) []normalizer.NormalizedRow {
	out := make([]normalizer.NormalizedRow, 0, len(rows))
	for _, r := range rows {
		if r.Dropped == nil {
			out = append(out, r)
		}
	}
	return out
}

func distinctEANs(rows []normalizer.NormalizedRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if r.Product.EAN == nil {
			continue
		}
		ean := *r.Product.EAN
		if !seen[ean] {
			seen[ean] = true
			out = append(out, ean)
		}
	}
	return out
}

// mergeDynamicProperties folds incoming.DynamicProperties into existing:
// keys absent from existing are added, and an existing key is overwritten
// only if its current value is empty.
func mergeDynamicProperties(existing, incoming *domain.Product) {
	for _, k := range incoming.DynamicProperties.Keys() {
		v, _ := incoming.DynamicProperties.Get(k)
		if cur, ok := existing.DynamicProperties.Get(k); !ok || cur == "" {
			existing.DynamicProperties.Set(k, v)
		}
	}
}
