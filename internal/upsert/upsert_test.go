package upsert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestrul/sacks/internal/domain"
	"github.com/thestrul/sacks/internal/normalizer"
	"github.com/thestrul/sacks/internal/store"
)

// fakeTx is an in-memory store.Tx double for exercising upsert.Run's merge
// logic without a live database.
type fakeTx struct {
	suppliers      map[string]*domain.Supplier
	offerNames     map[string]bool
	existingByEAN  map[string]*domain.Product
	insertedOffers []*domain.ProductOffer
	nextProductID  int64
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		suppliers:     make(map[string]*domain.Supplier),
		offerNames:    make(map[string]bool),
		existingByEAN: make(map[string]*domain.Product),
		nextProductID: 100,
	}
}

func (f *fakeTx) GetOrCreateSupplier(_ context.Context, name string) (*domain.Supplier, error) {
	if s, ok := f.suppliers[name]; ok {
		return s, nil
	}
	s := &domain.Supplier{ID: int64(len(f.suppliers) + 1), Name: name}
	f.suppliers[name] = s
	return s, nil
}

func (f *fakeTx) OfferExists(_ context.Context, supplierID int64, offerName string) (bool, error) {
	return f.offerNames[offerName], nil
}

func (f *fakeTx) CreateOffer(_ context.Context, supplierID int64, offerName, currency, description string) (*domain.Offer, error) {
	f.offerNames[offerName] = true
	return &domain.Offer{ID: 1, SupplierID: supplierID, OfferName: offerName, Currency: currency}, nil
}

func (f *fakeTx) GetProductsByEANs(_ context.Context, eans []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(eans))
	for _, e := range eans {
		if p, ok := f.existingByEAN[e]; ok {
			out[e] = p
		}
	}
	return out, nil
}

func (f *fakeTx) BulkInsertProducts(_ context.Context, products []*domain.Product) error {
	for _, p := range products {
		p.ID = f.nextProductID
		f.nextProductID++
	}
	return nil
}

func (f *fakeTx) BulkInsertProductOffers(_ context.Context, rows []*domain.ProductOffer) error {
	f.insertedOffers = append(f.insertedOffers, rows...)
	return nil
}

// fakeStore runs fn against a single shared fakeTx, mirroring the one-Tx-
// per-file contract store.Store promises.
type fakeStore struct {
	tx *fakeTx
}

func newFakeStore() *fakeStore { return &fakeStore{tx: newFakeTx()} }

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return fn(ctx, s.tx)
}

func (s *fakeStore) Close() {}

func ean(s string) *string { return &s }

func rowWithEAN(name, eanVal, brand string) normalizer.NormalizedRow {
	props := domain.NewPropertyMap()
	if brand != "" {
		props.Set("Brand", brand)
	}
	return normalizer.NormalizedRow{
		Product: &domain.Product{Name: name, EAN: ean(eanVal), DynamicProperties: props},
		Offer: normalizer.OfferLine{
			Price: 9.99, Quantity: 1, Currency: "USD",
			OfferProperties: domain.NewPropertyMap(),
		},
	}
}

func TestRunInsertsNewProductsAndOffers(t *testing.T) {
	var _ store.Store = (*fakeStore)(nil)
	s := newFakeStore()

	rows := []normalizer.NormalizedRow{
		rowWithEAN("Widget", "111", "Acme"),
		rowWithEAN("Gadget", "222", "Acme"),
	}

	result, err := Run(context.Background(), s, "Acme", "USD", "/uploads/acme_jan.csv", rows)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProductsCreated)
	assert.Equal(t, 0, result.ProductsUpdated)
	assert.Equal(t, 2, result.OfferLinesCreated)
	assert.Len(t, s.tx.insertedOffers, 2)
}

func TestRunRejectsDuplicateOffer(t *testing.T) {
	s := newFakeStore()
	rows := []normalizer.NormalizedRow{rowWithEAN("Widget", "111", "")}

	_, err := Run(context.Background(), s, "Acme", "USD", "/uploads/acme_jan.csv", rows)
	require.NoError(t, err)

	_, err = Run(context.Background(), s, "Acme", "USD", "/uploads/acme_jan.csv", rows)
	require.Error(t, err)
	var dup *domain.DuplicateOffer
	assert.ErrorAs(t, err, &dup)
}

func TestRunMergesDynamicPropertiesOnExistingProductByEAN(t *testing.T) {
	s := newFakeStore()
	existingProps := domain.NewPropertyMap()
	existingProps.Set("Brand", "")
	existingProps.Set("Size", "250ml")
	s.tx.existingByEAN["111"] = &domain.Product{ID: 42, Name: "Widget", EAN: ean("111"), DynamicProperties: existingProps}

	rows := []normalizer.NormalizedRow{rowWithEAN("Widget", "111", "Acme")}

	result, err := Run(context.Background(), s, "Acme", "USD", "/uploads/acme_jan.csv", rows)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ProductsCreated)
	assert.Equal(t, 1, result.ProductsUpdated)

	brand, _ := s.tx.existingByEAN["111"].DynamicProperties.Get("Brand")
	assert.Equal(t, "Acme", brand, "an empty existing value is overwritten by the incoming one")

	size, _ := s.tx.existingByEAN["111"].DynamicProperties.Get("Size")
	assert.Equal(t, "250ml", size, "a non-empty existing value is never clobbered")

	require.Len(t, s.tx.insertedOffers, 1)
	assert.Equal(t, int64(42), s.tx.insertedOffers[0].ProductID)
}

func TestRunSkipsDroppedRows(t *testing.T) {
	s := newFakeStore()
	rows := []normalizer.NormalizedRow{
		rowWithEAN("Widget", "111", ""),
		{Dropped: &domain.RowDropped{Row: 3, Reason: "missing Product.Name"}},
	}

	result, err := Run(context.Background(), s, "Acme", "USD", "/uploads/acme_jan.csv", rows)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProductsCreated)
	assert.Equal(t, 1, result.OfferLinesCreated)
}
