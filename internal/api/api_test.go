package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestrul/sacks/internal/domain"
	"github.com/thestrul/sacks/internal/gridreader"
	"github.com/thestrul/sacks/internal/matcher"
	"github.com/thestrul/sacks/internal/orchestrator"
	"github.com/thestrul/sacks/internal/store"
)

// fakeResultCache is an in-memory cache.ResultCache double, standing in for
// the redis-backed implementation so Process->Status round trips don't need
// a live redis instance.
type fakeResultCache struct{ results map[string]*orchestrator.ProcessingResult }

func newFakeResultCache() *fakeResultCache {
	return &fakeResultCache{results: make(map[string]*orchestrator.ProcessingResult)}
}

func (c *fakeResultCache) Get(_ context.Context, path string) (*orchestrator.ProcessingResult, bool, error) {
	r, ok := c.results[path]
	return r, ok, nil
}

func (c *fakeResultCache) Set(_ context.Context, path string, result *orchestrator.ProcessingResult) error {
	c.results[path] = result
	return nil
}

func (c *fakeResultCache) InvalidateAll(_ context.Context) error {
	c.results = make(map[string]*orchestrator.ProcessingResult)
	return nil
}

func init() { gin.SetMode(gin.TestMode) }

const acmeConfigJSON = `{
	"Name": "Acme",
	"Currency": "USD",
	"FileStructure": {
		"DataStartRowIndex": 1,
		"Detection": {"FileNamePatterns": ["^acme_.*\\.csv$"]}
	},
	"ParserConfig": {
		"ColumnRules": [{"Column": "0", "Actions": [{"Op": "Assign", "Output": "Product.Name"}]}]
	}
}`

type fakeSupplierSource struct{ suppliers []*domain.SupplierConfig }

func (f *fakeSupplierSource) Suppliers() []*domain.SupplierConfig { return f.suppliers }

// fakeTx commits every write unconditionally, enough to drive ProcessFile
// end to end through the HTTP handler without a live database.
type fakeTx struct{ nextID int64 }

func (f *fakeTx) GetOrCreateSupplier(_ context.Context, name string) (*domain.Supplier, error) {
	return &domain.Supplier{ID: 1, Name: name}, nil
}

func (f *fakeTx) OfferExists(_ context.Context, _ int64, _ string) (bool, error) { return false, nil }

func (f *fakeTx) CreateOffer(_ context.Context, supplierID int64, offerName, currency, description string) (*domain.Offer, error) {
	return &domain.Offer{ID: 1, SupplierID: supplierID, OfferName: offerName, Currency: currency}, nil
}

func (f *fakeTx) GetProductsByEANs(_ context.Context, _ []string) (map[string]*domain.Product, error) {
	return map[string]*domain.Product{}, nil
}

func (f *fakeTx) BulkInsertProducts(_ context.Context, products []*domain.Product) error {
	for _, p := range products {
		f.nextID++
		p.ID = f.nextID
	}
	return nil
}

func (f *fakeTx) BulkInsertProductOffers(_ context.Context, _ []*domain.ProductOffer) error { return nil }

type fakeStore struct{ tx *fakeTx }

func newFakeStore() *fakeStore { return &fakeStore{tx: &fakeTx{}} }

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return fn(ctx, s.tx)
}

func (s *fakeStore) Close() {}

var _ store.Store = (*fakeStore)(nil)

func newTestOrchestrator(t *testing.T) (*orchestrator.Orchestrator, string) {
	t.Helper()
	var sc domain.SupplierConfig
	require.NoError(t, json.Unmarshal([]byte(acmeConfigJSON), &sc))
	m := matcher.New(&fakeSupplierSource{suppliers: []*domain.SupplierConfig{&sc}})

	dir := t.TempDir()
	path := filepath.Join(dir, "acme_jan.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name\nWidget\n"), 0o644))

	return orchestrator.New(gridreader.NewReader(), m, newFakeStore(), false, zerolog.Nop()), path
}

func TestHealthEndpoint(t *testing.T) {
	router := NewRouter(&Services{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestProcessEndpointRejectsMissingPath(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	router := NewRouter(&Services{Orchestrator: orch})

	req := httptest.NewRequest(http.MethodPost, "/v1/process", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessEndpointRunsFileThenStatusReturnsCachedResult(t *testing.T) {
	orch, path := newTestOrchestrator(t)
	router := NewRouter(&Services{Orchestrator: orch, ResultCache: newFakeResultCache()})

	body, err := json.Marshal(map[string]string{"path": path})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/process", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/process/status?path="+path, nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, statusReq)

	assert.Equal(t, http.StatusOK, statusRec.Code)
	assert.Contains(t, statusRec.Body.String(), `"Status":"Ok"`)
}

func TestProcessStatusRequiresPathParam(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	router := NewRouter(&Services{Orchestrator: orch})

	req := httptest.NewRequest(http.MethodGet, "/v1/process/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessStatusReturnsNotFoundWhenUncached(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	router := NewRouter(&Services{Orchestrator: orch})

	req := httptest.NewRequest(http.MethodGet, "/v1/process/status?path=/never/processed.csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
