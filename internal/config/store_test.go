package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

const validMainDoc = `{
	"Version": "1",
	"Lookups": {"Colors": {"Blue": "BLU"}},
	"Suppliers": [{
		"Name": "Acme",
		"Currency": "USD",
		"FileStructure": {"Detection": {"FileNamePatterns": ["^acme_.*\\.csv$"]}},
		"ParserConfig": {"ColumnRules": [{"Column":"A","Actions":[{"Op":"Assign","Output":"Product.Name"}]}]}
	}]
}`

func TestStoreLoadsMergedAggregate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "suppliers.json", validMainDoc)

	s, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)

	suppliers := s.Suppliers()
	require.Len(t, suppliers, 1)
	assert.Equal(t, "Acme", suppliers[0].Name)

	sc, ok := s.GetSupplier("acme")
	require.True(t, ok, "GetSupplier matches case-insensitively")
	assert.Equal(t, "USD", sc.Currency)
}

func TestStoreMergesStandaloneSupplierOverEmbedded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "suppliers.json", validMainDoc)
	writeFile(t, dir, "acme.json", `{
		"Name": "Acme",
		"Currency": "EUR",
		"FileStructure": {"Detection": {"FileNamePatterns": ["^acme_.*\\.csv$"]}},
		"ParserConfig": {"ColumnRules": [{"Column":"A","Actions":[{"Op":"Assign","Output":"Product.Name"}]}]}
	}`)

	s, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)

	sc, ok := s.GetSupplier("Acme")
	require.True(t, ok)
	assert.Equal(t, "EUR", sc.Currency, "the standalone file should win over the embedded supplier of the same name")
}

func TestStoreFailsWithoutMainDocument(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStore(dir, zerolog.Nop())
	assert.Error(t, err)
}

func TestStoreRejectsInvalidCurrency(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "suppliers.json", `{
		"Suppliers": [{"Name": "Acme", "Currency": "US"}]
	}`)

	_, err := NewStore(dir, zerolog.Nop())
	assert.Error(t, err)
}

func TestValidateRejectsUnknownLookupTableReference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "suppliers.json", `{
		"Suppliers": [{
			"Name": "Acme",
			"Currency": "USD",
			"ParserConfig": {"ColumnRules": [{"Column":"A","Actions":[{"Op":"Map","Output":"Product.Category","Parameters":{"Table":"Missing"}}]}]}
		}]
	}`)

	_, err := NewStore(dir, zerolog.Nop())
	assert.Error(t, err)
}

func TestStoreReloadedChannelClosesOnReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "suppliers.json", validMainDoc)

	s, err := NewStore(dir, zerolog.Nop())
	require.NoError(t, err)

	ch := s.Reloaded()
	require.NoError(t, s.reload())

	select {
	case <-ch:
	default:
		t.Fatal("expected Reloaded channel to be closed after reload")
	}
}
