package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestrul/sacks/internal/domain"
)

func mustAction(t *testing.T, jsonCfg string) *Action {
	t.Helper()
	var cfg domain.ActionConfig
	require.NoError(t, json.Unmarshal([]byte(jsonCfg), &cfg))
	a, err := NewAction(cfg)
	require.NoError(t, err)
	return a
}

func TestActionAssignCopiesInputToOutput(t *testing.T) {
	a := mustAction(t, `{"Op":"Assign","Output":"Product.Name"}`)

	b := NewBag("Widget Deluxe", false)
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.True(t, res.WroteOutput)

	v, _ := b.Get("Product.Name")
	assert.Equal(t, "Widget Deluxe", v)
}

func TestActionFindRegexExtractsNamedGroup(t *testing.T) {
	a := mustAction(t, `{"Op":"Find","Output":"Product.Size","Parameters":{"Pattern":"(?P<value>\\d+)\\s*ml"}}`)

	b := NewBag("Bottle 250ml Blue", false)
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "250", res.Value)
}

func TestActionFindWithRemoveSetsCleanSibling(t *testing.T) {
	a := mustAction(t, `{"Op":"Find","Output":"Product.Size","Parameters":{"Pattern":"\\d+ml","Options":"remove"}}`)

	b := NewBag("Bottle 250ml Blue", false)
	_, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)

	clean, ok := b.GetClean("Product.Size")
	require.True(t, ok)
	assert.Equal(t, "Bottle Blue", clean)
}

func TestActionFindLookupLongestMatch(t *testing.T) {
	supplier := &domain.SupplierConfig{
		Lookups: map[string]map[string]string{
			"Colors": {"Blue": "BLU", "Blue Steel": "BLS"},
		},
	}
	a := mustAction(t, `{"Op":"Find","Output":"Product.Color","Parameters":{"Pattern":"lookup:Colors"}}`)

	b := NewBag("Blue Steel Jacket", false)
	res, err := a.Execute(b, domain.ParserSettings{}, supplier)
	require.NoError(t, err)
	assert.Equal(t, "Blue Steel", res.Value)
}

func TestActionMapLooksUpByInput(t *testing.T) {
	supplier := &domain.SupplierConfig{
		Lookups: map[string]map[string]string{
			"Currencies": {"USD": "US Dollar"},
		},
	}
	a := mustAction(t, `{"Op":"Map","Input":"Currency","Output":"Product.CurrencyName","Parameters":{"Table":"Currencies"}}`)

	b := NewBag("x", false)
	b.Set("Currency", "usd")
	res, err := a.Execute(b, domain.ParserSettings{}, supplier)
	require.NoError(t, err)
	assert.Equal(t, "US Dollar", res.Value)
}

func TestActionSplitProducesArray(t *testing.T) {
	a := mustAction(t, `{"Op":"Split","Output":"Parts","Parameters":{"Delimiter":","}}`)

	b := NewBag("a,b,c", false)
	_, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)

	arr, ok := b.Array("Parts")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, arr)
}

func TestActionSwitchFirstMatchingWhenWins(t *testing.T) {
	a := mustAction(t, `{"Op":"Switch","Output":"Product.Tier","Parameters":{"When:Price > 100":"premium","When:Price > 0":"standard","Default":"unknown"}}`)

	b := NewBag("x", false)
	b.Set("Price", "150")
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "premium", res.Value)
}

func TestActionConvertAppliesExplicitFactor(t *testing.T) {
	a := mustAction(t, `{"Op":"Convert","Output":"Product.Weight","Parameters":{"Factor":"0.001"}}`)

	b := NewBag("2500", false)
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2.5", res.Value)
}

func TestActionConvertAppliesUnitTable(t *testing.T) {
	a := mustAction(t, `{"Op":"Convert","Output":"Product.Weight","Parameters":{"FromUnit":"g","ToUnit":"kg"}}`)

	b := NewBag("2500", false)
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2.5", res.Value)
}

func TestActionConvertNonNumericInputIsNoop(t *testing.T) {
	a := mustAction(t, `{"Op":"Convert","Output":"Product.Weight","Parameters":{"Factor":"2"}}`)

	b := NewBag("not-a-number", false)
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestActionConcatJoinsNonEmptyValues(t *testing.T) {
	a := mustAction(t, `{"Op":"Concat","Output":"Product.FullName","Parameters":{"Keys":"Brand,Name","Separator":" "}}`)

	b := NewBag("x", false)
	b.Set("Brand", "Acme")
	b.Set("Name", "Widget")
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme Widget", res.Value)
}

func TestActionCaseFormat(t *testing.T) {
	a := mustAction(t, `{"Op":"CaseFormat","Output":"Product.Name","Parameters":{"Mode":"upper"}}`)

	b := NewBag("widget", false)
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "WIDGET", res.Value)
}

func TestActionClearRemovesKey(t *testing.T) {
	a := mustAction(t, `{"Op":"Clear","Input":"Scratch"}`)

	b := NewBag("x", false)
	b.Set("Scratch", "temp")
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.False(t, b.IsValid("Scratch"))
}

func TestActionConditionGatesExecution(t *testing.T) {
	a := mustAction(t, `{"Op":"Assign","Output":"Product.Name","Condition":"Currency == \"USD\""}`)

	b := NewBag("Widget", false)
	b.Set("Currency", "EUR")
	res, err := a.Execute(b, domain.ParserSettings{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestActionPreferFirstAssignmentBlocksSecondWrite(t *testing.T) {
	first := mustAction(t, `{"Op":"Assign","Output":"Product.Name"}`)
	second := mustAction(t, `{"Op":"CaseFormat","Output":"Product.Name","Parameters":{"Mode":"upper"}}`)

	b := NewBag("Widget", false)
	settings := domain.ParserSettings{PreferFirstAssignment: true}

	res1, err := first.Execute(b, settings, nil)
	require.NoError(t, err)
	assert.True(t, res1.WroteOutput)

	res2, err := second.Execute(b, settings, nil)
	require.NoError(t, err)
	assert.False(t, res2.WroteOutput)

	v, _ := b.Get("Product.Name")
	assert.Equal(t, "Widget", v)
}

func TestNewActionRejectsMissingRequiredParameters(t *testing.T) {
	var cfg domain.ActionConfig
	require.NoError(t, json.Unmarshal([]byte(`{"Op":"Find","Output":"X"}`), &cfg))
	_, err := NewAction(cfg)
	assert.Error(t, err)
}

func TestNewActionRejectsUnknownOp(t *testing.T) {
	var cfg domain.ActionConfig
	require.NoError(t, json.Unmarshal([]byte(`{"Op":"Bogus","Output":"X"}`), &cfg))
	_, err := NewAction(cfg)
	assert.Error(t, err)
}
