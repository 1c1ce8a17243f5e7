package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestrul/sacks/internal/domain"
)

func rowOf(values ...string) domain.RowData {
	var cells []domain.CellData
	for i, v := range values {
		cells = append(cells, domain.CellData{Index: i, Value: v})
	}
	return domain.RowData{Cells: cells}
}

func TestProcessorClassifiesByColumnCount(t *testing.T) {
	supplier := &domain.SupplierConfig{
		SubtitleHandling: &domain.SubtitleHandling{
			Rules: []domain.SubtitleRule{
				{Name: "Category", Method: "columnCount", ExpectedColumnCount: 1},
			},
		},
	}
	p, err := New(supplier)
	require.NoError(t, err)

	c := p.Classify(rowOf("Beverages"))
	assert.True(t, c.IsSubtitleRow)
	assert.Equal(t, "Category", c.RuleName)
	assert.Equal(t, "Beverages", c.SubtitleData["Category"])

	c = p.Classify(rowOf("SKU1", "Cola", "1.99"))
	assert.False(t, c.IsSubtitleRow)
}

func TestProcessorClassifiesByPattern(t *testing.T) {
	supplier := &domain.SupplierConfig{
		SubtitleHandling: &domain.SubtitleHandling{
			Rules: []domain.SubtitleRule{
				{Name: "Section", Method: "pattern", ValidationPatterns: []string{`^(?i)section:`}},
			},
		},
	}
	p, err := New(supplier)
	require.NoError(t, err)

	c := p.Classify(rowOf("Section: Frozen Foods"))
	assert.True(t, c.IsSubtitleRow)
	assert.Equal(t, "Section: Frozen Foods", c.SubtitleData["Section"])
}

func TestProcessorAppliesRemovePrefixTransform(t *testing.T) {
	supplier := &domain.SupplierConfig{
		SubtitleHandling: &domain.SubtitleHandling{
			Rules: []domain.SubtitleRule{
				{
					Name:               "Section",
					Method:             "pattern",
					ValidationPatterns: []string{`(?i)^section:`},
					Transforms: []domain.TransformConfig{
						{Op: "removePrefix", Pattern: `(?i)^section:\s*`},
					},
				},
			},
		},
	}
	p, err := New(supplier)
	require.NoError(t, err)

	c := p.Classify(rowOf("Section: Frozen Foods"))
	assert.Equal(t, "Frozen Foods", c.SubtitleData["Section"])
}

func TestProcessorFallbackSkipsShortRows(t *testing.T) {
	supplier := &domain.SupplierConfig{
		SubtitleHandling: &domain.SubtitleHandling{
			Rules: []domain.SubtitleRule{
				{Name: "Header", Method: "columnCount", ExpectedColumnCount: 4, FallbackAction: "skip"},
			},
		},
	}
	p, err := New(supplier)
	require.NoError(t, err)

	c := p.Classify(rowOf("garbage"))
	assert.Equal(t, "skip", c.Action)
}

func TestProcessorNoSubtitleHandlingPassesThrough(t *testing.T) {
	p, err := New(&domain.SupplierConfig{})
	require.NoError(t, err)

	c := p.Classify(rowOf("SKU1", "Cola", "1.99"))
	assert.False(t, c.IsSubtitleRow)
	assert.Equal(t, "parse", c.Action)
}

func TestTrackerInheritsAcrossSubsequentRows(t *testing.T) {
	supplier := &domain.SupplierConfig{
		SubtitleHandling: &domain.SubtitleHandling{
			Rules: []domain.SubtitleRule{
				{Name: "Category", Method: "columnCount", ExpectedColumnCount: 1, ApplyToSubsequentRows: true},
			},
		},
	}
	p, err := New(supplier)
	require.NoError(t, err)
	tracker := NewTracker(supplier)

	subtitleRow := p.Classify(rowOf("Beverages"))
	inherited := tracker.Observe(subtitleRow)
	assert.Empty(t, inherited, "a subtitle row does not inherit its own value")

	dataRow := p.Classify(rowOf("SKU1", "Cola", "1.99"))
	inherited = tracker.Observe(dataRow)
	assert.Equal(t, "Beverages", inherited["Category"])

	dataRow2 := p.Classify(rowOf("SKU2", "Sprite", "1.49"))
	inherited = tracker.Observe(dataRow2)
	assert.Equal(t, "Beverages", inherited["Category"], "inheritance persists until the next matching subtitle row")
}

func TestTrackerDoesNotInheritWhenApplyToSubsequentRowsFalse(t *testing.T) {
	supplier := &domain.SupplierConfig{
		SubtitleHandling: &domain.SubtitleHandling{
			Rules: []domain.SubtitleRule{
				{Name: "Category", Method: "columnCount", ExpectedColumnCount: 1, ApplyToSubsequentRows: false},
			},
		},
	}
	p, err := New(supplier)
	require.NoError(t, err)
	tracker := NewTracker(supplier)

	subtitleRow := p.Classify(rowOf("Beverages"))
	tracker.Observe(subtitleRow)

	dataRow := p.Classify(rowOf("SKU1", "Cola", "1.99"))
	inherited := tracker.Observe(dataRow)
	assert.Empty(t, inherited)
}
