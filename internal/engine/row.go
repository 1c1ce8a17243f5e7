package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thestrul/sacks/internal/domain"
)

// compiledColumn is one ColumnRule with its Actions pre-validated and
// compiled at RowEvaluator construction time.
type compiledColumn struct {
	columnIndex int
	rule        domain.ColumnRule
	actions     []*Action
}

// RowEvaluator runs a supplier's ColumnRules against one row's cells,
// threading a single shared Bag across every column per spec §4.3 ("build
// a fresh PropertyBag; ... for the matching ColumnRule, execute its
// Actions in order" — one bag per row, not per column).
type RowEvaluator struct {
	supplier *domain.SupplierConfig
	settings domain.ParserSettings
	columns  []compiledColumn
	tracing  bool
}

// NewRowEvaluator compiles supplier's ParserConfig.ColumnRules. A bad
// Op/parameter combination surfaces as a *domain.ValidationError so it is
// caught at config-load time.
func NewRowEvaluator(supplier *domain.SupplierConfig, tracing bool) (*RowEvaluator, error) {
	e := &RowEvaluator{
		supplier: supplier,
		settings: supplier.ParserConfig.Settings,
		tracing:  tracing,
	}

	for _, rule := range supplier.ParserConfig.ColumnRules {
		idx, err := ParseColumnRef(rule.Column)
		if err != nil {
			return nil, &domain.ValidationError{
				Supplier: supplier.Name,
				Column:   rule.Column,
				Message:  err.Error(),
			}
		}
		cc := compiledColumn{columnIndex: idx, rule: rule}
		for _, actCfg := range rule.Actions {
			act, err := NewAction(actCfg)
			if err != nil {
				return nil, &domain.ValidationError{
					Supplier: supplier.Name,
					Column:   rule.Column,
					Action:   actCfg.Op,
					Message:  err.Error(),
				}
			}
			cc.actions = append(cc.actions, act)
		}
		e.columns = append(e.columns, cc)
	}

	return e, nil
}

// ParseColumnRef resolves a ColumnRule.Column reference: a bare integer
// ("2") is a zero-based cell index; a spreadsheet letter ("A", "B", ...,
// "AA") is converted to its zero-based index.
func ParseColumnRef(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("empty column reference")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative column index %d", n)
		}
		return n, nil
	}
	idx := 0
	for _, r := range strings.ToUpper(ref) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column reference %q", ref)
		}
		idx = idx*26 + int(r-'A'+1)
	}
	return idx - 1, nil
}

// RowWarning is a non-fatal event surfaced while evaluating a row: a
// trapped action-level exception. The row is not abandoned.
type RowWarning struct {
	Err error
}

// EvaluateRow runs every compiled ColumnRule against cells in declaration
// order, sharing one Bag across the whole row, and returns it along with
// any column-level exceptions trapped along the way (spec §4.3 failure
// model: "a column-level exception ... is trapped, logged ..., and the
// row continues").
func (e *RowEvaluator) EvaluateRow(cells []domain.CellData, rowIndex int) (*Bag, []RowWarning) {
	bag := NewBag("", e.tracing)
	var warnings []RowWarning

	for _, col := range e.columns {
		cellText := cellValueAt(cells, col.columnIndex)
		bag.Set("Text", cellText)

		matchedPersisted := false
		for _, act := range col.actions {
			if e.settings.StopOnFirstMatchPerColumn && matchedPersisted {
				break
			}
			res, err := act.Execute(bag, e.settings, e.supplier)
			if e.tracing {
				in, _ := bag.Resolve(effectiveInput(act.cfg.Input))
				bag.Trace(TraceEntry{
					Action:  act.cfg.Op,
					Input:   in,
					Output:  act.cfg.Output,
					Matched: res.Value,
					Success: res.Matched,
				})
			}
			if err != nil {
				warnings = append(warnings, RowWarning{Err: &domain.ActionError{
					Row:    rowIndex,
					Column: col.rule.Column,
					Op:     act.cfg.Op,
					Cause:  err,
				}})
				continue
			}
			if res.WroteOutput {
				matchedPersisted = true
			}
		}
	}

	return bag, warnings
}

func cellValueAt(cells []domain.CellData, index int) string {
	for _, c := range cells {
		if c.Index == index {
			return c.Value
		}
	}
	return ""
}

// ApplySubtitleAssignments copies inherited subtitle-derived values onto
// bag per spec §4.2: each Assignment reads SourceKey from inherited (the
// owning subtitle row's SubtitleData), optionally translates it through a
// lookup table, and writes TargetProperty — skipping the write when the
// target is already set and Overwrite is false.
func ApplySubtitleAssignments(bag *Bag, inherited map[string]string, assignments []domain.SubtitleAssignment, supplier *domain.SupplierConfig) []error {
	var errs []error
	for _, a := range assignments {
		raw, ok := inherited[a.SourceKey]
		if !ok {
			continue
		}

		value := raw
		if a.Table != "" {
			table, ok := supplier.ResolveLookup(a.Table)
			if !ok {
				errs = append(errs, fmt.Errorf("subtitle assignment %s: unknown lookup table %s", a.TargetProperty, a.Table))
				continue
			}
			translated, found := lookupCaseInsensitive(table, raw)
			if !found {
				continue
			}
			value = translated
		}

		if !a.Overwrite {
			if _, exists := bag.Get(a.TargetProperty); exists {
				continue
			}
		}
		bag.SetPersisted(a.TargetProperty, value, false)
	}
	return errs
}

func lookupCaseInsensitive(table map[string]string, key string) (string, bool) {
	for k, v := range table {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
