// Package subtitle implements the Subtitle Processor: detecting
// header-like grouping rows within a file's data body, extracting their
// keyed value, and propagating it to the rows that follow until the next
// matching subtitle row.
package subtitle

import (
	"regexp"
	"strings"
	"sync"

	"github.com/thestrul/sacks/internal/domain"
)

// compiledRule pre-compiles a SubtitleRule's regex fields once per
// supplier, mirroring the engine's compile-at-construction discipline.
type compiledRule struct {
	rule               domain.SubtitleRule
	validationPatterns []*regexp.Regexp
	transforms         []compiledTransform
}

type compiledTransform struct {
	cfg domain.TransformConfig
	re  *regexp.Regexp
}

// Processor detects and propagates subtitle rows for one supplier.
type Processor struct {
	supplier *domain.SupplierConfig
	rules    []compiledRule
}

// New compiles supplier's SubtitleHandling.Rules. A nil SubtitleHandling
// yields a Processor that never detects a subtitle row (every row passes
// through as ordinary data), which is the correct behavior for suppliers
// that don't use grouping rows.
func New(supplier *domain.SupplierConfig) (*Processor, error) {
	p := &Processor{supplier: supplier}
	if supplier.SubtitleHandling == nil {
		return p, nil
	}
	for _, r := range supplier.SubtitleHandling.Rules {
		cr := compiledRule{rule: r}
		for _, pat := range r.ValidationPatterns {
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, err
			}
			cr.validationPatterns = append(cr.validationPatterns, re)
		}
		for _, t := range r.Transforms {
			expr := t.Pattern
			if t.IgnoreCase && !strings.HasPrefix(expr, "(?i)") {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, err
			}
			cr.transforms = append(cr.transforms, compiledTransform{cfg: t, re: re})
		}
		p.rules = append(p.rules, cr)
	}
	return p, nil
}

// Classification is the detection outcome for one row.
type Classification struct {
	IsSubtitleRow bool
	RuleName      string
	SubtitleData  map[string]string
	Action        string // skip | parse
}

// Classify evaluates the supplier's rules against row in order; the first
// match wins, per spec §4.2.
func (p *Processor) Classify(row domain.RowData) Classification {
	nonBlank := row.NonBlankCells()

	for _, cr := range p.rules {
		if !cr.matches(nonBlank) {
			continue
		}

		firstText := ""
		if len(nonBlank) > 0 {
			firstText = nonBlank[0].Value
		}
		value := cr.applyTransforms(firstText)

		action := cr.rule.Action
		if action == "" {
			action = "parse"
		}

		return Classification{
			IsSubtitleRow: true,
			RuleName:      cr.rule.Name,
			SubtitleData:  map[string]string{cr.rule.Name: value},
			Action:        action,
		}
	}

	// No rule matched: apply FallbackAction only when the row also fails
	// the header structural requirement (too few non-blank cells), per
	// spec §4.2.
	for _, cr := range p.rules {
		if cr.rule.FallbackAction == "skip" && len(nonBlank) < cr.rule.ExpectedColumnCount {
			return Classification{Action: "skip"}
		}
	}

	return Classification{Action: "parse"}
}

func (cr compiledRule) matches(nonBlank []domain.CellData) bool {
	switch cr.rule.Method {
	case "columnCount":
		return len(nonBlank) == cr.rule.ExpectedColumnCount
	case "pattern":
		return cr.matchesPattern(nonBlank)
	case "hybrid":
		return len(nonBlank) == cr.rule.ExpectedColumnCount && cr.matchesPattern(nonBlank)
	default:
		return false
	}
}

func (cr compiledRule) matchesPattern(nonBlank []domain.CellData) bool {
	parts := make([]string, len(nonBlank))
	for i, c := range nonBlank {
		parts[i] = c.Value
	}
	joined := strings.Join(parts, " ")
	for _, re := range cr.validationPatterns {
		if re.MatchString(joined) {
			return true
		}
	}
	return false
}

func (cr compiledRule) applyTransforms(value string) string {
	for _, t := range cr.transforms {
		switch t.cfg.Op {
		case "removePrefix":
			value = t.re.ReplaceAllString(value, "")
		}
	}
	return strings.TrimSpace(value)
}

// Tracker accumulates SubtitleData across a file's rows, applying
// ApplyToSubsequentRows inheritance: every non-subtitle row between a
// matching subtitle row and the next one of the same rule inherits that
// rule's SubtitleData.
type Tracker struct {
	mu        sync.Mutex
	inherited map[string]string
	rules     map[string]domain.SubtitleRule
}

// NewTracker builds an empty Tracker for supplier.
func NewTracker(supplier *domain.SupplierConfig) *Tracker {
	t := &Tracker{inherited: make(map[string]string), rules: make(map[string]domain.SubtitleRule)}
	if supplier.SubtitleHandling != nil {
		for _, r := range supplier.SubtitleHandling.Rules {
			t.rules[r.Name] = r
		}
	}
	return t
}

// Observe records a row's classification, updating the inherited state for
// rules with ApplyToSubsequentRows set, and returns the SubtitleData that
// should be inherited by this row (before the current row's own data is
// merged in — a subtitle row does not inherit its own value).
func (t *Tracker) Observe(c Classification) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]string, len(t.inherited))
	for k, v := range t.inherited {
		snapshot[k] = v
	}

	if c.IsSubtitleRow {
		rule, ok := t.rules[c.RuleName]
		if ok && rule.ApplyToSubsequentRows {
			for k, v := range c.SubtitleData {
				t.inherited[k] = v
			}
		}
	}

	return snapshot
}
