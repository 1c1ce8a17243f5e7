package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/thestrul/sacks/internal/domain"
)

// ActionResult reports what one Action.Execute call did, so the column
// runner can apply StopOnFirstMatchPerColumn.
type ActionResult struct {
	// Matched is true when the action's condition passed and the op
	// produced a value (a local lookup/regex miss is not a match).
	Matched bool
	// WroteOutput is true when the op wrote to a persisted Product.*/
	// Offer.* output (as opposed to an internal working key).
	WroteOutput bool
	// Value is the scalar value the op produced (empty for array results
	// and for no-ops), surfaced for trace logging.
	Value string
}

// Action is one compiled step of a column's action waterfall.
type Action struct {
	cfg  domain.ActionConfig
	cond Condition

	op string // normalized Op name

	// Find / Split / Map / Convert / Concat / CaseFormat precompiled state.
	regex       *regexp.Regexp
	lookupTable string // table name for Find(lookup:) or Map
	mode        string // first | last | all
	ignoreCase  bool
	remove      bool
	delimiter   string
	fromUnit    string
	toUnit      string
	factor      float64
	concatKeys  []string
	concatSep   string
	caseMode    string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NewAction validates cfg and compiles its regexes/conditions once, so that
// a malformed supplier document fails at config-load time with a
// *domain.ValidationError rather than at row-execution time.
func NewAction(cfg domain.ActionConfig) (*Action, error) {
	a := &Action{cfg: cfg, op: strings.ToLower(strings.TrimSpace(cfg.Op))}

	cond, err := CompileCondition(cfg.Condition)
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	a.cond = cond

	if strings.TrimSpace(cfg.Output) == "" && a.op != "clear" {
		return nil, fmt.Errorf("op %s: Output is required", cfg.Op)
	}

	switch a.op {
	case "assign":
		// no parameters

	case "find":
		pattern, ok := cfg.Parameters.Get("Pattern")
		if !ok || strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("op Find: Parameters.Pattern is required")
		}
		a.mode, a.ignoreCase, a.remove = parseFindOptions(cfg.Parameters)
		if table, isLookup := strings.CutPrefix(pattern, "lookup:"); isLookup {
			a.lookupTable = strings.TrimSpace(table)
			if a.lookupTable == "" {
				return nil, fmt.Errorf("op Find: lookup: pattern needs a table name")
			}
		} else {
			expr := pattern
			if a.ignoreCase && !strings.HasPrefix(expr, "(?i)") {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("op Find: bad Pattern regex: %w", err)
			}
			a.regex = re
		}

	case "map":
		table, ok := cfg.Parameters.Get("Table")
		if !ok || strings.TrimSpace(table) == "" {
			return nil, fmt.Errorf("op Map: Parameters.Table is required")
		}
		a.lookupTable = strings.TrimSpace(table)

	case "split":
		delim, ok := cfg.Parameters.Get("Delimiter")
		if !ok || delim == "" {
			return nil, fmt.Errorf("op Split: Parameters.Delimiter is required")
		}
		a.delimiter = delim

	case "switch":
		whens := cfg.Parameters.WithPrefix("When:")
		if len(whens) == 0 {
			return nil, fmt.Errorf("op Switch: at least one Parameters.When:<k> entry is required")
		}

	case "convert":
		factorStr, hasFactor := cfg.Parameters.Get("Factor")
		a.fromUnit, _ = cfg.Parameters.Get("FromUnit")
		a.toUnit, _ = cfg.Parameters.Get("ToUnit")
		if hasFactor {
			f, err := strconv.ParseFloat(factorStr, 64)
			if err != nil {
				return nil, fmt.Errorf("op Convert: bad Parameters.Factor: %w", err)
			}
			a.factor = f
		} else if a.fromUnit == "" || a.toUnit == "" {
			return nil, fmt.Errorf("op Convert: needs Parameters.Factor or FromUnit/ToUnit")
		}

	case "concat":
		keys, ok := cfg.Parameters.Get("Keys")
		if !ok || strings.TrimSpace(keys) == "" {
			return nil, fmt.Errorf("op Concat: Parameters.Keys is required")
		}
		for _, k := range strings.Split(keys, ",") {
			a.concatKeys = append(a.concatKeys, strings.TrimSpace(k))
		}
		sep, _ := cfg.Parameters.Get("Separator")
		a.concatSep = sep

	case "caseformat":
		mode, ok := cfg.Parameters.Get("Mode")
		if !ok || strings.TrimSpace(mode) == "" {
			return nil, fmt.Errorf("op CaseFormat: Parameters.Mode is required")
		}
		switch strings.ToLower(mode) {
		case "upper", "lower", "title":
			a.caseMode = strings.ToLower(mode)
		default:
			return nil, fmt.Errorf("op CaseFormat: unknown Mode %q", mode)
		}

	case "clear":
		// no parameters; Output may name the key to clear via Input instead

	default:
		return nil, fmt.Errorf("unknown Op %q", cfg.Op)
	}

	return a, nil
}

func parseFindOptions(params domain.ActionParameters) (mode string, ignoreCase, remove bool) {
	mode = "first"
	raw, _ := params.Get("Options")
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		switch tok {
		case "first", "last", "all":
			mode = tok
		case "ignorecase":
			ignoreCase = true
		case "remove":
			remove = true
		case "":
		}
	}
	return mode, ignoreCase, remove
}

// Execute runs one action against the row bag. settings carries the
// supplier's PreferFirstAssignment policy; supplier carries the resolved
// SupplierConfig used for Find(lookup:)/Map table resolution.
func (a *Action) Execute(b *Bag, settings domain.ParserSettings, supplier *domain.SupplierConfig) (ActionResult, error) {
	if a.cond != nil && !a.cond.Eval(b) {
		return ActionResult{}, nil
	}

	if a.op == "clear" {
		key := a.cfg.Output
		if key == "" {
			key = a.cfg.Input
		}
		b.Clear(key)
		return ActionResult{Matched: true}, nil
	}

	input, _ := b.Resolve(effectiveInput(a.cfg.Input))

	outcome, err := a.run(b, input, supplier)
	if err != nil {
		return ActionResult{}, err
	}
	if !outcome.ok {
		return ActionResult{}, nil
	}

	wrote := false
	if outcome.isArray {
		b.SetArray(a.cfg.Output, outcome.array)
	} else {
		if a.cfg.ShouldAssign() {
			wrote = b.SetPersisted(a.cfg.Output, outcome.scalar, settings.PreferFirstAssignment) &&
				IsPersistedOutput(a.cfg.Output)
		} else {
			b.Set(a.cfg.Output, outcome.scalar)
		}
		if outcome.clean != nil {
			b.SetClean(a.cfg.Output, *outcome.clean)
		}
	}

	return ActionResult{Matched: true, WroteOutput: wrote, Value: outcome.scalar}, nil
}

func effectiveInput(expr string) string {
	if strings.TrimSpace(expr) == "" {
		return "Text"
	}
	return expr
}

type opOutcome struct {
	ok      bool
	scalar  string
	array   []string
	isArray bool
	clean   *string // overrides Output.Clean when set
}

func (a *Action) run(b *Bag, input string, supplier *domain.SupplierConfig) (opOutcome, error) {
	switch a.op {
	case "assign":
		return opOutcome{ok: true, scalar: input}, nil

	case "find":
		if a.lookupTable != "" {
			return a.runFindLookup(input, supplier)
		}
		return a.runFindRegex(input)

	case "map":
		return a.runMap(input, supplier)

	case "split":
		parts := strings.Split(input, a.delimiter)
		return opOutcome{ok: true, isArray: true, array: parts}, nil

	case "switch":
		return a.runSwitch(b)

	case "convert":
		return a.runConvert(input)

	case "concat":
		return a.runConcat(b)

	case "caseformat":
		return opOutcome{ok: true, scalar: applyCaseFormat(a.caseMode, input)}, nil
	}

	return opOutcome{}, fmt.Errorf("op %s: not implemented", a.cfg.Op)
}

// --- Find -------------------------------------------------------------

type matchSpan struct {
	text       string
	start, end int
}

func (a *Action) runFindLookup(input string, supplier *domain.SupplierConfig) (opOutcome, error) {
	if supplier == nil {
		return opOutcome{}, fmt.Errorf("find lookup:%s: no supplier context", a.lookupTable)
	}
	table, ok := supplier.ResolveLookup(a.lookupTable)
	if !ok {
		return opOutcome{}, fmt.Errorf("find lookup:%s: unknown table", a.lookupTable)
	}

	matches := scanLookupMatches(input, table)
	if len(matches) == 0 {
		return opOutcome{}, nil
	}

	if a.mode == "all" {
		arr := make([]string, len(matches))
		for i, m := range matches {
			arr[i] = m.text
		}
		out := opOutcome{ok: true, isArray: true, array: arr}
		if a.remove {
			clean := removeSpans(input, matches)
			out.clean = &clean
		}
		return out, nil
	}

	var chosen matchSpan
	if a.mode == "last" {
		chosen = matches[len(matches)-1]
	} else {
		chosen = matches[0]
	}

	out := opOutcome{ok: true, scalar: chosen.text}
	if a.remove {
		clean := removeSpans(input, []matchSpan{chosen})
		out.clean = &clean
	}
	return out, nil
}

// scanLookupMatches performs a left-to-right, longest-match, non-overlapping
// scan of input against table's keys (case-insensitive), per spec §4.3
// ("match the longest entry from Lookups[table]").
func scanLookupMatches(input string, table map[string]string) []matchSpan {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	lower := strings.ToLower(input)
	var matches []matchSpan
	i := 0
	for i < len(input) {
		matchedLen := 0
		for _, k := range keys {
			lk := strings.ToLower(k)
			if lk == "" {
				continue
			}
			if strings.HasPrefix(lower[i:], lk) {
				matchedLen = len(k)
				break // keys sorted longest-first
			}
		}
		if matchedLen > 0 {
			matches = append(matches, matchSpan{
				text:  input[i : i+matchedLen],
				start: i,
				end:   i + matchedLen,
			})
			i += matchedLen
		} else {
			i++
		}
	}
	return matches
}

func removeSpans(input string, spans []matchSpan) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	var sb strings.Builder
	prev := 0
	for _, s := range spans {
		if s.start < prev {
			continue
		}
		sb.WriteString(input[prev:s.start])
		prev = s.end
	}
	sb.WriteString(input[prev:])
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(sb.String()), " ")
}

var groupPriority = []string{"value", "num", "size", "content"}

func (a *Action) runFindRegex(input string) (opOutcome, error) {
	all := a.regex.FindAllStringSubmatchIndex(input, -1)
	if len(all) == 0 {
		return opOutcome{}, nil
	}

	names := a.regex.SubexpNames()

	extract := func(idx []int) (string, int, int) {
		namedIdx := -1
		for _, want := range groupPriority {
			for gi, name := range names {
				if gi == 0 || name == "" {
					continue
				}
				if strings.EqualFold(name, want) {
					namedIdx = gi
					break
				}
			}
			if namedIdx != -1 {
				break
			}
		}
		if namedIdx == -1 {
			// exactly one named group and no priority match: use it
			count := 0
			only := -1
			for gi, name := range names {
				if gi != 0 && name != "" {
					count++
					only = gi
				}
			}
			if count == 1 {
				namedIdx = only
			}
		}
		if namedIdx == -1 {
			namedIdx = 0
		}
		s, e := idx[namedIdx*2], idx[namedIdx*2+1]
		if s < 0 || e < 0 {
			s, e = idx[0], idx[1]
		}
		return input[s:e], s, e
	}

	if a.mode == "all" {
		arr := make([]string, len(all))
		var spans []matchSpan
		for i, m := range all {
			text, s, e := extract(m)
			arr[i] = text
			spans = append(spans, matchSpan{text: text, start: s, end: e})
		}
		out := opOutcome{ok: true, isArray: true, array: arr}
		if a.remove {
			clean := removeSpans(input, spans)
			out.clean = &clean
		}
		return out, nil
	}

	var chosen []int
	if a.mode == "last" {
		chosen = all[len(all)-1]
	} else {
		chosen = all[0]
	}
	text, s, e := extract(chosen)
	out := opOutcome{ok: true, scalar: text}
	if a.remove {
		clean := removeSpans(input, []matchSpan{{text: text, start: s, end: e}})
		out.clean = &clean
	}
	return out, nil
}

// --- Map ----------------------------------------------------------------

func (a *Action) runMap(input string, supplier *domain.SupplierConfig) (opOutcome, error) {
	if supplier == nil {
		return opOutcome{}, fmt.Errorf("map %s: no supplier context", a.lookupTable)
	}
	table, ok := supplier.ResolveLookup(a.lookupTable)
	if !ok {
		return opOutcome{}, fmt.Errorf("map %s: unknown table", a.lookupTable)
	}
	for k, v := range table {
		if strings.EqualFold(k, input) {
			return opOutcome{ok: true, scalar: v}, nil
		}
	}
	return opOutcome{}, nil
}

// --- Switch ---------------------------------------------------------------

func (a *Action) runSwitch(b *Bag) (opOutcome, error) {
	whens := a.cfg.Parameters.WithPrefix("When:")
	for _, kv := range whens {
		cond, err := CompileCondition(kv.Key)
		if err != nil {
			return opOutcome{}, fmt.Errorf("switch When:%s: %w", kv.Key, err)
		}
		if cond == nil || cond.Eval(b) {
			return opOutcome{ok: true, scalar: kv.Value}, nil
		}
	}
	if def, ok := a.cfg.Parameters.Get("Default"); ok {
		return opOutcome{ok: true, scalar: def}, nil
	}
	return opOutcome{}, nil
}

// --- Convert ----------------------------------------------------------------

func (a *Action) runConvert(input string) (opOutcome, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return opOutcome{}, nil // non-numeric input: local failure, not an error
	}
	factor := a.factor
	if factor == 0 && a.fromUnit != "" && a.toUnit != "" {
		factor = unitFactor(a.fromUnit, a.toUnit)
		if factor == 0 {
			return opOutcome{}, fmt.Errorf("convert: no known factor from %s to %s", a.fromUnit, a.toUnit)
		}
	}
	if factor == 0 {
		factor = 1
	}
	return opOutcome{ok: true, scalar: strconv.FormatFloat(n*factor, 'f', -1, 64)}, nil
}

// unitFactor resolves a small built-in table of common supplier-feed unit
// pairs (mass and volume). Suppliers needing anything wider should specify
// Parameters.Factor directly.
func unitFactor(from, to string) float64 {
	norm := func(u string) string { return strings.ToLower(strings.TrimSpace(u)) }
	table := map[[2]string]float64{
		{"g", "kg"}:  0.001,
		{"kg", "g"}:  1000,
		{"ml", "l"}:  0.001,
		{"l", "ml"}:  1000,
		{"oz", "g"}:  28.3495,
		{"g", "oz"}:  1 / 28.3495,
		{"lb", "kg"}: 0.453592,
		{"kg", "lb"}: 1 / 0.453592,
	}
	return table[[2]string{norm(from), norm(to)}]
}

// --- Concat -----------------------------------------------------------------

func (a *Action) runConcat(b *Bag) (opOutcome, error) {
	var parts []string
	for _, key := range a.concatKeys {
		v, ok := b.Resolve(key)
		if ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return opOutcome{}, nil
	}
	return opOutcome{ok: true, scalar: strings.Join(parts, a.concatSep)}, nil
}

// --- CaseFormat -------------------------------------------------------------

func applyCaseFormat(mode, input string) string {
	switch mode {
	case "upper":
		return strings.ToUpper(input)
	case "lower":
		return strings.ToLower(input)
	case "title":
		return strings.Title(strings.ToLower(input)) //nolint:staticcheck // ASCII supplier labels; matches teacher's formatting helpers
	}
	return input
}
