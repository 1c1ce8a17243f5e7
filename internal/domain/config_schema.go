package domain

import "strings"

// GlobalConfig is the shared supplier-formats document: lookup tables and
// common settings, plus zero or more embedded SupplierConfigs that get
// merged with any standalone per-supplier files in the same directory.
type GlobalConfig struct {
	Version   string                       `json:"Version"`
	Lookups   map[string]map[string]string `json:"Lookups"`
	Suppliers []*SupplierConfig            `json:"Suppliers"`
}

// SupplierConfig describes one supplier's file layout and parsing rules.
// Parent is a non-owning back-reference to the GlobalConfig used to resolve
// lookup tables that aren't overridden locally.
type SupplierConfig struct {
	Name             string                        `json:"Name"`
	Currency         string                        `json:"Currency"`
	FileStructure    FileStructure                 `json:"FileStructure"`
	ParserConfig     ParserConfig                  `json:"ParserConfig"`
	SubtitleHandling *SubtitleHandling              `json:"SubtitleHandling,omitempty"`
	Lookups          map[string]map[string]string   `json:"Lookups,omitempty"`

	Parent *GlobalConfig `json:"-"`
}

// ResolveLookup returns the named lookup table, preferring a supplier-local
// override over the parent GlobalConfig's table. Table names are matched
// case-insensitively per spec §3.
func (s *SupplierConfig) ResolveLookup(name string) (map[string]string, bool) {
	if s.Lookups != nil {
		if t, ok := lookupTableCaseInsensitive(s.Lookups, name); ok {
			return t, true
		}
	}
	if s.Parent != nil && s.Parent.Lookups != nil {
		if t, ok := lookupTableCaseInsensitive(s.Parent.Lookups, name); ok {
			return t, true
		}
	}
	return nil, false
}

// FileStructure describes the row layout a supplier's spreadsheet uses.
type FileStructure struct {
	DataStartRowIndex   int             `json:"DataStartRowIndex"`
	HeaderRowIndex      int             `json:"HeaderRowIndex"`
	ExpectedColumnCount int             `json:"ExpectedColumnCount"`
	Detection           DetectionConfig `json:"Detection"`
}

// DetectionConfig drives the Supplier Matcher's filename-to-config binding.
type DetectionConfig struct {
	FileNamePatterns []string `json:"FileNamePatterns"`
}

// ParserConfig is the Parsing Engine's per-supplier configuration: global
// settings plus the ordered list of per-column rules.
type ParserConfig struct {
	Settings    ParserSettings `json:"Settings"`
	ColumnRules []ColumnRule   `json:"ColumnRules"`
}

// ParserSettings are the per-row/per-column policy knobs of spec §4.3.
type ParserSettings struct {
	StopOnFirstMatchPerColumn bool   `json:"StopOnFirstMatchPerColumn"`
	PreferFirstAssignment     bool   `json:"PreferFirstAssignment"`
	DefaultCulture            string `json:"DefaultCulture"`
}

// ColumnRule binds an ordered chain of Actions to a spreadsheet column.
type ColumnRule struct {
	Column  string         `json:"Column"`
	Actions []ActionConfig `json:"Actions"`
}

// ActionConfig is one step of a column's action waterfall.
type ActionConfig struct {
	Op         string            `json:"Op"`
	Input      string            `json:"Input"`
	Output     string            `json:"Output"`
	Assign     *bool             `json:"Assign,omitempty"`
	Condition  string            `json:"Condition,omitempty"`
	Parameters ActionParameters  `json:"Parameters,omitempty"`
}

// ShouldAssign returns the effective Assign flag: true when unset, since the
// sample documents in spec §6 always set it explicitly on actions meant to
// persist, and treating "unset" as "assign" keeps single-action columns
// (the common case) working without boilerplate.
func (a ActionConfig) ShouldAssign() bool {
	if a.Assign == nil {
		return true
	}
	return *a.Assign
}

// SubtitleHandling configures the Subtitle Processor for one supplier.
type SubtitleHandling struct {
	Rules []SubtitleRule `json:"Rules"`
}

// SubtitleRule is one detection rule evaluated in order; the first match
// wins, per spec §4.2.
type SubtitleRule struct {
	Name                  string               `json:"Name"`
	Method                string               `json:"Method"` // columnCount | pattern | hybrid
	ExpectedColumnCount   int                  `json:"ExpectedColumnCount"`
	ValidationPatterns    []string             `json:"ValidationPatterns"`
	Transforms            []TransformConfig    `json:"Transforms,omitempty"`
	Action                string               `json:"Action,omitempty"`         // skip | parse (default parse)
	FallbackAction        string               `json:"FallbackAction,omitempty"` // skip
	ApplyToSubsequentRows bool                 `json:"ApplyToSubsequentRows"`
	Assignments           []SubtitleAssignment `json:"Assignments,omitempty"`
}

// TransformConfig is applied to the detected subtitle value before it is
// stored, e.g. stripping a label prefix with a regex.
type TransformConfig struct {
	Op         string `json:"Op"` // removePrefix
	Pattern    string `json:"Pattern"`
	IgnoreCase bool   `json:"IgnoreCase"`
}

// SubtitleAssignment maps a subtitle-derived key onto a bag target property
// on every subsequent inheriting row.
type SubtitleAssignment struct {
	SourceKey      string `json:"SourceKey"`
	TargetProperty string `json:"TargetProperty"`
	Table          string `json:"Table,omitempty"`
	Overwrite      bool   `json:"Overwrite"`
}

func lookupTableCaseInsensitive(tables map[string]map[string]string, name string) (map[string]string, bool) {
	if t, ok := tables[name]; ok {
		return t, true
	}
	for k, t := range tables {
		if strings.EqualFold(k, name) {
			return t, true
		}
	}
	return nil, false
}
