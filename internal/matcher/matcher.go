// Package matcher implements the Supplier Matcher: binding an input file
// name to the SupplierConfig whose Detection.FileNamePatterns match it.
package matcher

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/thestrul/sacks/internal/domain"
)

// SupplierSource is the subset of config.Store the Matcher depends on.
type SupplierSource interface {
	Suppliers() []*domain.SupplierConfig
}

// Matcher resolves a file path to its SupplierConfig by matching the base
// file name against each configured supplier's FileNamePatterns (regexes),
// first match in Suppliers() order wins. Compiled patterns are cached by
// pattern string so a hot-reloaded Store doesn't force a recompile on
// every file.
type Matcher struct {
	source SupplierSource

	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// New builds a Matcher over source (normally a *config.Store).
func New(source SupplierSource) *Matcher {
	return &Matcher{source: source, cache: make(map[string]*regexp.Regexp)}
}

// Match returns the SupplierConfig whose FileNamePatterns match the base
// name of path, or domain.SupplierNotDetected if none do.
func (m *Matcher) Match(path string) (*domain.SupplierConfig, error) {
	name := filepath.Base(path)
	for _, sc := range m.source.Suppliers() {
		for _, pattern := range sc.FileStructure.Detection.FileNamePatterns {
			re, err := m.compile(pattern)
			if err != nil {
				continue // a bad pattern here was already rejected by config.Validate
			}
			if re.MatchString(name) {
				return sc, nil
			}
		}
	}
	return nil, &domain.SupplierNotDetected{Path: path}
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	m.cache[pattern] = re
	return re, nil
}

// NormalizeFileName lower-cases and trims the base name of a file path,
// giving a canonical key that does not depend on a resolved SupplierConfig.
func NormalizeFileName(name string) string {
	return strings.ToLower(strings.TrimSpace(filepath.Base(name)))
}
