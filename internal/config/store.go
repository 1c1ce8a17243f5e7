// backend-go/internal/config/store.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/thestrul/sacks/internal/domain"
	"github.com/thestrul/sacks/internal/engine"
)

// mainDocumentNames lists the main-document file names Store recognizes; any
// other *.json file in Dir is treated as a standalone SupplierConfig.
var mainDocumentNames = map[string]bool{
	"suppliers.json": true,
	"main.json":      true,
}

// reloadDebounce is how long Store waits after the last filesystem event in
// a burst before reloading, per spec §4.1's hot-reload contract.
const reloadDebounce = 250 * time.Millisecond

// Store owns the merged supplier-format configuration: the main document's
// Lookups and embedded Suppliers, merged with standalone per-supplier JSON
// files in the same directory, re-validated on every (re)load. Reads take
// a read lock; a reload swaps in the new aggregate under the write lock.
type Store struct {
	dir string
	log zerolog.Logger

	mu        sync.RWMutex
	aggregate *domain.GlobalConfig
	bySupplier map[string]*domain.SupplierConfig // keyed lower-case name

	watcher  *fsnotify.Watcher
	reloaded chan struct{} // closed and replaced on every successful reload; for tests/ops to observe
}

// NewStore builds a Store and performs the initial load. A failure here is
// fatal: there is no previous aggregate to fall back to.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		dir:      dir,
		log:      log.With().Str("component", "config.Store").Logger(),
		reloaded: make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetSupplier returns the named SupplierConfig (case-insensitive).
func (s *Store) GetSupplier(name string) (*domain.SupplierConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.bySupplier[strings.ToLower(strings.TrimSpace(name))]
	return sc, ok
}

// Suppliers returns every configured SupplierConfig.
func (s *Store) Suppliers() []*domain.SupplierConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.SupplierConfig, 0, len(s.bySupplier))
	for _, sc := range s.bySupplier {
		out = append(out, sc)
	}
	return out
}

// Reloaded returns a channel that is closed the next time a reload
// (successful or not) completes; callers re-subscribe after each receive.
func (s *Store) Reloaded() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloaded
}

// Watch starts an fsnotify watch on Dir and reloads the aggregate whenever
// a write settles for reloadDebounce. A reload failure is logged and the
// previous aggregate is kept in place — a hot-reload never leaves the
// store without a usable configuration (spec §4.1: "recoverable at
// hot-reload; the previous aggregate is kept and the error is logged").
func (s *Store) Watch(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("config watch: %w", err)
	}
	s.watcher = w

	go func() {
		defer w.Close()
		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-stop:
				if timer != nil {
					timer.Stop()
				}
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Ext(ev.Name) != ".json" {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(reloadDebounce)
				}
				timerC = timer.C

			case <-timerC:
				timerC = nil
				if err := s.reload(); err != nil {
					s.log.Error().Err(err).Msg("config hot-reload failed, keeping previous configuration")
				} else {
					s.log.Info().Msg("configuration reloaded")
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error().Err(err).Msg("config watcher error")
			}
		}
	}()

	return nil
}

// reload reads every *.json document in Dir, merges, validates, and on
// success atomically swaps the live aggregate. It always signals Reloaded.
func (s *Store) reload() error {
	defer func() {
		s.mu.Lock()
		closed := s.reloaded
		s.reloaded = make(chan struct{})
		s.mu.Unlock()
		close(closed)
	}()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &domain.ConfigError{File: s.dir, Message: err.Error()}
	}

	var mainDoc *domain.GlobalConfig
	var standalone []*domain.SupplierConfig

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return &domain.ConfigError{File: path, Message: err.Error()}
		}

		if mainDocumentNames[strings.ToLower(e.Name())] {
			var gc domain.GlobalConfig
			if err := json.Unmarshal(data, &gc); err != nil {
				return &domain.ConfigError{File: path, Message: err.Error()}
			}
			mainDoc = &gc
			continue
		}

		var sc domain.SupplierConfig
		if err := json.Unmarshal(data, &sc); err != nil {
			return &domain.ConfigError{File: path, Message: err.Error()}
		}
		standalone = append(standalone, &sc)
	}

	if mainDoc == nil {
		return &domain.ConfigError{File: s.dir, Message: "no main document (suppliers.json) found"}
	}

	merged := mergeSuppliers(mainDoc, standalone)
	bySupplier := make(map[string]*domain.SupplierConfig, len(merged))
	for _, sc := range merged {
		sc.Parent = mainDoc
		bySupplier[strings.ToLower(strings.TrimSpace(sc.Name))] = sc
	}
	mainDoc.Suppliers = merged

	if err := Validate(mainDoc, bySupplier); err != nil {
		return err
	}

	s.mu.Lock()
	s.aggregate = mainDoc
	s.bySupplier = bySupplier
	s.mu.Unlock()
	return nil
}

// mergeSuppliers combines the main document's embedded Suppliers with the
// standalone per-supplier files, matching by Name case-insensitively; a
// later file (standalone wins over embedded, and later standalone files win
// over earlier ones in directory order) replaces an earlier one entirely.
func mergeSuppliers(mainDoc *domain.GlobalConfig, standalone []*domain.SupplierConfig) []*domain.SupplierConfig {
	order := make([]string, 0, len(mainDoc.Suppliers)+len(standalone))
	byName := make(map[string]*domain.SupplierConfig)

	add := func(sc *domain.SupplierConfig) {
		key := strings.ToLower(strings.TrimSpace(sc.Name))
		if _, exists := byName[key]; !exists {
			order = append(order, key)
		}
		byName[key] = sc
	}

	for _, sc := range mainDoc.Suppliers {
		add(sc)
	}
	for _, sc := range standalone {
		add(sc)
	}

	out := make([]*domain.SupplierConfig, 0, len(order))
	for _, key := range order {
		out = append(out, byName[key])
	}
	return out
}

// Validate checks the merged aggregate per spec §4.1: every supplier has a
// non-empty Name, a 3-letter Currency, every referenced lookup table
// exists, every ColumnRule's Actions satisfy their Op's parameter
// contract, and every detection pattern compiles.
func Validate(gc *domain.GlobalConfig, bySupplier map[string]*domain.SupplierConfig) error {
	for _, sc := range bySupplier {
		if strings.TrimSpace(sc.Name) == "" {
			return &domain.ValidationError{Message: "supplier Name is required"}
		}
		if len(sc.Currency) != 3 {
			return &domain.ValidationError{Supplier: sc.Name, Message: fmt.Sprintf("Currency must be a 3-letter code, got %q", sc.Currency)}
		}

		for _, pattern := range sc.FileStructure.Detection.FileNamePatterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return &domain.ValidationError{Supplier: sc.Name, Message: fmt.Sprintf("bad FileNamePatterns entry %q: %v", pattern, err)}
			}
		}

		if sc.SubtitleHandling != nil {
			for _, rule := range sc.SubtitleHandling.Rules {
				for _, p := range rule.ValidationPatterns {
					if _, err := regexp.Compile(p); err != nil {
						return &domain.ValidationError{Supplier: sc.Name, Message: fmt.Sprintf("subtitle rule %s: bad ValidationPatterns entry %q: %v", rule.Name, p, err)}
					}
				}
				for _, t := range rule.Transforms {
					if _, err := regexp.Compile(t.Pattern); err != nil {
						return &domain.ValidationError{Supplier: sc.Name, Message: fmt.Sprintf("subtitle rule %s: bad Transform pattern %q: %v", rule.Name, t.Pattern, err)}
					}
				}
				for _, a := range rule.Assignments {
					if a.Table != "" {
						if _, ok := sc.ResolveLookup(a.Table); !ok {
							return &domain.ValidationError{Supplier: sc.Name, Message: fmt.Sprintf("subtitle rule %s: unknown lookup table %q", rule.Name, a.Table)}
						}
					}
				}
			}
		}

		// NewRowEvaluator compiles every ColumnRule's Actions (and their
		// embedded Conditions/regexes), surfacing any bad Op parameter as
		// a *domain.ValidationError without running a single row.
		if _, err := engine.NewRowEvaluator(sc, false); err != nil {
			return err
		}

		for _, rule := range sc.ParserConfig.ColumnRules {
			for _, act := range rule.Actions {
				table, ok := actionLookupTable(act)
				if !ok || table == "" {
					continue
				}
				if _, ok := sc.ResolveLookup(table); !ok {
					return &domain.ValidationError{
						Supplier: sc.Name, Column: rule.Column, Action: act.Op,
						Message: fmt.Sprintf("references unknown lookup table %q", table),
					}
				}
			}
		}
	}
	return nil
}

// actionLookupTable extracts the lookup table name an Action references,
// if any, for Validate's table-existence check.
func actionLookupTable(act domain.ActionConfig) (string, bool) {
	switch strings.ToLower(act.Op) {
	case "map":
		t, ok := act.Parameters.Get("Table")
		return t, ok
	case "find":
		p, ok := act.Parameters.Get("Pattern")
		if !ok {
			return "", false
		}
		if table, isLookup := strings.CutPrefix(p, "lookup:"); isLookup {
			return strings.TrimSpace(table), true
		}
	}
	return "", false
}
