// Package orchestrator implements the File Processor: the per-file state
// machine (validate -> detect supplier -> read grid -> apply subtitles ->
// parse -> normalize -> upsert -> commit) and the worker pool that runs
// multiple files in parallel, one transaction per file, per spec §4.6.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/thestrul/sacks/internal/domain"
	"github.com/thestrul/sacks/internal/engine"
	"github.com/thestrul/sacks/internal/gridreader"
	"github.com/thestrul/sacks/internal/matcher"
	"github.com/thestrul/sacks/internal/normalizer"
	"github.com/thestrul/sacks/internal/store"
	"github.com/thestrul/sacks/internal/subtitle"
	"github.com/thestrul/sacks/internal/upsert"
)

// Status is ProcessingResult's outcome enum.
type Status string

const (
	StatusOk             Status = "Ok"
	StatusDuplicateOffer Status = "DuplicateOffer"
	StatusCanceled       Status = "Canceled"
	StatusFailed         Status = "Failed"
)

// ProcessingResult reports one file's outcome, per spec §4.6.
type ProcessingResult struct {
	FilePath          string
	RowsRead          int
	RowsParsed        int
	ProductsCreated   int
	ProductsUpdated   int
	OfferLinesCreated int
	Warnings          []string
	Errors            []string
	Duration          time.Duration
	Status            Status
}

// Orchestrator wires the Grid Reader, Supplier Matcher, Subtitle Processor,
// Parsing Engine, Row Normalizer, and Bulk Upsert Coordinator into one
// per-file pipeline, and fans multiple files out across a bounded worker
// pool.
type Orchestrator struct {
	reader  *gridreader.Reader
	matcher *matcher.Matcher
	st      store.Store
	tracing bool
	log     zerolog.Logger
}

// New builds an Orchestrator.
func New(reader *gridreader.Reader, m *matcher.Matcher, st store.Store, tracing bool, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{reader: reader, matcher: m, st: st, tracing: tracing, log: log.With().Str("component", "orchestrator").Logger()}
}

// ProcessFile runs the full single-file pipeline. Per spec §4.6's
// scheduling model, everything from grid read through commit is
// single-threaded for this file to preserve row ordering and the
// transaction's bounds.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) *ProcessingResult {
	start := time.Now()
	res := &ProcessingResult{FilePath: path, Status: StatusOk}

	if err := validatePath(path); err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		res.Duration = time.Since(start)
		return res
	}

	supplier, err := o.matcher.Match(path)
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		res.Duration = time.Since(start)
		return res
	}

	fileData, err := o.reader.ReadFile(ctx, path)
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, (&domain.FileError{Path: path, Cause: err}).Error())
		res.Duration = time.Since(start)
		return res
	}
	res.RowsRead = len(fileData.Rows)

	subtitleProc, err := subtitle.New(supplier)
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		res.Duration = time.Since(start)
		return res
	}
	tracker := subtitle.NewTracker(supplier)

	rowEval, err := engine.NewRowEvaluator(supplier, o.tracing)
	if err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		res.Duration = time.Since(start)
		return res
	}
	norm := normalizer.New(supplier.Currency)

	var normalized []normalizer.NormalizedRow
	dataStart := supplier.FileStructure.DataStartRowIndex

	for _, row := range fileData.Rows {
		select {
		case <-ctx.Done():
			res.Status = StatusCanceled
			res.Duration = time.Since(start)
			return res
		default:
		}

		if row.Index < dataStart {
			continue
		}

		classification := subtitleProc.Classify(row)
		inherited := tracker.Observe(classification)

		// Action "skip" removes the row from the stream entirely (a
		// matched rule with Action=skip, or a non-matching row that also
		// fails the structural fallback check). The default "parse"
		// keeps the row — including subtitle rows themselves — tagged
		// but otherwise run through the normal column pipeline; a
		// subtitle row normally has no Product.Name and is dropped by
		// the required-field rule below rather than skipped here.
		if classification.Action == "skip" {
			continue
		}

		bag, warnings := rowEval.EvaluateRow(row.Cells, row.Index)
		for _, w := range warnings {
			res.Warnings = append(res.Warnings, w.Err.Error())
		}

		if assignments := subtitleAssignments(supplier); len(assignments) > 0 {
			if errs := engine.ApplySubtitleAssignments(bag, inherited, assignments, supplier); len(errs) > 0 {
				for _, e := range errs {
					res.Warnings = append(res.Warnings, e.Error())
				}
			}
		}

		nr := norm.Normalize(bag, row.Index)
		if nr.Dropped != nil {
			res.Warnings = append(res.Warnings, nr.Dropped.Error())
			continue
		}
		normalized = append(normalized, nr)
		res.RowsParsed++
	}

	upsertResult, err := upsert.Run(ctx, o.st, supplier.Name, supplier.Currency, path, normalized)
	if err != nil {
		if dup, ok := err.(*domain.DuplicateOffer); ok {
			res.Status = StatusDuplicateOffer
			res.Errors = append(res.Errors, dup.Error())
			res.Duration = time.Since(start)
			return res
		}
		res.Status = StatusFailed
		res.Errors = append(res.Errors, err.Error())
		res.Duration = time.Since(start)
		return res
	}

	res.ProductsCreated = upsertResult.ProductsCreated
	res.ProductsUpdated = upsertResult.ProductsUpdated
	res.OfferLinesCreated = upsertResult.OfferLinesCreated
	res.Duration = time.Since(start)
	return res
}

func subtitleAssignments(supplier *domain.SupplierConfig) []domain.SubtitleAssignment {
	if supplier.SubtitleHandling == nil {
		return nil
	}
	var out []domain.SubtitleAssignment
	for _, r := range supplier.SubtitleHandling.Rules {
		out = append(out, r.Assignments...)
	}
	return out
}

func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !gridreader.SupportedExtensions[ext] {
		return fmt.Errorf("unsupported extension %q", ext)
	}
	return nil
}

// ProcessFiles runs ProcessFile across paths using a worker pool bounded by
// concurrency, per spec §4.6: "Multiple files may be processed in
// parallel, each in its own transaction on its own DB connection."
func (o *Orchestrator) ProcessFiles(ctx context.Context, paths []string, concurrency int) ([]*ProcessingResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*ProcessingResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			results[i] = o.ProcessFile(ctx, p)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
