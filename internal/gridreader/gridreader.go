// Package gridreader implements the Grid Reader contract the Parsing
// Engine is built against: ReadFile(path) -> FileData, an ordered sequence
// of rows of raw cell strings, numbers pre-stringified.
package gridreader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/thestrul/sacks/internal/domain"
)

// SupportedExtensions is the closed allow-list of file extensions the
// orchestrator accepts (spec §5: "extension in allow-list; otherwise
// ArgumentError").
var SupportedExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".csv":  true,
}

// Reader reads a supplier spreadsheet file into FileData. Grounded on the
// teacher's internal/drive xlsx-to-CSV conversion (xlsx_convert.go),
// generalized to read rows directly instead of converting to CSV first.
type Reader struct{}

// NewReader builds a Reader.
func NewReader() *Reader { return &Reader{} }

// ReadFile reads the first sheet of an .xlsx/.xls file, or the whole body
// of a .csv file, into a domain.FileData.
func (r *Reader) ReadFile(ctx context.Context, path string) (*domain.FileData, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return nil, fmt.Errorf("gridreader: unsupported extension %q", ext)
	}

	switch ext {
	case ".csv":
		return r.readCSV(ctx, path)
	default:
		return r.readExcel(ctx, path)
	}
}

func (r *Reader) readExcel(ctx context.Context, path string) (*domain.FileData, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("gridreader: open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("gridreader: %s has no sheets", path)
	}

	rowIter, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("gridreader: read rows from %s: %w", path, err)
	}
	defer rowIter.Close()

	fd := &domain.FileData{FilePath: path}
	idx := 0
	for rowIter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cols, err := rowIter.Columns()
		if err != nil {
			return nil, fmt.Errorf("gridreader: read row %d from %s: %w", idx, path, err)
		}
		fd.Rows = append(fd.Rows, rowToRowData(idx, cols))
		idx++
	}
	if err := rowIter.Error(); err != nil {
		return nil, fmt.Errorf("gridreader: iterating %s: %w", path, err)
	}
	return fd, nil
}

func (r *Reader) readCSV(ctx context.Context, path string) (*domain.FileData, error) {
	recs, err := readCSVFile(path)
	if err != nil {
		return nil, fmt.Errorf("gridreader: read csv %s: %w", path, err)
	}
	fd := &domain.FileData{FilePath: path}
	for idx, rec := range recs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		fd.Rows = append(fd.Rows, rowToRowData(idx, rec))
	}
	return fd, nil
}

func rowToRowData(index int, cols []string) domain.RowData {
	rd := domain.RowData{Index: index}
	for ci, v := range cols {
		rd.Cells = append(rd.Cells, domain.CellData{Index: ci, Value: v})
	}
	return rd
}
