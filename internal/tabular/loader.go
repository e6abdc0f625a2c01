// =============================================================================
// ERP to CoreTax Converter - Table Loader
// =============================================================================
//
// This package loads an ERP sales export into a types.SourceTable. It is the
// boundary between raw bytes (a file on disk or an HTTP upload) and the row
// transformer, which only ever sees column name -> value maps.
//
// SUPPORTED FORMATS:
//   - .xlsx  Office Open XML workbook (read with excelize)
//   - .csv   comma, semicolon or tab separated text
//
// Legacy binary .xls workbooks are rejected with ErrUnsupportedFormat.
//
// HEADER HANDLING:
//   - The first non-blank row is the header row
//   - Headers are trimmed; blank headers become "Column_N"
//   - Repeated headers get a ".1", ".2", ... suffix
//
// DATA ROWS:
//   - Empty cells are absent from the row map
//   - Fully blank rows are skipped
//
// =============================================================================

package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
)

// ErrUnsupportedFormat is returned for inputs that are neither .xlsx nor .csv.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Format identifies an input file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatXLSX
	FormatCSV
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatXLSX:
		return "xlsx"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// SupportedExtensions lists the input extensions the loader accepts.
var SupportedExtensions = []string{".xlsx", ".csv"}

// DetectFormat maps a file name to its format by extension (case-insensitive).
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q (expected .xlsx or .csv)", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// IsSupported reports whether name has a loadable extension.
func IsSupported(name string) bool {
	_, err := DetectFormat(name)
	return err == nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the table stored at path.
//
// PARAMETERS:
//   - path: The .xlsx or .csv file to read.
//   - sheet: The worksheet to read. Empty selects the first sheet.
//     Ignored for CSV.
//
// RETURNS:
//   - The loaded table (possibly with zero rows).
//   - ErrUnsupportedFormat (wrapped) for other extensions, or a read error.
func Load(path, sheet string) (*types.SourceTable, error) {
	if _, err := DetectFormat(path); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return LoadReader(file, path, sheet)
}

// LoadReader reads a table from r. name is only used to pick the format
// and is recorded as the table's SourceFile.
func LoadReader(r io.Reader, name, sheet string) (*types.SourceTable, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}

	var grid [][]any
	switch format {
	case FormatXLSX:
		grid, sheet, err = readXLSX(r, sheet)
	case FormatCSV:
		grid, err = readCSV(r)
		sheet = ""
	}
	if err != nil {
		return nil, err
	}

	table := buildTable(grid)
	table.SourceFile = name
	table.SheetName = sheet
	return table, nil
}

// LoadBytes is LoadReader over an in-memory upload.
func LoadBytes(data []byte, name, sheet string) (*types.SourceTable, error) {
	return LoadReader(bytes.NewReader(data), name, sheet)
}

// =============================================================================
// TABLE ASSEMBLY
// =============================================================================

// buildTable turns a cell grid into headers and row maps. A nil cell is an
// empty cell.
func buildTable(grid [][]any) *types.SourceTable {
	table := &types.SourceTable{
		Headers: []string{},
		Rows:    []types.SourceRow{},
	}

	start := 0
	for start < len(grid) && isRowEmpty(grid[start]) {
		start++
	}
	if start == len(grid) {
		return table
	}

	table.Headers = cleanHeaders(grid[start])

	for _, cells := range grid[start+1:] {
		if isRowEmpty(cells) {
			continue
		}

		row := make(types.SourceRow, len(table.Headers))
		for i, value := range cells {
			if i >= len(table.Headers) || value == nil {
				continue
			}
			row[table.Headers[i]] = value
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

// cleanHeaders trims header cells, names blank ones and disambiguates repeats.
func cleanHeaders(cells []any) []string {
	headers := make([]string, len(cells))
	seen := make(map[string]int, len(cells))

	for i, cell := range cells {
		header := ""
		if cell != nil {
			header = strings.TrimSpace(fmt.Sprint(cell))
		}
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}

		if n, ok := seen[header]; ok {
			seen[header] = n + 1
			header = fmt.Sprintf("%s.%d", header, n+1)
		} else {
			seen[header] = 0
		}

		headers[i] = header
	}

	return headers
}

// isRowEmpty reports whether the row holds only nil or blank cells.
func isRowEmpty(cells []any) bool {
	for _, cell := range cells {
		switch v := cell.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(v) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
