package tabular

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// isoDateLayouts are the forms excelize stores in t="d" cells.
var isoDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// readXLSX returns the cell grid of one worksheet and the sheet name used.
//
// Cell values are read raw (no number formatting) so that numerics and
// date serials arrive as float64 rather than as display strings. Text
// cells stay strings, preserving leading zeros in codes.
func readXLSX(r io.Reader, sheet string) ([][]any, string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet, err = resolveSheet(f, sheet)
	if err != nil {
		return nil, "", err
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, "", fmt.Errorf("failed to read rows of sheet %q: %w", sheet, err)
	}

	grid := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, raw := range row {
			if raw == "" {
				continue
			}
			cellType := excelize.CellTypeUnset
			if name, err := excelize.CoordinatesToCellName(j+1, i+1); err == nil {
				if t, err := f.GetCellType(sheet, name); err == nil {
					cellType = t
				}
			}
			cells[j] = convertCell(raw, cellType)
		}
		grid[i] = cells
	}

	return grid, sheet, nil
}

// resolveSheet returns the requested sheet, or the first one when empty.
func resolveSheet(f *excelize.File, sheet string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if sheet == "" {
		return sheets[0], nil
	}
	for _, name := range sheets {
		if strings.EqualFold(name, sheet) {
			return name, nil
		}
	}
	return "", fmt.Errorf("sheet %q not found (available: %s)", sheet, strings.Join(sheets, ", "))
}

// convertCell maps a raw cell value to the loosely typed row value.
func convertCell(raw string, cellType excelize.CellType) any {
	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f
		}
		return raw
	case excelize.CellTypeDate:
		for _, layout := range isoDateLayouts {
			if d, err := time.Parse(layout, raw); err == nil {
				return d
			}
		}
		return raw
	case excelize.CellTypeError:
		return nil
	default:
		return raw
	}
}
