package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/erp-coretax-converter/internal/config"
	"github.com/ginjaninja78/erp-coretax-converter/internal/coretax"
	"github.com/ginjaninja78/erp-coretax-converter/internal/sanitize"
)

// ValidateWorkbook checks an emitted workbook against the CoreTax layout.
//
// CHECKS:
//   - the four sheets exist in order Faktur, DetailFaktur, REF, Keterangan
//   - Faktur carries the NPWP label and a 15-16 digit NPWP
//   - DetailFaktur row 1 holds the 14 detail headers
//   - every data row is numbered 1..N in column A
//   - numeric columns hold finite, non-negative numbers
//   - no cell holds the literal "nan"
func ValidateWorkbook(f *excelize.File) *ValidationResult {
	return ValidateWorkbookWithOptions(f, DefaultValidationOptions())
}

// ValidateWorkbookWithOptions is ValidateWorkbook with custom options.
func ValidateWorkbookWithOptions(f *excelize.File, opts ValidationOptions) *ValidationResult {
	result := newResult()
	fail := func(sheet, cell, field, value, rule, message string, row int) {
		result.add(&ValidationError{
			Severity:  SeverityError,
			Sheet:     sheet,
			Cell:      cell,
			Field:     field,
			Value:     value,
			Rule:      rule,
			Message:   message,
			RowNumber: row,
		}, opts)
	}

	sheets := f.GetSheetList()
	if strings.Join(sheets, ",") != strings.Join(coretax.SheetOrder, ",") {
		fail("", "", "sheets", strings.Join(sheets, ","), "sheet_order",
			fmt.Sprintf("expected sheets %s", strings.Join(coretax.SheetOrder, ", ")), 0)
	}

	validateFaktur(f, fail)
	validateDetail(f, result, fail)

	return result
}

type failFunc func(sheet, cell, field, value, rule, message string, row int)

func validateFaktur(f *excelize.File, fail failFunc) {
	sheet := coretax.SheetFaktur
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return
	}

	label, _ := f.GetCellValue(sheet, "A1")
	if label != coretax.FakturNPWPLabel {
		fail(sheet, "A1", "label", label, "layout", fmt.Sprintf("expected %q", coretax.FakturNPWPLabel), 0)
	}

	npwp, _ := f.GetCellValue(sheet, "C1")
	if !config.ValidNPWP(npwp) {
		fail(sheet, "C1", "NPWP Penjual", npwp, "npwp", "expected a 15 or 16 digit NPWP", 0)
	}
}

func validateDetail(f *excelize.File, result *ValidationResult, fail failFunc) {
	sheet := coretax.SheetDetailFaktur
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		fail(sheet, "", "rows", "", "readable", fmt.Sprintf("failed to read rows: %v", err), 0)
		return
	}
	if len(rows) == 0 {
		fail(sheet, "A1", "header", "", "layout", "header row is missing", 0)
		return
	}

	for i, want := range coretax.DetailHeaders {
		got := cellAt(rows[0], i)
		if got != want {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			fail(sheet, cell, "header", got, "layout", fmt.Sprintf("expected %q", want), 0)
		}
	}

	data := rows[1:]
	result.RowsValidated = len(data)

	for i, row := range data {
		sheetRow := i + 2
		expected := i + 1

		for col := 1; col <= len(coretax.DetailHeaders); col++ {
			value := cellAt(row, col-1)
			cell, _ := excelize.CoordinatesToCellName(col, sheetRow)
			field := coretax.DetailHeaders[col-1]

			if sanitize.IsNaNString(value) {
				fail(sheet, cell, field, value, "no_nan", "value is the literal \"nan\"", expected)
				continue
			}
			if !coretax.IsNumericDetailColumn(col) {
				continue
			}

			n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			switch {
			case err != nil || math.IsNaN(n) || math.IsInf(n, 0):
				fail(sheet, cell, field, value, "finite", "expected a finite number", expected)
			case n < 0:
				fail(sheet, cell, field, value, "non_negative", "value is negative", expected)
			case col == 1 && n != float64(expected):
				fail(sheet, cell, field, value, "row_sequence", fmt.Sprintf("expected row number %d", expected), expected)
			}
		}
	}
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
