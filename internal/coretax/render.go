// =============================================================================
// ERP to CoreTax Converter - Spreadsheet Emitter
// =============================================================================
//
// This module renders sanitized records into the four-sheet workbook the
// CoreTax e-invoicing import expects.
//
// WORKBOOK STRUCTURE:
//
//   Faktur        A1 "NPWP Penjual", C1 <seller NPWP>
//                 row 3 headers, rows 4-8 five "Normal" invoice entries
//   DetailFaktur  row 1 the 14 detail headers, then one row per record
//   REF           code reference stub
//   Keterangan    column documentation stub
//
// Every DetailFaktur value goes through sanitize.CellValue before it is
// written. A cell that still fails to write is filled with its column's
// neutral value (0, "A" or "") and the failure is logged.
//
// =============================================================================

package coretax

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/erp-coretax-converter/internal/sanitize"
	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
)

// =============================================================================
// RENDER OPTIONS
// =============================================================================

// RenderOptions contains options for workbook rendering.
type RenderOptions struct {
	// Logger receives cell-write warnings.
	// Default: slog.Default()
	Logger *slog.Logger

	// HighlightRecovered fills DetailFaktur rows of recovered records so a
	// reviewer can find them.
	// Default: true
	HighlightRecovered bool

	// HighlightColor is the fill color of recovered rows (RGB hex).
	// Default: "FFF2CC"
	HighlightColor string

	// Now stamps the document properties.
	// Default: time.Now
	Now func() time.Time
}

// DefaultRenderOptions returns the default rendering options.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Logger:             slog.Default(),
		HighlightRecovered: true,
		HighlightColor:     "FFF2CC",
		Now:                time.Now,
	}
}

// =============================================================================
// RENDER FUNCTIONS
// =============================================================================

// Render builds the CoreTax workbook from transformed rows.
//
// PARAMETERS:
//   - results: The transformer output, in row order.
//   - sellerNPWP: The seller tax id for the Faktur sheet. Empty selects
//     DefaultSellerNPWP.
//
// RETURNS:
//   - The workbook; all four sheets are present even for empty input.
//   - An error only when a sheet cannot be created.
func Render(results []types.RowResult, sellerNPWP string) (*Workbook, error) {
	return RenderWithOptions(results, sellerNPWP, DefaultRenderOptions())
}

// RenderRecords renders plain records; none of them are highlighted.
func RenderRecords(records []types.SanitizedRecord, sellerNPWP string) (*Workbook, error) {
	results := make([]types.RowResult, len(records))
	for i, r := range records {
		results[i] = types.RowResult{Record: r, Status: types.RowClean}
	}
	return Render(results, sellerNPWP)
}

// RenderWithOptions builds the workbook with custom options.
func RenderWithOptions(results []types.RowResult, sellerNPWP string, opts RenderOptions) (*Workbook, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HighlightColor == "" {
		opts.HighlightColor = "FFF2CC"
	}
	if sellerNPWP == "" {
		sellerNPWP = DefaultSellerNPWP
	}

	f, err := newSheets()
	if err != nil {
		return nil, err
	}

	e := &emitter{file: f, opts: opts}
	e.setDocProps()
	e.buildFaktur(sellerNPWP)
	e.buildDetail(results)
	e.buildREF()
	e.buildKeterangan()

	return &Workbook{file: f}, nil
}

// newSheets creates a file holding the four sheets in order.
func newSheets() (*excelize.File, error) {
	f := excelize.NewFile()

	first := f.GetSheetName(0)
	if err := f.SetSheetName(first, SheetFaktur); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet %s: %w", SheetFaktur, err)
	}
	for _, name := range SheetOrder[1:] {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}
	return f, nil
}

// =============================================================================
// SHEET BUILDERS
// =============================================================================

type emitter struct {
	file *excelize.File
	opts RenderOptions
}

func (e *emitter) setDocProps() {
	err := e.file.SetDocProps(&excelize.DocProperties{
		Creator: "ERP to CoreTax Converter",
		Title:   "CoreTax Import",
		Created: e.opts.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		e.opts.Logger.Warn("failed to set document properties", "error", err)
	}
}

func (e *emitter) buildFaktur(sellerNPWP string) {
	e.setCell(SheetFaktur, 1, 1, FakturNPWPLabel, "")
	e.setCell(SheetFaktur, 3, 1, sellerNPWP, "")

	e.setCell(SheetFaktur, 1, FakturHeaderRow, fakturRowLabel, "")
	e.setCell(SheetFaktur, 3, FakturHeaderRow, fakturTypeLabel, "")
	e.setCell(SheetFaktur, 5, FakturHeaderRow, fakturRemarksLabel, "")

	for i := 0; i < FakturEntryCount; i++ {
		row := FakturFirstEntryRow + i
		e.setCell(SheetFaktur, 1, row, i+1, 0)
		e.setCell(SheetFaktur, 3, row, FakturInvoiceType, "")
	}

	e.styleRow(SheetFaktur, FakturHeaderRow, 5, e.boldStyle())
}

func (e *emitter) buildDetail(results []types.RowResult) {
	for i, header := range DetailHeaders {
		e.setCell(SheetDetailFaktur, i+1, 1, header, "")
	}
	e.styleRow(SheetDetailFaktur, 1, len(DetailHeaders), e.boldStyle())

	highlight := 0
	if e.opts.HighlightRecovered && types.CountRecovered(results) > 0 {
		highlight = e.fillStyle(e.opts.HighlightColor)
	}

	for i, result := range results {
		row := i + 2
		for col, value := range detailValues(result.Record) {
			e.setCell(SheetDetailFaktur, col+1, row, value, neutralDetailValue(col+1))
		}
		if result.Recovered() && highlight != 0 {
			e.styleRow(SheetDetailFaktur, row, len(DetailHeaders), highlight)
		}
	}

	if err := e.file.SetColWidth(SheetDetailFaktur, "A", "N", 16); err != nil {
		e.opts.Logger.Warn("failed to set column width", "sheet", SheetDetailFaktur, "error", err)
	}
}

func (e *emitter) buildREF() {
	e.setCell(SheetREF, 1, 1, refCodeLabel, "")
	e.setCell(SheetREF, 2, 1, refDescriptionLabel, "")
	e.setCell(SheetREF, 1, 2, refGoodsAndServices, "")
}

func (e *emitter) buildKeterangan() {
	for i, header := range KeteranganHeaders {
		e.setCell(SheetKeterangan, i+1, 1, header, "")
	}
	e.setCell(SheetKeterangan, 1, 2, keteranganSheetLabel, "")
}

// detailValues lists a record's DetailFaktur cells in column order.
func detailValues(r types.SanitizedRecord) []any {
	return []any{
		r.RowNumber,
		r.ItemType,
		r.ItemCode,
		r.ItemName,
		r.UnitLabel,
		r.UnitPrice,
		r.Quantity,
		r.DiscountTotal,
		r.TaxBase,
		r.TaxBaseAlt,
		r.VATRatePct,
		r.VATAmount,
		r.LuxuryRatePct,
		r.LuxuryAmount,
	}
}

// =============================================================================
// CELL GUARD
// =============================================================================

// setCell writes a guarded value, falling back to neutral on failure.
func (e *emitter) setCell(sheet string, col, row int, value, neutral any) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		e.opts.Logger.Warn("invalid cell coordinates", "sheet", sheet, "col", col, "row", row, "error", err)
		return
	}

	if err := e.file.SetCellValue(sheet, cell, sanitize.CellValue(value)); err != nil {
		e.opts.Logger.Warn("failed to write cell, writing neutral value",
			"sheet", sheet,
			"cell", cell,
			"error", err,
		)
		if err := e.file.SetCellValue(sheet, cell, neutral); err != nil {
			e.opts.Logger.Warn("failed to write neutral value", "sheet", sheet, "cell", cell, "error", err)
		}
	}
}

// =============================================================================
// STYLES
// =============================================================================

func (e *emitter) boldStyle() int {
	id, err := e.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		e.opts.Logger.Warn("failed to create header style", "error", err)
		return 0
	}
	return id
}

func (e *emitter) fillStyle(color string) int {
	id, err := e.file.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
	if err != nil {
		e.opts.Logger.Warn("failed to create highlight style", "color", color, "error", err)
		return 0
	}
	return id
}

// styleRow applies style to columns 1..cols of row. Style 0 is a no-op.
func (e *emitter) styleRow(sheet string, row, cols, style int) {
	if style == 0 {
		return
	}
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return
	}
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return
	}
	if err := e.file.SetCellStyle(sheet, first, last, style); err != nil {
		e.opts.Logger.Warn("failed to apply style", "sheet", sheet, "row", row, "error", err)
	}
}
