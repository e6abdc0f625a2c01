// =============================================================================
// ERP to CoreTax Converter - Row Transformer
// =============================================================================
//
// This module turns one ERP sales row into one CoreTax detail record.
//
// PER-ROW PIPELINE:
//   1. Extract the named fields (exact header, then case-insensitive)
//   2. Coerce text and numerics through the sanitize package
//   3. Resolve the tax-inclusive total and the quantity
//   4. Back DPP and PPN out of the total at the configured VAT rate
//   5. Normalize the invoice date to YYYY-MM-DD
//   6. Assemble the record (defaults, truncation, constants)
//   7. Sweep the record once more (final validation pass)
//
// ERROR HANDLING:
//   Transform never fails. Field-level problems resolve to documented
//   defaults; a failure while assembling a row (including a panic) is logged
//   and the row is replaced by a fallback record carrying the same row number,
//   so the output always has exactly one record per input row.
//
// =============================================================================

package converter

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/erp-coretax-converter/internal/sanitize"
	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
)

// =============================================================================
// RECORD CONSTANTS
// =============================================================================

const (
	// ItemTypeGoods marks a detail line as goods ("A") rather than services.
	ItemTypeGoods = "A"

	// DefaultItemCode is used when the source row has no item code.
	DefaultItemCode = "310000"

	// DefaultItemName is used when the source row has no item name.
	DefaultItemName = "Barang/Jasa"

	// DefaultUnitLabel is the CoreTax unit of measure code written on every line.
	DefaultUnitLabel = "UM.0003"

	// ManualReviewItemName is the item name of a fallback record.
	ManualReviewItemName = "Manual review required"

	// MaxItemCodeLength and MaxItemNameLength are the CoreTax column limits.
	MaxItemCodeLength = 20
	MaxItemNameLength = 255

	// DateLayout is the output format of InvoiceDate.
	DateLayout = "2006-01-02"
)

// DefaultVATRate is the PPN rate applied when no rate is configured.
var DefaultVATRate = decimal.RequireFromString("0.12")

// =============================================================================
// TRANSFORMER
// =============================================================================

// TransformerOptions configures a Transformer.
type TransformerOptions struct {
	// VATRate is the PPN rate as a fraction (0.12 for 12%).
	VATRate decimal.Decimal

	// Now returns the processing time. Used for date fallbacks.
	// Default: time.Now
	Now func() time.Time

	// Logger receives row-recovery events.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultTransformerOptions returns options with the default VAT rate.
func DefaultTransformerOptions() TransformerOptions {
	return TransformerOptions{
		VATRate: DefaultVATRate,
		Now:     time.Now,
		Logger:  slog.Default(),
	}
}

// Transformer converts source rows into sanitized records.
// It only holds immutable configuration and is safe for concurrent use.
type Transformer struct {
	rate   decimal.Decimal
	now    func() time.Time
	logger *slog.Logger
}

// NewTransformer creates a Transformer. Nil Now and Logger fall back to
// time.Now and slog.Default(); the VAT rate is used exactly as given.
func NewTransformer(opts TransformerOptions) *Transformer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Transformer{
		rate:   opts.VATRate,
		now:    opts.Now,
		logger: opts.Logger,
	}
}

// VATRate returns the configured rate.
func (t *Transformer) VATRate() decimal.Decimal {
	return t.rate
}

// =============================================================================
// BATCH TRANSFORMATION
// =============================================================================

// Transform converts every row, preserving length and order.
// Row numbers are 1..len(rows) with no gaps, recovered rows included.
func (t *Transformer) Transform(rows []types.SourceRow) []types.RowResult {
	today := t.today()
	results := make([]types.RowResult, len(rows))

	for i, row := range rows {
		results[i] = t.transformRow(i+1, row, today)
	}

	t.logger.Debug("transformed rows",
		"rows", len(results),
		"recovered", types.CountRecovered(results),
	)

	return results
}

// TransformRow converts a single row. rowNumber is the 1-based input index.
func (t *Transformer) TransformRow(rowNumber int, row types.SourceRow) types.RowResult {
	return t.transformRow(rowNumber, row, t.today())
}

func (t *Transformer) transformRow(rowNumber int, row types.SourceRow, today string) types.RowResult {
	record, err := t.safeBuildRecord(rowNumber, row, today)
	if err != nil {
		t.logger.Error("failed to build record, substituting fallback",
			"row", rowNumber,
			"error", err,
		)
		return types.RowResult{
			Record: sanitize.SweepRecord(t.fallbackRecord(rowNumber, today)),
			Status: types.RowRecovered,
			Err:    err,
		}
	}

	return types.RowResult{
		Record: sanitize.SweepRecord(record),
		Status: types.RowClean,
	}
}

// safeBuildRecord converts a panic inside buildRecord into an error.
func (t *Transformer) safeBuildRecord(rowNumber int, row types.SourceRow, today string) (record types.SanitizedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row %d: panic while building record: %v", rowNumber, r)
		}
	}()
	return t.buildRecord(rowNumber, row, today)
}

// =============================================================================
// RECORD ASSEMBLY
// =============================================================================

// buildRecord assembles the record for a single row.
func (t *Transformer) buildRecord(rowNumber int, row types.SourceRow, today string) (types.SanitizedRecord, error) {
	if rowNumber < 1 {
		return types.SanitizedRecord{}, fmt.Errorf("invalid row number %d", rowNumber)
	}

	itemCode := sanitize.CleanString(lookup(row, types.ColItemCode))
	if itemCode == "" {
		itemCode = DefaultItemCode
	}
	itemName := sanitize.CleanString(lookup(row, types.ColItemName))
	if itemName == "" {
		itemName = DefaultItemName
	}

	quantity := ResolveQuantity(lookup(row, types.ColQty))
	priceAfterTax := sanitize.CleanNumeric(lookup(row, types.ColPriceAfterTax))
	invoiceAmount := sanitize.CleanNumeric(lookup(row, types.ColInvoiceAmount))

	total := ResolveTotal(invoiceAmount, priceAfterTax)
	taxBase, vatAmount := DeriveTax(total, t.rate)

	return types.SanitizedRecord{
		RowNumber:     rowNumber,
		ItemType:      ItemTypeGoods,
		ItemCode:      sanitize.Truncate(itemCode, MaxItemCodeLength),
		ItemName:      sanitize.Truncate(itemName, MaxItemNameLength),
		UnitLabel:     DefaultUnitLabel,
		UnitPrice:     UnitPrice(taxBase, quantity),
		Quantity:      quantity,
		DiscountTotal: 0,
		TaxBase:       taxBase,
		TaxBaseAlt:    taxBase,
		VATRatePct:    RatePercent(t.rate),
		VATAmount:     vatAmount,
		LuxuryRatePct: 0,
		LuxuryAmount:  0,

		CustomerCode: sanitize.CleanString(lookup(row, types.ColCustomerCode)),
		CustomerName: sanitize.CleanString(lookup(row, types.ColCustomerName)),
		InvoiceNo:    sanitize.CleanString(lookup(row, types.ColInvoiceNo)),
		InvoiceDate:  parseInvoiceDate(lookup(row, types.ColInvoiceDate), today),
		TotalAmount:  Round2(total),
	}, nil
}

// FallbackRecord returns the record substituted for a row that could not be
// built. Amounts are zero, quantity is 1 and the item name asks for review.
func (t *Transformer) FallbackRecord(rowNumber int) types.SanitizedRecord {
	return t.fallbackRecord(rowNumber, t.today())
}

func (t *Transformer) fallbackRecord(rowNumber int, today string) types.SanitizedRecord {
	return types.SanitizedRecord{
		RowNumber:     rowNumber,
		ItemType:      ItemTypeGoods,
		ItemCode:      DefaultItemCode,
		ItemName:      ManualReviewItemName,
		UnitLabel:     DefaultUnitLabel,
		UnitPrice:     0,
		Quantity:      1,
		DiscountTotal: 0,
		TaxBase:       0,
		TaxBaseAlt:    0,
		VATRatePct:    RatePercent(t.rate),
		VATAmount:     0,
		LuxuryRatePct: 0,
		LuxuryAmount:  0,
		InvoiceDate:   today,
		TotalAmount:   0,
	}
}

func (t *Transformer) today() string {
	return t.now().Format(DateLayout)
}

// =============================================================================
// FIELD LOOKUP
// =============================================================================

// lookup returns the value of a named column. An exact key match wins;
// otherwise keys are compared trimmed and case-insensitively.
func lookup(row types.SourceRow, column string) any {
	if v, ok := row[column]; ok {
		return v
	}
	for key, v := range row {
		if strings.EqualFold(strings.TrimSpace(key), column) {
			return v
		}
	}
	return nil
}
