// =============================================================================
// ERP to CoreTax Converter - Shared Types
// =============================================================================
//
// This package contains the types shared by the loader, the row transformer,
// the workbook emitter and the validator. Keeping them here avoids import
// cycles between:
//   - tabular    (produces SourceTable)
//   - converter  (SourceRow -> RowResult)
//   - coretax    (RowResult -> Workbook)
//   - validation (checks RowResult sequences and emitted workbooks)
//
// =============================================================================

package types

// =============================================================================
// SOURCE TYPES
// =============================================================================

// Expected column names of the ERP sales export. Any of them may be absent.
const (
	ColCustomerCode  = "CustomerCode"
	ColCustomerName  = "CustomerName"
	ColInvoiceNo     = "InvoiceNo"
	ColInvoiceDate   = "InvoiceDate"
	ColItemCode      = "ItemCode"
	ColItemName      = "ItemName"
	ColQty           = "Qty"
	ColPriceAfterTax = "PriceAfterTax"
	ColInvoiceAmount = "InvoiceAmount"
)

// SourceRow is a single row of the uploaded table.
// Key is the (trimmed) column header, value is whatever the loader produced:
// string, float64, int, bool, time.Time or nil.
type SourceRow map[string]any

// SourceTable is a fully materialized input table.
type SourceTable struct {
	// Headers are the trimmed column headers in source order.
	Headers []string

	// Rows are the data rows in source order.
	Rows []SourceRow

	// SourceFile is the path or upload name the table was read from.
	SourceFile string

	// SheetName is the worksheet the rows came from (empty for CSV).
	SheetName string
}

// =============================================================================
// OUTPUT TYPES
// =============================================================================

// SanitizedRecord is one CoreTax detail line. Field order follows the
// DetailFaktur column order; the trailing customer/invoice fields are carried
// for reporting and are not written to the detail sheet.
type SanitizedRecord struct {
	RowNumber     int
	ItemType      string
	ItemCode      string
	ItemName      string
	UnitLabel     string
	UnitPrice     float64
	Quantity      int
	DiscountTotal float64
	TaxBase       float64
	TaxBaseAlt    float64
	VATRatePct    int
	VATAmount     float64
	LuxuryRatePct int
	LuxuryAmount  float64

	CustomerCode string
	CustomerName string
	InvoiceNo    string
	InvoiceDate  string
	TotalAmount  float64
}

// RowStatus tells whether a record was built from its source row or
// substituted after a failure.
type RowStatus int

const (
	// RowClean means the record was built from the source row.
	RowClean RowStatus = iota

	// RowRecovered means building failed and a fallback record was used.
	RowRecovered
)

// String implements fmt.Stringer.
func (s RowStatus) String() string {
	switch s {
	case RowClean:
		return "clean"
	case RowRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// RowResult is the outcome of transforming one source row.
type RowResult struct {
	// Record is always populated, for recovered rows it is the fallback.
	Record SanitizedRecord

	// Status distinguishes clean rows from recovered ones.
	Status RowStatus

	// Err is the failure that triggered recovery. Nil for clean rows.
	Err error
}

// Recovered reports whether the row hit the fallback path.
func (r RowResult) Recovered() bool {
	return r.Status == RowRecovered
}

// Records extracts the record sequence from a result sequence.
func Records(results []RowResult) []SanitizedRecord {
	records := make([]SanitizedRecord, len(results))
	for i, r := range results {
		records[i] = r.Record
	}
	return records
}

// CountRecovered returns how many results hit the fallback path.
func CountRecovered(results []RowResult) int {
	n := 0
	for _, r := range results {
		if r.Recovered() {
			n++
		}
	}
	return n
}
