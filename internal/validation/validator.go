// =============================================================================
// ERP to CoreTax Converter - Validation Engine
// =============================================================================
//
// This module checks the converter output before and after it is written.
//
// VALIDATION LEVELS:
//   1. Record-level:   every sanitized record (ValidateRecords)
//   2. Sequence-level: row numbers 1..N without gaps (ValidateRecords)
//   3. Workbook-level: sheet order, headers and cell contents of an emitted
//      workbook (ValidateWorkbook)
//
// ERROR HANDLING:
//   - Findings are collected, never thrown
//   - Each finding carries row, field and value context
//   - Severity "error" means the output breaks a CoreTax import rule;
//     "warning" flags rows a reviewer should look at (recovered rows)
//
// =============================================================================

package validation

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ginjaninja78/erp-coretax-converter/internal/sanitize"
	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation finding.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// Sheet and Cell locate workbook findings. Empty for record findings.
	Sheet string
	Cell  string

	// Field is the record field or column header that failed validation.
	Field string

	// Value is the offending value, formatted.
	Value string

	// Rule is the short name of the violated rule.
	Rule string

	// Message is a human-readable explanation.
	Message string

	// RowNumber is the record's row number (0 when not row-specific).
	RowNumber int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	location := fmt.Sprintf("Row %d", e.RowNumber)
	if e.Sheet != "" {
		location = fmt.Sprintf("Sheet %s, Cell %s", e.Sheet, e.Cell)
	}
	return fmt.Sprintf("[%s] %s, Field '%s': %s (value: '%s')",
		strings.ToUpper(e.Severity),
		location,
		e.Field,
		e.Message,
		e.Value,
	)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no error-severity findings.
	IsValid bool

	// Errors contains all findings, warnings included.
	Errors []*ValidationError

	// ErrorCount is the number of error-severity findings.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// RowsValidated is the number of records or data rows checked.
	RowsValidated int
}

func newResult() *ValidationResult {
	return &ValidationResult{IsValid: true, Errors: make([]*ValidationError, 0)}
}

func (r *ValidationResult) add(e *ValidationError, opts ValidationOptions) {
	r.Errors = append(r.Errors, e)
	if e.Severity == SeverityError {
		r.ErrorCount++
		r.IsValid = false
		return
	}
	r.WarningCount++
	if opts.TreatWarningsAsErrors {
		r.IsValid = false
	}
}

// =============================================================================
// OPTIONS
// =============================================================================

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// TreatWarningsAsErrors makes warnings invalidate the result.
	// Default: false
	TreatWarningsAsErrors bool

	// MaxItemCodeLength and MaxItemNameLength are rune limits.
	// Default: 20 and 255
	MaxItemCodeLength int
	MaxItemNameLength int

	// ItemType and UnitLabel are the expected constants.
	// Default: "A" and "UM.0003"
	ItemType  string
	UnitLabel string
}

// DefaultValidationOptions returns the default validation options.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		TreatWarningsAsErrors: false,
		MaxItemCodeLength:     20,
		MaxItemNameLength:     255,
		ItemType:              "A",
		UnitLabel:             "UM.0003",
	}
}

// =============================================================================
// RECORD VALIDATION
// =============================================================================

// ValidateRecords validates transformer output with the default options.
func ValidateRecords(results []types.RowResult) *ValidationResult {
	return ValidateRecordsWithOptions(results, DefaultValidationOptions())
}

// ValidateRecordsWithOptions validates every record and the row sequence.
func ValidateRecordsWithOptions(results []types.RowResult, opts ValidationOptions) *ValidationResult {
	result := newResult()
	result.RowsValidated = len(results)

	for i, rr := range results {
		for _, e := range validateRecord(rr.Record, i+1, opts) {
			result.add(e, opts)
		}
		if rr.Recovered() {
			msg := "row could not be converted, a fallback record was written"
			if rr.Err != nil {
				msg = fmt.Sprintf("%s: %v", msg, rr.Err)
			}
			result.add(&ValidationError{
				Severity:  SeverityWarning,
				Field:     "ItemName",
				Value:     rr.Record.ItemName,
				Rule:      "recovered",
				Message:   msg,
				RowNumber: rr.Record.RowNumber,
			}, opts)
		}
	}

	return result
}

// validateRecord checks one record. expectedRow is its 1-based position.
func validateRecord(r types.SanitizedRecord, expectedRow int, opts ValidationOptions) []*ValidationError {
	var errs []*ValidationError
	fail := func(field, value, rule, message string) {
		errs = append(errs, &ValidationError{
			Severity:  SeverityError,
			Field:     field,
			Value:     value,
			Rule:      rule,
			Message:   message,
			RowNumber: r.RowNumber,
		})
	}

	if r.RowNumber != expectedRow {
		fail("RowNumber", fmt.Sprint(r.RowNumber), "row_sequence",
			fmt.Sprintf("expected row number %d", expectedRow))
	}

	amounts := []struct {
		field string
		value float64
	}{
		{"UnitPrice", r.UnitPrice},
		{"DiscountTotal", r.DiscountTotal},
		{"TaxBase", r.TaxBase},
		{"TaxBaseAlt", r.TaxBaseAlt},
		{"VATAmount", r.VATAmount},
		{"LuxuryAmount", r.LuxuryAmount},
		{"TotalAmount", r.TotalAmount},
	}
	for _, a := range amounts {
		switch {
		case math.IsNaN(a.value) || math.IsInf(a.value, 0):
			fail(a.field, fmt.Sprint(a.value), "finite", "value is not a finite number")
		case a.value < 0:
			fail(a.field, fmt.Sprint(a.value), "non_negative", "value is negative")
		}
	}

	if r.Quantity < 1 {
		fail("Quantity", fmt.Sprint(r.Quantity), "min_quantity", "quantity must be at least 1")
	}
	if r.VATRatePct < 0 {
		fail("VATRatePct", fmt.Sprint(r.VATRatePct), "non_negative", "rate is negative")
	}
	if r.TaxBaseAlt != r.TaxBase {
		fail("TaxBaseAlt", fmt.Sprint(r.TaxBaseAlt), "equals_tax_base", "DPP Nilai Lain must equal DPP")
	}

	if n := utf8.RuneCountInString(r.ItemCode); n > opts.MaxItemCodeLength {
		fail("ItemCode", r.ItemCode, "max_length",
			fmt.Sprintf("length %d exceeds %d", n, opts.MaxItemCodeLength))
	}
	if n := utf8.RuneCountInString(r.ItemName); n > opts.MaxItemNameLength {
		fail("ItemName", r.ItemName, "max_length",
			fmt.Sprintf("length %d exceeds %d", n, opts.MaxItemNameLength))
	}
	if r.ItemType != opts.ItemType {
		fail("ItemType", r.ItemType, "constant", fmt.Sprintf("expected %q", opts.ItemType))
	}
	if r.UnitLabel != opts.UnitLabel {
		fail("UnitLabel", r.UnitLabel, "constant", fmt.Sprintf("expected %q", opts.UnitLabel))
	}

	texts := []struct {
		field string
		value string
	}{
		{"ItemType", r.ItemType},
		{"ItemCode", r.ItemCode},
		{"ItemName", r.ItemName},
		{"UnitLabel", r.UnitLabel},
		{"CustomerCode", r.CustomerCode},
		{"CustomerName", r.CustomerName},
		{"InvoiceNo", r.InvoiceNo},
		{"InvoiceDate", r.InvoiceDate},
	}
	for _, tx := range texts {
		if sanitize.IsNaNString(tx.value) {
			fail(tx.field, tx.value, "no_nan", "value is the literal \"nan\"")
		}
	}

	if _, err := time.Parse("2006-01-02", r.InvoiceDate); err != nil {
		fail("InvoiceDate", r.InvoiceDate, "date", "expected a valid YYYY-MM-DD date")
	}

	return errs
}

// =============================================================================
// REPORTING
// =============================================================================

// FormatErrors formats validation findings for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d finding(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes validation findings to filePath.
func WriteErrorLog(errors []*ValidationError, filePath string) error {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Validation log written %s\n", time.Now().Format(time.RFC3339)))
	builder.WriteString(strings.Repeat("=", 60))
	builder.WriteString("\n")
	builder.WriteString(FormatErrors(errors))

	if err := os.WriteFile(filePath, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write validation log: %w", err)
	}
	return nil
}
