// =============================================================================
// ERP to CoreTax Converter - Finite-Number Coercion
// =============================================================================
//
// This package is the single funnel for every value that ends up in the
// CoreTax workbook. It is invoked at each boundary of the pipeline:
//   1. Field extraction   (CleanNumeric / CleanString)
//   2. Tax derivation     (Finite on the derived amounts)
//   3. Record sweep       (SweepRecord, the final validation pass)
//   4. Cell write         (CellValue, in the emitter)
//
// Every function here is total: it is defined for any input and never
// returns NaN, +Inf, -Inf or the literal string "nan".
//
// =============================================================================

package sanitize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
)

// nonNumericChars matches everything that is not a digit, minus sign or
// decimal point.
var nonNumericChars = regexp.MustCompile(`[^0-9.\-]`)

// =============================================================================
// NUMERIC COERCION
// =============================================================================

// Finite returns f, or 0 when f is NaN or infinite.
func Finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// NonNegative returns Finite(f) clamped at zero.
func NonNegative(f float64) float64 {
	f = Finite(f)
	if f <= 0 {
		return 0
	}
	return f
}

// CleanNumeric converts a loosely typed cell value to a finite float64.
//
// CONVERSION RULES:
//   - nil, "", "nan" (any case), NaN, +/-Inf  -> 0
//   - integers and floats                      -> their value
//   - bool                                     -> 1 or 0
//   - time.Time                                -> 0
//   - strings have every rune except [0-9.-] removed before parsing;
//     anything that still fails to parse yields 0
//   - any other type is formatted with fmt.Sprint and parsed as a string
func CleanNumeric(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return Finite(x)
	case float32:
		return Finite(float64(x))
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time:
		return 0
	case string:
		return parseNumericString(x)
	case fmt.Stringer:
		return parseNumericString(x.String())
	default:
		return parseNumericString(fmt.Sprint(x))
	}
}

// parseNumericString implements the string branch of CleanNumeric.
func parseNumericString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || IsNaNString(s) {
		return 0
	}

	cleaned := nonNumericChars.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		// Covers "-", ".", "1.2.3", "--5" and overflow to +/-Inf.
		return 0
	}
	return Finite(f)
}

// =============================================================================
// STRING COERCION
// =============================================================================

// IsNaNString reports whether s is the literal "nan" in any case,
// ignoring surrounding whitespace.
func IsNaNString(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "nan")
}

// Text blanks s when it is the literal "nan".
func Text(s string) string {
	if IsNaNString(s) {
		return ""
	}
	return s
}

// CleanString converts a loosely typed cell value to a trimmed string.
// Missing values, NaN floats and the literal "nan" all become "".
// Whole floats render without a fractional part ("310000", not "310000.0").
func CleanString(v any) string {
	var s string

	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		s = strconv.FormatFloat(f, 'f', -1, 32)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		s = x.Format("2006-01-02")
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}

	return Text(strings.TrimSpace(s))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// =============================================================================
// RECORD SWEEP
// =============================================================================

// SweepRecord is the final validation pass applied to every record.
//
// It zeroes non-finite numerics, clamps negative amounts to zero, lifts the
// quantity to at least 1 and blanks any string equal to "nan". Applying it
// twice yields the same record as applying it once.
func SweepRecord(r types.SanitizedRecord) types.SanitizedRecord {
	r.UnitPrice = NonNegative(r.UnitPrice)
	r.DiscountTotal = NonNegative(r.DiscountTotal)
	r.TaxBase = NonNegative(r.TaxBase)
	r.TaxBaseAlt = NonNegative(r.TaxBaseAlt)
	r.VATAmount = NonNegative(r.VATAmount)
	r.LuxuryAmount = NonNegative(r.LuxuryAmount)
	r.TotalAmount = NonNegative(r.TotalAmount)

	if r.Quantity < 1 {
		r.Quantity = 1
	}
	if r.VATRatePct < 0 {
		r.VATRatePct = 0
	}
	if r.LuxuryRatePct < 0 {
		r.LuxuryRatePct = 0
	}

	r.ItemType = Text(r.ItemType)
	r.ItemCode = Text(r.ItemCode)
	r.ItemName = Text(r.ItemName)
	r.UnitLabel = Text(r.UnitLabel)
	r.CustomerCode = Text(r.CustomerCode)
	r.CustomerName = Text(r.CustomerName)
	r.InvoiceNo = Text(r.InvoiceNo)
	r.InvoiceDate = Text(r.InvoiceDate)

	return r
}

// =============================================================================
// CELL GUARD
// =============================================================================

// CellValue guards a value right before it is written to a worksheet cell.
// Floats become finite, strings lose a literal "nan"; other types pass through.
func CellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return Finite(x)
	case float32:
		return Finite(float64(x))
	case string:
		return Text(x)
	default:
		return v
	}
}
