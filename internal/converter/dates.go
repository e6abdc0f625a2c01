package converter

import (
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/erp-coretax-converter/internal/sanitize"
)

// invoiceDateLayouts are tried in order. Day and month accept one or two
// digits. Ambiguous strings such as "01/02/2024" read day-first.
var invoiceDateLayouts = []string{
	"2.1.06",   // 15.03.24
	"2/1/2006", // 15/03/2024
	"2006-1-2", // 2024-03-15
	"2-1-2006", // 15-03-2024
}

// maxExcelSerial is the serial of 9999-12-31 in the 1900 date system.
const maxExcelSerial = 2958465

// ParseInvoiceDate normalizes a raw invoice date to YYYY-MM-DD.
//
// Accepted inputs:
//   - time.Time values with a year in 1-9999
//   - Excel serial numbers (numeric cells carrying a date format)
//   - strings in one of invoiceDateLayouts, optionally followed by a
//     time-of-day part ("2024-03-15 00:00:00")
//
// Anything else, including an empty value, resolves to the date of now.
func ParseInvoiceDate(raw any, now time.Time) string {
	return parseInvoiceDate(raw, now.Format(DateLayout))
}

func parseInvoiceDate(raw any, today string) string {
	switch v := raw.(type) {
	case nil:
		return today
	case time.Time:
		if v.IsZero() || v.Year() < 1 || v.Year() > 9999 {
			return today
		}
		return v.Format(DateLayout)
	case float64:
		return fromSerial(v, today)
	case float32:
		return fromSerial(float64(v), today)
	case int:
		return fromSerial(float64(v), today)
	case int64:
		return fromSerial(float64(v), today)
	}

	s := sanitize.CleanString(raw)
	if s == "" {
		return today
	}
	if d, ok := parseDateString(s); ok {
		return d.Format(DateLayout)
	}
	if i := strings.IndexAny(s, " T"); i > 0 {
		if d, ok := parseDateString(s[:i]); ok {
			return d.Format(DateLayout)
		}
	}
	return today
}

func parseDateString(s string) (time.Time, bool) {
	for _, layout := range invoiceDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func fromSerial(serial float64, today string) string {
	if math.IsNaN(serial) || serial < 1 || serial > maxExcelSerial {
		return today
	}
	d, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return today
	}
	return d.Format(DateLayout)
}
