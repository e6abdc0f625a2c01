package converter

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
)

var fixedNow = time.Date(2025, 6, 30, 14, 5, 0, 0, time.UTC)

func newTestTransformer() *Transformer {
	return NewTransformer(TransformerOptions{
		VATRate: DefaultVATRate,
		Now:     func() time.Time { return fixedNow },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// panicky blows up when the sanitizer formats it.
type panicky struct{}

func (panicky) String() string { panic("unprintable cell") }

func TestDeriveTax(t *testing.T) {
	tests := []struct {
		name     string
		total    float64
		wantBase float64
		wantVAT  float64
	}{
		{name: "round total", total: 1120, wantBase: 1000, wantVAT: 120},
		{name: "half total", total: 560, wantBase: 500, wantVAT: 60},
		{name: "repeating quotient", total: 100, wantBase: 89.29, wantVAT: 10.71},
		{name: "half up at a tie", total: 0.42, wantBase: 0.38, wantVAT: 0.05},
		{name: "zero", total: 0, wantBase: 0, wantVAT: 0},
		{name: "negative", total: -1120, wantBase: 0, wantVAT: 0},
		{name: "NaN", total: math.NaN(), wantBase: 0, wantVAT: 0},
		{name: "infinity", total: math.Inf(1), wantBase: 0, wantVAT: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, vat := DeriveTax(tt.total, DefaultVATRate)
			assert.InDelta(t, tt.wantBase, base, 1e-9)
			assert.InDelta(t, tt.wantVAT, vat, 1e-9)
		})
	}

	t.Run("degenerate rate", func(t *testing.T) {
		base, vat := DeriveTax(1120, decimal.NewFromInt(-1))
		assert.Zero(t, base)
		assert.Zero(t, vat)
	})

	t.Run("zero rate", func(t *testing.T) {
		base, vat := DeriveTax(1120, decimal.Zero)
		assert.Equal(t, 1120.0, base)
		assert.Zero(t, vat)
	})
}

func TestResolveTotal(t *testing.T) {
	assert.Equal(t, 1120.0, ResolveTotal(1120, 999))
	assert.Equal(t, 999.0, ResolveTotal(0, 999))
	assert.Equal(t, 999.0, ResolveTotal(-5, 999))
	assert.Equal(t, 0.0, ResolveTotal(0, -10))
	assert.Equal(t, 0.0, ResolveTotal(math.NaN(), math.Inf(1)))
}

func TestResolveQuantity(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want int
	}{
		{name: "missing", raw: nil, want: 1},
		{name: "zero", raw: 0.0, want: 1},
		{name: "negative", raw: -5, want: 1},
		{name: "empty", raw: "", want: 1},
		{name: "text", raw: "abc", want: 1},
		{name: "fraction below one", raw: 0.4, want: 1},
		{name: "fraction truncated", raw: 2.9, want: 2},
		{name: "numeric string", raw: "3", want: 3},
		{name: "huge", raw: 1e12, want: MaxQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveQuantity(tt.raw))
		})
	}
}

func TestParseInvoiceDate(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{name: "dotted short year", raw: "15.03.24", want: "2024-03-15"},
		{name: "slashed day first", raw: "01/02/2024", want: "2024-02-01"},
		{name: "iso", raw: "2024-03-15", want: "2024-03-15"},
		{name: "dashed day first", raw: "15-03-2024", want: "2024-03-15"},
		{name: "single digits", raw: "5/3/2024", want: "2024-03-05"},
		{name: "iso with time", raw: "2024-03-15 00:00:00", want: "2024-03-15"},
		{name: "time value", raw: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), want: "2024-03-15"},
		{name: "time past year 9999", raw: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), want: "2025-06-30"},
		{name: "time before year 1", raw: time.Date(0, 12, 31, 0, 0, 0, 0, time.UTC), want: "2025-06-30"},
		{name: "excel serial", raw: 45366.0, want: "2024-03-15"},
		{name: "serial out of range", raw: 1e9, want: "2025-06-30"},
		{name: "invalid day", raw: "31/02/2024", want: "2025-06-30"},
		{name: "garbage", raw: "next tuesday", want: "2025-06-30"},
		{name: "nan", raw: "nan", want: "2025-06-30"},
		{name: "missing", raw: nil, want: "2025-06-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInvoiceDate(tt.raw, fixedNow))
		})
	}
}

func TestRatePercentAndUnitPrice(t *testing.T) {
	assert.Equal(t, 12, RatePercent(DefaultVATRate))
	assert.Equal(t, 11, RatePercent(decimal.RequireFromString("0.11")))
	assert.Equal(t, 0, RatePercent(decimal.NewFromInt(-1)))

	assert.Equal(t, 500.0, UnitPrice(1000, 2))
	assert.Equal(t, 333.33, UnitPrice(1000, 3))
	assert.Equal(t, 1000.0, UnitPrice(1000, 0))
}

func TestTransformCleanRows(t *testing.T) {
	tr := newTestTransformer()

	rows := []types.SourceRow{
		{
			"CustomerCode":  "C001",
			"CustomerName":  " PT Maju ",
			"InvoiceNo":     "INV-1",
			"InvoiceDate":   "15.03.24",
			"ItemCode":      "BRG-01",
			"ItemName":      "Widget",
			"Qty":           2.0,
			"PriceAfterTax": 0.0,
			"InvoiceAmount": 1120.0,
		},
		{
			"ItemName":      "Gadget",
			"Qty":           "1",
			"PriceAfterTax": "560",
		},
	}

	results := tr.Transform(rows)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, types.RowClean, first.Status)
	assert.NoError(t, first.Err)
	assert.Equal(t, 1, first.Record.RowNumber)
	assert.Equal(t, "A", first.Record.ItemType)
	assert.Equal(t, "BRG-01", first.Record.ItemCode)
	assert.Equal(t, "Widget", first.Record.ItemName)
	assert.Equal(t, "UM.0003", first.Record.UnitLabel)
	assert.Equal(t, 500.0, first.Record.UnitPrice)
	assert.Equal(t, 2, first.Record.Quantity)
	assert.Equal(t, 1000.0, first.Record.TaxBase)
	assert.Equal(t, 1000.0, first.Record.TaxBaseAlt)
	assert.Equal(t, 12, first.Record.VATRatePct)
	assert.Equal(t, 120.0, first.Record.VATAmount)
	assert.Equal(t, 0, first.Record.LuxuryRatePct)
	assert.Equal(t, "PT Maju", first.Record.CustomerName)
	assert.Equal(t, "2024-03-15", first.Record.InvoiceDate)
	assert.Equal(t, 1120.0, first.Record.TotalAmount)

	second := results[1]
	assert.Equal(t, 2, second.Record.RowNumber)
	assert.Equal(t, DefaultItemCode, second.Record.ItemCode)
	assert.Equal(t, 500.0, second.Record.TaxBase)
	assert.Equal(t, 60.0, second.Record.VATAmount)
	assert.Equal(t, "2025-06-30", second.Record.InvoiceDate)
}

func TestTransformDefaultsAndLimits(t *testing.T) {
	tr := newTestTransformer()

	results := tr.Transform([]types.SourceRow{
		{"ItemCode": "nan", "ItemName": "NaN", "Qty": "abc"},
		{"ItemCode": strings.Repeat("X", 30), "ItemName": strings.Repeat("n", 300)},
	})
	require.Len(t, results, 2)

	assert.Equal(t, DefaultItemCode, results[0].Record.ItemCode)
	assert.Equal(t, DefaultItemName, results[0].Record.ItemName)
	assert.Equal(t, 1, results[0].Record.Quantity)
	assert.Zero(t, results[0].Record.TaxBase)
	assert.Zero(t, results[0].Record.VATAmount)

	assert.Len(t, results[1].Record.ItemCode, MaxItemCodeLength)
	assert.Len(t, results[1].Record.ItemName, MaxItemNameLength)
}

func TestTransformCaseInsensitiveColumns(t *testing.T) {
	tr := newTestTransformer()

	results := tr.Transform([]types.SourceRow{
		{" itemname ": "Widget", "QTY": 4.0, "invoiceamount": 1120.0},
	})
	require.Len(t, results, 1)

	rec := results[0].Record
	assert.Equal(t, "Widget", rec.ItemName)
	assert.Equal(t, 4, rec.Quantity)
	assert.Equal(t, 1000.0, rec.TaxBase)
	assert.Equal(t, 250.0, rec.UnitPrice)
}

func TestTransformRecoversFailedRow(t *testing.T) {
	tr := newTestTransformer()

	rows := []types.SourceRow{
		{"ItemName": "ok", "InvoiceAmount": 1120.0},
		{"ItemName": panicky{}, "InvoiceAmount": 1120.0},
		{"ItemName": "also ok", "InvoiceAmount": 560.0},
	}

	results := tr.Transform(rows)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i+1, r.Record.RowNumber)
	}

	bad := results[1]
	assert.True(t, bad.Recovered())
	require.Error(t, bad.Err)
	assert.Contains(t, bad.Err.Error(), "unprintable cell")
	assert.Equal(t, ManualReviewItemName, bad.Record.ItemName)
	assert.Equal(t, 1, bad.Record.Quantity)
	assert.Zero(t, bad.Record.TaxBase)
	assert.Zero(t, bad.Record.VATAmount)
	assert.Equal(t, 12, bad.Record.VATRatePct)
	assert.Equal(t, "A", bad.Record.ItemType)
	assert.Equal(t, "UM.0003", bad.Record.UnitLabel)
	assert.Equal(t, "2025-06-30", bad.Record.InvoiceDate)

	assert.Equal(t, 1, types.CountRecovered(results))
	assert.Equal(t, types.RowClean, results[2].Status)
}

func TestTransformEmpty(t *testing.T) {
	tr := newTestTransformer()
	assert.Empty(t, tr.Transform(nil))
}

func TestFallbackRecord(t *testing.T) {
	tr := newTestTransformer()

	rec := tr.FallbackRecord(7)
	assert.Equal(t, 7, rec.RowNumber)
	assert.Equal(t, DefaultItemCode, rec.ItemCode)
	assert.Equal(t, ManualReviewItemName, rec.ItemName)
	assert.Equal(t, 1, rec.Quantity)
	assert.Equal(t, "2025-06-30", rec.InvoiceDate)
}

func TestNewTransformerDefaults(t *testing.T) {
	tr := NewTransformer(TransformerOptions{VATRate: DefaultVATRate})
	require.NotNil(t, tr.now)
	require.NotNil(t, tr.logger)
	assert.True(t, tr.VATRate().Equal(DefaultVATRate))
}
