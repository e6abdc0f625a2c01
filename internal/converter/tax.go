package converter

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/erp-coretax-converter/internal/sanitize"
)

// MaxQuantity caps the detail-line quantity at the 32-bit signed maximum.
const MaxQuantity = math.MaxInt32

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// DeriveTax backs the tax base (DPP) and VAT (PPN) out of a tax-inclusive
// total at the given rate:
//
//	base = round2(total / (1 + rate))
//	tax  = round2(base * rate)
//
// Rounding is half away from zero. A non-positive or non-finite total, or a
// rate with 1+rate <= 0, yields (0, 0). Both results are finite and >= 0.
func DeriveTax(total float64, rate decimal.Decimal) (taxBase, vat float64) {
	total = sanitize.Finite(total)
	if total <= 0 {
		return 0, 0
	}

	divisor := one.Add(rate)
	if divisor.Sign() <= 0 {
		return 0, 0
	}

	base := decimal.NewFromFloat(total).Div(divisor).Round(2)
	tax := base.Mul(rate).Round(2)

	return sanitize.NonNegative(base.InexactFloat64()), sanitize.NonNegative(tax.InexactFloat64())
}

// DeriveTax applies the transformer's configured rate.
func (t *Transformer) DeriveTax(total float64) (taxBase, vat float64) {
	return DeriveTax(total, t.rate)
}

// ResolveTotal picks the tax-inclusive line total: the invoice amount when it
// is positive, otherwise the price after tax. The result is never negative.
func ResolveTotal(invoiceAmount, priceAfterTax float64) float64 {
	if a := sanitize.Finite(invoiceAmount); a > 0 {
		return a
	}
	return sanitize.NonNegative(priceAfterTax)
}

// ResolveQuantity coerces a raw quantity to an integer in [1, MaxQuantity].
// Fractions are truncated; missing, zero, negative or unparseable values
// become 1.
func ResolveQuantity(raw any) int {
	q := sanitize.CleanNumeric(raw)
	if q < 1 {
		return 1
	}
	if q >= MaxQuantity {
		return MaxQuantity
	}
	return int(q)
}

// UnitPrice returns round2(taxBase / quantity). A quantity below 1 is
// treated as 1.
func UnitPrice(taxBase float64, quantity int) float64 {
	if quantity < 1 {
		quantity = 1
	}
	base := sanitize.NonNegative(taxBase)
	price := decimal.NewFromFloat(base).Div(decimal.NewFromInt(int64(quantity))).Round(2)
	return sanitize.NonNegative(price.InexactFloat64())
}

// RatePercent converts a fractional rate to the integer percentage written in
// the Tarif PPN column (0.12 -> 12).
func RatePercent(rate decimal.Decimal) int {
	pct := rate.Mul(hundred).Round(0).IntPart()
	if pct < 0 {
		return 0
	}
	return int(pct)
}

// Round2 rounds f to two decimals, half away from zero. Non-finite input
// yields 0.
func Round2(f float64) float64 {
	f = sanitize.Finite(f)
	if f == 0 {
		return 0
	}
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
