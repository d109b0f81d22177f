// Package quant quantizes prices and sizes to exchange tick/lot grids and
// formats them as the decimal strings exchanges accept.
package quant

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rounding selects the quantization direction.
type Rounding int

const (
	// RoundNearest rounds half away from zero. Used for limit prices.
	RoundNearest Rounding = iota
	// RoundUp rounds toward +inf. Used for marketable buy prices so the
	// order fills through slippage.
	RoundUp
	// RoundDown rounds toward -inf. Used for marketable sell prices.
	RoundDown
)

// MarketableRounding returns the safe rounding direction for an order that
// must cross the spread: buys round up, sells round down.
func MarketableRounding(isBuy bool) Rounding {
	if isBuy {
		return RoundUp
	}
	return RoundDown
}

// Quantize snaps v onto the tick grid. The result is always an exact
// multiple of tick. A zero or negative tick returns v unchanged.
func Quantize(v float64, tick decimal.Decimal, r Rounding) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if tick.Sign() <= 0 {
		return d
	}
	steps := d.Div(tick)
	var n decimal.Decimal
	switch r {
	case RoundUp:
		n = steps.Ceil()
	case RoundDown:
		n = steps.Floor()
	default:
		n = steps.Round(0)
	}
	return n.Mul(tick)
}

// QuantizeDecimals snaps v onto a 10^-decimals grid.
func QuantizeDecimals(v float64, decimals int, r Rounding) decimal.Decimal {
	return Quantize(v, tickFromDecimals(decimals), r)
}

func tickFromDecimals(decimals int) decimal.Decimal {
	if decimals <= 0 {
		return decimal.New(1, 0)
	}
	return decimal.New(1, int32(-decimals))
}

// maxSigDigits caps displayed precision: several venues truncate prices to
// five significant digits.
const maxSigDigits = 5

// FormatPrice quantizes px to the tick grid (nearest) and renders it with at
// most five significant digits. The significant-digit cap only ever coarsens
// the fractional part, so the tick-multiple property is preserved. Trailing
// fractional zeros are stripped; integer digits are never touched.
func FormatPrice(px float64, tickDecimals int) string {
	if tickDecimals < 0 {
		tickDecimals = 0
	}
	d := decimal.NewFromFloat(px).Round(int32(tickDecimals))
	s := d.StringFixed(int32(tickDecimals))
	if !strings.Contains(s, ".") {
		return s
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	intDigits := 0
	if trimmed := strings.TrimLeft(strings.TrimPrefix(intPart, "-"), "0"); trimmed != "" {
		intDigits = len(trimmed)
	}
	// Leading zeros in the fraction of a sub-1 price are not significant.
	sigFrac := len(fracPart)
	leadZeros := 0
	if intDigits == 0 {
		trimmedFrac := strings.TrimLeft(fracPart, "0")
		leadZeros = len(fracPart) - len(trimmedFrac)
		sigFrac = len(trimmedFrac)
	}
	if intDigits+sigFrac <= maxSigDigits {
		return stripFractionalZeros(s)
	}

	allowFrac := leadZeros + maxSigDigits - intDigits
	if allowFrac < 0 {
		allowFrac = 0
	}
	if allowFrac > tickDecimals {
		allowFrac = tickDecimals
	}
	return stripFractionalZeros(d.Round(int32(allowFrac)).StringFixed(int32(allowFrac)))
}

// FormatSize quantizes amount to the lot grid (nearest) and renders it,
// stripping trailing fractional zeros.
func FormatSize(amount float64, szDecimals int) string {
	if szDecimals < 0 {
		szDecimals = 0
	}
	d := decimal.NewFromFloat(amount).Round(int32(szDecimals))
	return stripFractionalZeros(d.StringFixed(int32(szDecimals)))
}

// stripFractionalZeros removes trailing zeros after the decimal point, and
// the point itself when the fraction empties. "26350" stays "26350".
func stripFractionalZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
