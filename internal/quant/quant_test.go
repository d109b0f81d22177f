package quant

import (
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuantizeTickMultiple(t *testing.T) {
	ticks := []string{"0.5", "0.01", "0.0001", "1", "0.25"}
	values := []float64{0, 0.004, 1.23456, 49999.7, 50001.3, 98765.4321, 0.00017}

	for _, ts := range ticks {
		tick := decimal.RequireFromString(ts)
		for _, v := range values {
			for _, r := range []Rounding{RoundNearest, RoundUp, RoundDown} {
				q := Quantize(v, tick, r)
				if !q.Mod(tick).IsZero() {
					t.Errorf("Quantize(%v, %s, %d) = %s not a tick multiple", v, ts, r, q)
				}
			}
		}
	}
}

func TestQuantizeDirection(t *testing.T) {
	tick := decimal.RequireFromString("0.01")

	for _, v := range []float64{1.234, 1.235, 1.2301, 99.999} {
		up := Quantize(v, tick, RoundUp)
		if up.LessThan(decimal.NewFromFloat(v)) {
			t.Errorf("RoundUp(%v) = %s below input", v, up)
		}
		down := Quantize(v, tick, RoundDown)
		if down.GreaterThan(decimal.NewFromFloat(v)) {
			t.Errorf("RoundDown(%v) = %s above input", v, down)
		}
	}

	// Marketable buys round up, sells round down.
	if MarketableRounding(true) != RoundUp || MarketableRounding(false) != RoundDown {
		t.Error("MarketableRounding direction wrong")
	}
}

func TestQuantizeExactInput(t *testing.T) {
	tick := decimal.RequireFromString("0.5")
	q := Quantize(1234.5, tick, RoundUp)
	if got := q.String(); got != "1234.5" {
		t.Errorf("exact multiple changed: got %s", got)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		px      float64
		tickDec int
		want    string
	}{
		{50000.0, 1, "50000"},       // integer zeros never stripped
		{123.4500, 4, "123.45"},     // trailing fractional zeros stripped
		{123.000, 3, "123"},         // fraction empties entirely
		{0.0001234, 7, "0.0001234"}, // leading zeros don't count as significant
		{1234.5678, 4, "1234.6"},    // capped to 5 significant digits
		{98765.4321, 4, "98765"},    // integer part already 5 digits
		{1.23456789, 6, "1.2346"},
		{26350, 0, "26350"},
	}

	for _, tt := range tests {
		if got := FormatPrice(tt.px, tt.tickDec); got != tt.want {
			t.Errorf("FormatPrice(%v, %d) = %q, want %q", tt.px, tt.tickDec, got, tt.want)
		}
	}
}

func TestFormatPriceRoundTrip(t *testing.T) {
	// format -> parse -> format must be a fixed point.
	for _, px := range []float64{50000.0, 1234.5678, 0.0001234, 7.25, 12345.678} {
		for dec := 0; dec <= 6; dec++ {
			s := FormatPrice(px, dec)
			back, err := strconv.ParseFloat(s, 64)
			if err != nil {
				t.Fatalf("FormatPrice(%v, %d) = %q not parseable: %v", px, dec, s, err)
			}
			if again := FormatPrice(back, dec); again != s {
				t.Errorf("round trip not idempotent: %q -> %q (px=%v dec=%d)", s, again, px, dec)
			}
		}
	}
}

func TestFormatPriceSigCapKeepsTickMultiple(t *testing.T) {
	// The 5-significant-digit cap must only coarsen to a superset grid.
	tickDec := 4
	tick := decimal.New(1, int32(-tickDec))
	for _, px := range []float64{1234.5678, 9876.54321, 111.11111} {
		s := FormatPrice(px, tickDec)
		d := decimal.RequireFromString(s)
		if !d.Mod(tick).IsZero() {
			t.Errorf("FormatPrice(%v) = %s violates tick grid", px, s)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		amount float64
		szDec  int
		want   string
	}{
		{1.50, 2, "1.5"},
		{10.0, 0, "10"},
		{0.12349, 4, "0.1235"},
		{100.000, 3, "100"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.amount, tt.szDec); got != tt.want {
			t.Errorf("FormatSize(%v, %d) = %q, want %q", tt.amount, tt.szDec, got, tt.want)
		}
	}
}
