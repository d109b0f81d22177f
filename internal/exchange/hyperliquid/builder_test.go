package hyperliquid

import "testing"

func TestResolveBuilderCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"empty", "", ""},
		{"address passthrough", "0xABCDef0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001"},
		{"alias", "lit", "0x24a747628494231347f4f6aead2ec14f50bcc8b7"},
		{"alias with separators", "Based.One", "0x1924b8561eef20e70ede628a296175d358be80e5"},
		{"unknown code lowercased", "MyDesk", "mydesk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveBuilderCode(tt.code); got != tt.want {
				t.Errorf("resolveBuilderCode(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestPickBuilderFee(t *testing.T) {
	rates := map[string]int{"unit": 30, "dex": 20, "base": 10}

	tests := []struct {
		name     string
		rates    map[string]int
		fallback int
		dex      string
		want     int
	}{
		{"dex-specific key wins", rates, 5, "unit", 30},
		{"unlisted dex falls to dex key", rates, 5, "other", 20},
		{"default universe uses base", rates, 5, "", 10},
		{"no map uses flat rate", nil, 5, "unit", 5},
		{"empty map uses flat rate", map[string]int{}, 5, "", 5},
		{"no matching key uses flat rate", map[string]int{"spot": 40}, 5, "", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickBuilderFee(tt.rates, tt.fallback, tt.dex); got != tt.want {
				t.Errorf("pickBuilderFee(%v, %d, %q) = %d, want %d", tt.rates, tt.fallback, tt.dex, got, tt.want)
			}
		})
	}
}
