// Package symbol parses and normalizes the symbol grammar shared by the
// exchange adapters.
//
// Three shapes exist:
//   - "BTC"       perp on the exchange's primary venue
//   - "xyz:BTC"   perp on the auxiliary venue "xyz" (split on the first
//     separator only; the venue name is lowercased, the coin uppercased)
//   - "BTC/USDC"  spot pair
package symbol

import "strings"

// Separator between an auxiliary venue name and the coin.
const venueSep = ":"

// Symbol is a parsed symbol. Venue is empty for the primary venue.
type Symbol struct {
	Venue string // Auxiliary venue name, lowercase ("" = primary)
	Coin  string // Uppercase coin or "BASE/QUOTE" pair
}

// Key returns the canonical lookup key: "COIN" on the primary venue,
// "venue:COIN" on an auxiliary one.
func (s Symbol) Key() string {
	if s.Venue == "" {
		return s.Coin
	}
	return s.Venue + venueSep + s.Coin
}

// IsSpot reports whether the symbol names a spot pair.
func (s Symbol) IsSpot() bool {
	return strings.Contains(s.Coin, "/")
}

// Parse splits a raw symbol into venue and coin. Only the first separator
// splits; anything after it belongs to the coin name.
func Parse(raw string) Symbol {
	r := strings.TrimSpace(raw)
	if i := strings.Index(r, venueSep); i >= 0 {
		return Symbol{
			Venue: strings.ToLower(strings.TrimSpace(r[:i])),
			Coin:  strings.ToUpper(strings.TrimSpace(r[i+1:])),
		}
	}
	return Symbol{Coin: strings.ToUpper(r)}
}

// Normalize returns the canonical key for a raw symbol.
func Normalize(raw string) string {
	return Parse(raw).Key()
}

// PairCandidates expands a raw spot symbol into candidate "BASE/QUOTE" pairs.
// A symbol already containing "/" maps to itself; a bare coin is tried
// against the stable quotes in preference order.
func PairCandidates(raw string, quotes []string) []string {
	r := strings.ToUpper(strings.TrimSpace(raw))
	if strings.Contains(r, "/") {
		return []string{r}
	}
	out := make([]string, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, r+"/"+q)
	}
	return out
}
