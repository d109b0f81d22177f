package hyperliquid

import "strings"

// builderAliases maps friendly builder-code names to their onchain
// addresses. Codes already given as 0x addresses pass through untouched.
var builderAliases = map[string]string{
	"lit":       "0x24a747628494231347f4f6aead2ec14f50bcc8b7",
	"littrade":  "0x24a747628494231347f4f6aead2ec14f50bcc8b7",
	"based":     "0x1924b8561eef20e70ede628a296175d358be80e5",
	"basedone":  "0x1924b8561eef20e70ede628a296175d358be80e5",
	"basedapp":  "0x1924b8561eef20e70ede628a296175d358be80e5",
	"dexari":    "0x7975cafdff839ed5047244ed3a0dd82a89866081",
	"liquid":    "0x6d4e7f472e6a491b98cbeed327417e310ae8ce48",
	"supercexy": "0x0000000bfbf4c62c43c2e71ef0093f382bf7a7b4",
	"bullpen":   "0x4c8731897503f86a2643959cbaa1e075e84babb7",
	"mass":      "0xf944069b489f1ebff4c3c6a6014d58cbef7c7009",
	"dreamcash": "0x4950994884602d1b6c6d96e4fe30f58205c39395",
}

// resolveBuilderCode turns a friendly alias into its address. Unknown
// codes are returned lowercased as-is.
func resolveBuilderCode(code string) string {
	if code == "" || strings.HasPrefix(code, "0x") {
		return strings.ToLower(code)
	}
	key := strings.ToLower(code)
	for _, sep := range []string{".", "_", "-"} {
		key = strings.ReplaceAll(key, sep, "")
	}
	if addr, ok := builderAliases[key]; ok {
		return addr
	}
	return strings.ToLower(code)
}

// pickBuilderFee selects the fee in tenths of a basis point for the given
// universe. Lookup order: the dex's own key, then "dex", then "base",
// then the flat fallback rate. The default universe goes straight to
// "base".
func pickBuilderFee(rates map[string]int, fallback int, dex string) int {
	if len(rates) == 0 {
		return fallback
	}
	keys := []string{"base"}
	if dex != "" {
		keys = []string{dex, "dex", "base"}
	}
	for _, k := range keys {
		if fee, ok := rates[k]; ok {
			return fee
		}
	}
	return fallback
}
