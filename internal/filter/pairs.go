// Package filter prunes the scan universe: stablecoin-to-stablecoin pairs
// carry no directional edge and custom exclusions keep known-bad markets out.
package filter

import "strings"

// Stablecoins covers the major pegged assets seen across perp venues.
var Stablecoins = map[string]bool{
	"USDT": true, "USDC": true, "BUSD": true, "DAI": true, "TUSD": true,
	"USDP": true, "USDD": true, "GUSD": true, "FRAX": true, "LUSD": true,
	"USDK": true, "USDJ": true, "HUSD": true, "CUSD": true, "UST": true,
	"USTC": true, "SUSD": true, "DUSD": true, "OUSD": true, "MUSD": true,
	"RSV": true,
}

// PairFilter applies universe hygiene rules to candidate symbols.
type PairFilter struct {
	excludeStables bool
	customExclude  []string
}

// New creates a filter. customExclude entries match as substrings so
// "PEPE" removes both PEPE/USDT and 1000PEPE/USDT.
func New(excludeStables bool, customExclude []string) *PairFilter {
	cleaned := make([]string, 0, len(customExclude))
	for _, entry := range customExclude {
		entry = strings.ToUpper(strings.TrimSpace(entry))
		if entry != "" {
			cleaned = append(cleaned, entry)
		}
	}
	return &PairFilter{
		excludeStables: excludeStables,
		customExclude:  cleaned,
	}
}

// IsStablePair reports whether both legs of the symbol are stablecoins.
func (f *PairFilter) IsStablePair(symbol string) bool {
	compact := strings.SplitN(strings.ReplaceAll(symbol, "/", ""), ":", 2)[0]

	for stable := range Stablecoins {
		if strings.HasSuffix(compact, stable) {
			base := strings.TrimSuffix(compact, stable)
			return Stablecoins[base]
		}
	}
	return false
}

// ShouldExclude reports whether the symbol fails any hygiene rule.
func (f *PairFilter) ShouldExclude(symbol string) bool {
	if f.excludeStables && f.IsStablePair(symbol) {
		return true
	}
	upper := strings.ToUpper(symbol)
	for _, excluded := range f.customExclude {
		if strings.Contains(upper, excluded) {
			return true
		}
	}
	return false
}

// FilterPairs returns the symbols that survive the hygiene rules,
// preserving input order.
func (f *PairFilter) FilterPairs(pairs []string) []string {
	kept := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if !f.ShouldExclude(pair) {
			kept = append(kept, pair)
		}
	}
	return kept
}

// TopPairs filters then truncates a volume-ranked list.
func (f *PairFilter) TopPairs(pairs []string, limit int) []string {
	filtered := f.FilterPairs(pairs)
	if limit >= 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered
}
