package exchange

import (
	"strings"
	"unicode"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// knownQuotes are the four-letter quote currencies recognised when a
// venue symbol arrives without any separator (BTCUSDT).
var knownQuotes = map[string]bool{
	"USDT": true,
	"USDC": true,
	"BUSD": true,
	"TUSD": true,
}

// NormalizeSymbol rewrites a market symbol into the canonical BASE/QUOTE
// form: uppercase, with dashes, colons and whitespace folded into
// slashes. Separator-less venue symbols split on a known four-letter
// quote tail (BTCUSDT becomes BTC/USDT), a missing quote defaults to
// USDT, and a settle suffix after the quote (BTC/USDT:USDT) is dropped.
// The function is idempotent.
func NormalizeSymbol(symbol string) (string, error) {
	cleaned := strings.TrimSpace(symbol)
	if cleaned == "" {
		return "", domain.E(domain.KindConfig, "symbol cannot be empty")
	}

	normalized := strings.Map(func(r rune) rune {
		if r == '-' || r == ':' || unicode.IsSpace(r) {
			return '/'
		}
		return r
	}, strings.ToUpper(cleaned))

	parts := make([]string, 0, 2)
	for _, part := range strings.Split(normalized, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "", domain.E(domain.KindConfig, "symbol must contain a base asset")
	}

	if len(parts) == 1 {
		if tail := quoteTail(parts[0]); tail != "" {
			parts = []string{strings.TrimSuffix(parts[0], tail), tail}
		}
	}

	base := parts[0]
	quote := "USDT"
	if len(parts) > 1 {
		quote = parts[1]
	}

	return base + "/" + quote, nil
}

// quoteTail returns the known quote currency the symbol ends with, when
// the remainder leaves a non-empty base.
func quoteTail(symbol string) string {
	if len(symbol) <= 4 {
		return ""
	}
	tail := symbol[len(symbol)-4:]
	if knownQuotes[tail] {
		return tail
	}
	return ""
}

// MustNormalizeSymbol is NormalizeSymbol for inputs already known to be
// well-formed; it returns the input unchanged when normalization fails.
func MustNormalizeSymbol(symbol string) string {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return symbol
	}
	return normalized
}
