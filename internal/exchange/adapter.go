package exchange

import (
	"context"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// Adapter is the venue-facing surface the scanner depends on. Implementations
// own their transport, rate limiting, and retry behaviour; callers only see
// classified errors.
type Adapter interface {
	// FetchMarkets returns the tradable markets keyed by normalized symbol.
	// Results are cached; force bypasses the cache.
	FetchMarkets(ctx context.Context, force bool) (map[string]domain.MarketRef, error)

	// FetchOHLCV returns up to limit candles for the symbol and timeframe,
	// oldest first. limit <= 0 yields an empty slice.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)

	// TopPairs returns up to limit symbols quoted in quote, ranked by
	// 24h volume descending.
	TopPairs(ctx context.Context, limit int, quote string) ([]string, error)

	// FetchTicker returns the venue's 24h summary for the symbol.
	FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error)

	// CurrentPrice returns the venue's last traded price for the symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// VenueID identifies the venue ("phemex", "binance", ...).
	VenueID() string
}

// IsPairListed reports whether the symbol is live on Phemex. Any other venue
// answers false, matching the gate that guards venue-specific plans.
func IsPairListed(ctx context.Context, adapter Adapter, symbol string) bool {
	if adapter == nil || adapter.VenueID() != "phemex" {
		return false
	}

	markets, err := adapter.FetchMarkets(ctx, false)
	if err != nil {
		return false
	}

	market, ok := markets[MustNormalizeSymbol(symbol)]
	return ok && market.Active
}
