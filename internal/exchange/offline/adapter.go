// Package offline serves OHLCV data from a local JSON cache so scans can be
// replayed without venue connectivity.
package offline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exchange"
)

// Adapter reads candles from <root>/<venue>/<SYMBOLSLUG>/<timeframe>.json.
type Adapter struct {
	venue    string
	cacheDir string
}

type cachedCandle struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// New creates an offline adapter rooted at cacheDir for the named venue.
func New(venue, cacheDir string) *Adapter {
	if cacheDir == "" {
		cacheDir = filepath.Join("data", "ohlcv_cache")
	}
	return &Adapter{
		venue:    strings.ToLower(venue),
		cacheDir: filepath.Join(cacheDir, strings.ToLower(venue)),
	}
}

// VenueID reports the venue whose cache this adapter replays, so venue
// listing checks behave the same online and offline.
func (a *Adapter) VenueID() string { return a.venue }

// FetchMarkets lists cached symbol directories as active markets.
func (a *Adapter) FetchMarkets(ctx context.Context, force bool) (map[string]domain.MarketRef, error) {
	entries, err := os.ReadDir(a.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]domain.MarketRef{}, nil
		}
		return nil, domain.WrapErr(domain.KindTransient, "read cache dir", err)
	}

	markets := make(map[string]domain.MarketRef)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		normalized := exchange.MustNormalizeSymbol(entry.Name())
		markets[normalized] = domain.MarketRef{
			Symbol:      normalized,
			VenueSymbol: entry.Name(),
			Venue:       a.venue,
			Active:      true,
		}
	}
	return markets, nil
}

// FetchOHLCV loads candles from the cache file, returning the newest limit
// rows oldest first.
func (a *Adapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return []domain.Candle{}, nil
	}
	if _, err := exchange.ParseTimeframe(timeframe); err != nil {
		return nil, err
	}

	path := a.cacheFile(symbol, timeframe)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Ef(domain.KindFatal, "no cached candles for %s %s", symbol, timeframe)
		}
		return nil, domain.WrapErr(domain.KindTransient, "read cached candles", err)
	}

	var rows []cachedCandle
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, domain.WrapErr(domain.KindDataShape, "decode cached candles", err)
	}

	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		ts, err := parseTimestamp(row.Timestamp)
		if err != nil {
			continue
		}
		candles = append(candles, domain.Candle{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	return candles, nil
}

// TopPairs returns cached symbols in lexical order.
func (a *Adapter) TopPairs(ctx context.Context, limit int, quote string) ([]string, error) {
	markets, err := a.FetchMarkets(ctx, false)
	if err != nil {
		return nil, err
	}

	quote = strings.ToUpper(quote)
	pairs := make([]string, 0, len(markets))
	for symbol := range markets {
		if quote == "" || strings.HasSuffix(symbol, "/"+quote) {
			pairs = append(pairs, symbol)
		}
	}
	sort.Strings(pairs)

	if limit > 0 && limit < len(pairs) {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

// FetchTicker is unavailable offline; callers fall back to the last close.
func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return domain.Ticker{}, domain.E(domain.KindFatal, "offline venue has no ticker")
}

// CurrentPrice is unavailable offline; callers fall back to the last close.
func (a *Adapter) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, domain.E(domain.KindFatal, "offline venue has no ticker")
}

func (a *Adapter) cacheFile(symbol, timeframe string) string {
	slug := strings.ReplaceAll(exchange.MustNormalizeSymbol(symbol), "/", "")
	return filepath.Join(a.cacheDir, slug, timeframe+".json")
}

func parseTimestamp(value string) (int64, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
