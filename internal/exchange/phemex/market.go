package phemex

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exchange"
)

// FetchMarkets returns the tradable markets keyed by normalized symbol,
// cached for the configured markets TTL.
func (c *Client) FetchMarkets(ctx context.Context, force bool) (map[string]domain.MarketRef, error) {
	c.mu.RLock()
	if !force && c.marketsCache != nil && time.Now().Before(c.marketsExpiry) {
		cached := c.marketsCache
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	var env envelope
	if err := c.get(ctx, classMarket, "/public/products", nil, &env); err != nil {
		return nil, err
	}

	var data productsData
	if err := unmarshalData(env, &data); err != nil {
		return nil, domain.WrapErr(domain.KindDataShape, "decode products", err)
	}

	markets := make(map[string]domain.MarketRef, len(data.Products))
	venueSymbols := make(map[string]string, len(data.Products))
	for _, p := range data.Products {
		normalized := normalizeProduct(p)
		if normalized == "" {
			continue
		}
		markets[normalized] = domain.MarketRef{
			Symbol:      normalized,
			VenueSymbol: p.Symbol,
			Venue:       c.VenueID(),
			Active:      p.Status == "" || p.Status == "Listed",
			PriceTick:   p.TickSize,
			QtyStep:     p.QtyStepSize,
			MinNotional: p.MinOrderValue,
		}
		venueSymbols[normalized] = p.Symbol
	}

	c.mu.Lock()
	c.marketsCache = markets
	c.venueSymbols = venueSymbols
	c.marketsExpiry = time.Now().Add(c.marketsTTL)
	c.mu.Unlock()

	return markets, nil
}

// FetchOHLCV returns up to limit candles oldest first. Malformed rows are
// skipped per row.
func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return []domain.Candle{}, nil
	}

	tfMS, err := exchange.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	venueSymbol, err := c.venueSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	cacheKey := venueSymbol + ":" + timeframe + ":" + strconv.Itoa(limit)
	if cached, ok := c.candles.Get(cacheKey); ok {
		return cached, nil
	}

	query := url.Values{}
	query.Set("symbol", venueSymbol)
	query.Set("resolution", strconv.FormatInt(tfMS/1000, 10))
	query.Set("limit", strconv.Itoa(limit))

	var env envelope
	if err := c.get(ctx, classMarket, "/exchange/public/md/v2/kline", query, &env); err != nil {
		return nil, err
	}

	var data klineData
	if err := unmarshalData(env, &data); err != nil {
		return nil, domain.WrapErr(domain.KindDataShape, "decode kline", err)
	}

	candles := make([]domain.Candle, 0, len(data.Rows))
	for _, row := range data.Rows {
		// Kline rows arrive as [ts_sec, interval, last_close, o, h, l, c, v, turnover].
		if len(row) < 8 {
			c.logger.Debug().Str("symbol", symbol).Int("fields", len(row)).Msg("skipping malformed kline row")
			continue
		}
		candle, err := domain.ParseCandle([]float64{row[0] * 1000, row[3], row[4], row[5], row[6], row[7]})
		if err != nil {
			c.logger.Debug().Str("symbol", symbol).Err(err).Msg("skipping malformed kline row")
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	c.candles.Set(cacheKey, candles)
	return candles, nil
}

// TopPairs ranks symbols quoted in quote by 24h turnover. When the ticker
// endpoint is throttled or down it falls back to market metadata.
func (c *Client) TopPairs(ctx context.Context, limit int, quote string) ([]string, error) {
	quote = strings.ToUpper(quote)
	markets, err := c.FetchMarkets(ctx, false)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		symbol string
		volume float64
	}
	var rankings []ranked

	var env tickersEnvelope
	if err := c.get(ctx, classMarket, "/md/v2/ticker/24hr/all", nil, &env); err != nil {
		c.logger.Warn().Err(err).Msg("ticker fetch failed; falling back to market metadata")
	} else {
		for _, ticker := range env.Result {
			normalized := exchange.MustNormalizeSymbol(ticker.Symbol)
			if !strings.HasSuffix(normalized, "/"+quote) {
				continue
			}
			volume := ticker.Turnover
			if volume == 0 {
				volume = ticker.Volume
			}
			rankings = append(rankings, ranked{symbol: normalized, volume: volume})
		}
	}

	if len(rankings) == 0 {
		for symbol, market := range markets {
			if !strings.HasSuffix(symbol, "/"+quote) {
				continue
			}
			rankings = append(rankings, ranked{symbol: symbol, volume: market.QuoteVolume})
		}
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].volume != rankings[j].volume {
			return rankings[i].volume > rankings[j].volume
		}
		return rankings[i].symbol < rankings[j].symbol
	})

	if limit > len(rankings) {
		limit = len(rankings)
	}
	pairs := make([]string, 0, limit)
	for _, r := range rankings[:limit] {
		pairs = append(pairs, r.symbol)
	}
	return pairs, nil
}

// FetchTicker returns the 24h summary for the symbol, cached for the
// tickers TTL.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	normalized, err := exchange.NormalizeSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}
	if cached, ok := c.tickers.Get(normalized); ok {
		return cached, nil
	}

	venueSymbol, err := c.venueSymbol(ctx, normalized)
	if err != nil {
		return domain.Ticker{}, err
	}

	query := url.Values{}
	query.Set("symbol", venueSymbol)

	var env tickerEnvelope
	if err := c.get(ctx, classMarket, "/md/v2/ticker/24hr", query, &env); err != nil {
		return domain.Ticker{}, err
	}

	ticker := domain.Ticker{
		Symbol:      normalized,
		Bid:         env.Result.BidPx,
		Ask:         env.Result.AskPx,
		Last:        env.Result.LastPrice,
		Close:       env.Result.ClosePx,
		Turnover24h: env.Result.Turnover,
		Volume24h:   env.Result.Volume,
	}
	c.tickers.Set(normalized, ticker)
	return ticker, nil
}

// CurrentPrice returns the last traded price for the symbol.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	ticker, err := c.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if ticker.Price() == 0 {
		return 0, domain.Ef(domain.KindFatal, "ticker for %s did not include a last price", symbol)
	}
	return ticker.Price(), nil
}

func (c *Client) venueSymbol(ctx context.Context, symbol string) (string, error) {
	normalized, err := exchange.NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}

	if _, err := c.FetchMarkets(ctx, false); err != nil {
		return "", err
	}

	c.mu.RLock()
	venueSymbol, ok := c.venueSymbols[normalized]
	c.mu.RUnlock()
	if ok {
		return venueSymbol, nil
	}
	return strings.ReplaceAll(normalized, "/", ""), nil
}

func normalizeProduct(p product) string {
	if p.BaseCurrency != "" && p.QuoteCurrency != "" {
		return strings.ToUpper(p.BaseCurrency) + "/" + strings.ToUpper(p.QuoteCurrency)
	}
	if p.DisplaySymbol != "" {
		return exchange.MustNormalizeSymbol(strings.ReplaceAll(p.DisplaySymbol, " ", ""))
	}
	if p.Symbol == "" {
		return ""
	}
	return exchange.MustNormalizeSymbol(p.Symbol)
}

func unmarshalData(env envelope, out interface{}) error {
	if env.Code != 0 {
		return domain.Ef(domain.KindFatal, "venue error %d: %s", env.Code, env.Msg)
	}
	if len(env.Data) == 0 {
		return domain.E(domain.KindDataShape, "empty data payload")
	}
	return json.Unmarshal(env.Data, out)
}
