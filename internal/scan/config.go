package scan

import "time"

// Config drives one scan run. Zero values fall back to the batch defaults
// below, so Config{} scans with the stock profile.
type Config struct {
	// Symbols pins the universe. Empty means expand from the venue's top
	// pairs (MaxPairs after stable filtering).
	Symbols    []string `json:"symbols,omitempty"`
	Timeframes []string `json:"timeframes,omitempty"`

	// Limit caps how many setups the scan returns after ranking.
	Limit    int     `json:"limit"`
	MinScore float64 `json:"min_score"`
	Leverage float64 `json:"leverage"`
	RiskUSD  float64 `json:"risk_usd"`

	CandleLimit   int           `json:"candle_limit"`
	MaxPairs      int           `json:"max_pairs"`
	MaxWorkers    int           `json:"max_workers"`
	SymbolTimeout time.Duration `json:"symbol_timeout"`
	CacheTTL      time.Duration `json:"cache_ttl"`
	Quote         string        `json:"quote"`

	// Synthetic enables deterministic generated candles when a venue fetch
	// fails or returns nothing, keeping offline runs reproducible.
	Synthetic bool `json:"synthetic"`
}

// DefaultConfig is the batch scan profile.
func DefaultConfig() Config {
	return Config{
		Timeframes:    []string{"15m", "1h", "4h"},
		Limit:         10,
		MinScore:      60,
		Leverage:      5,
		RiskUSD:       50,
		CandleLimit:   250,
		MaxPairs:      50,
		MaxWorkers:    5,
		SymbolTimeout: 30 * time.Second,
		CacheTTL:      300 * time.Second,
		Quote:         "USDT",
		Synthetic:     true,
	}
}

// withDefaults fills unset numeric fields; Synthetic stays as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Timeframes) == 0 {
		c.Timeframes = d.Timeframes
	}
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.MinScore <= 0 {
		c.MinScore = d.MinScore
	}
	if c.Leverage <= 0 {
		c.Leverage = d.Leverage
	}
	if c.RiskUSD <= 0 {
		c.RiskUSD = d.RiskUSD
	}
	if c.CandleLimit <= 0 {
		c.CandleLimit = d.CandleLimit
	}
	if c.MaxPairs <= 0 {
		c.MaxPairs = d.MaxPairs
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = d.MaxWorkers
	}
	if c.SymbolTimeout <= 0 {
		c.SymbolTimeout = d.SymbolTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.Quote == "" {
		c.Quote = d.Quote
	}
	return c
}
