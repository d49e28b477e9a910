package exec

import "time"

// Config is the autotrade risk envelope and execution tuning.
type Config struct {
	Enabled              bool              `json:"enabled"`
	Mode                 string            `json:"mode"`
	MaxConcurrentTrades  int               `json:"max_concurrent_trades"`
	DailyLossLimitUSD    float64           `json:"daily_loss_limit_usd"`
	PerTradeRiskUSD      float64           `json:"per_trade_risk_usd"`
	PerSymbolExposureUSD float64           `json:"per_symbol_exposure_usd"`
	TotalExposureUSD     float64           `json:"total_exposure_usd"`
	Allowlist            []string          `json:"allowlist"`
	BlocklistDays        []string          `json:"blocklist_days"`
	TradingWindowsUTC    []string          `json:"trading_windows_utc"`
	PostOnlyDefault      bool              `json:"post_only_default"`
	MakerTimeout         time.Duration     `json:"maker_timeout"`
	AmendOnDriftBps      float64           `json:"amend_on_drift_bps"`
	CancelOnTimeout      time.Duration     `json:"cancel_on_timeout"`
	RetryBackoff         []time.Duration   `json:"retry_backoff"`
	IdempotencyPrefix    string            `json:"idempotency_prefix"`
	Constraints          MarketConstraints `json:"constraints"`
}

// DefaultConfig is the shipped risk envelope: autotrade off, paper mode,
// majors only, London-through-NY hours.
func DefaultConfig() Config {
	return Config{
		Enabled:              false,
		Mode:                 "paper",
		MaxConcurrentTrades:  3,
		DailyLossLimitUSD:    300,
		PerTradeRiskUSD:      50,
		PerSymbolExposureUSD: 1500,
		TotalExposureUSD:     4000,
		Allowlist:            []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		BlocklistDays:        []string{},
		TradingWindowsUTC:    []string{"07:00-20:00"},
		PostOnlyDefault:      true,
		MakerTimeout:         90 * time.Second,
		AmendOnDriftBps:      8,
		CancelOnTimeout:      600 * time.Second,
		RetryBackoff:         []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond},
		IdempotencyPrefix:    "snp_v1_",
		Constraints:          DefaultConstraints(),
	}
}

// withDefaults fills the zero values execution cannot run without.
func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = "paper"
	}
	if c.MakerTimeout <= 0 {
		c.MakerTimeout = 90 * time.Second
	}
	if c.IdempotencyPrefix == "" {
		c.IdempotencyPrefix = "snp_v1_"
	}
	return c
}
