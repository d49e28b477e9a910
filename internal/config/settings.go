// Package config resolves runtime settings from defaults, an optional
// JSON file, and environment variables, in that order (flags sit on top,
// applied by the CLI). One Settings value feeds every component.
package config

import (
	"fmt"
	"time"

	"github.com/snipetrade/snipetrade/internal/exchange/phemex"
	"github.com/snipetrade/snipetrade/internal/exec"
	"github.com/snipetrade/snipetrade/internal/planner"
	"github.com/snipetrade/snipetrade/internal/scan"
)

// ExchangeConfig carries venue credentials and transport limits.
type ExchangeConfig struct {
	APIKey          string  `json:"apiKey"`
	Secret          string  `json:"secret"`
	BaseURL         string  `json:"base_url"`
	EnableRateLimit bool    `json:"enableRateLimit"`
	RateLimitRPS    float64 `json:"rate_limit_rps"`
}

// AdapterTTL sets the venue adapter cache lifetimes, in seconds.
type AdapterTTL struct {
	Markets int `json:"markets"`
	Tickers int `json:"tickers"`
	OHLCV   int `json:"ohlcv"`
}

// RedisSettings enables the shared market cache and the executor's
// idempotency registry.
type RedisSettings struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// OutputSettings controls where and how scan bundles are written.
type OutputSettings struct {
	Dir     string   `json:"dir"`
	Formats []string `json:"formats"`
}

// TelegramSettings configures the alert channel. Empty token or chat id
// disables sending.
type TelegramSettings struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// AuditSettings controls the per-scan audit trail.
type AuditSettings struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

// JournalSettings controls the execution journal and its optional
// Postgres mirror.
type JournalSettings struct {
	Dir             string `json:"dir"`
	RedactKeys      bool   `json:"redact_keys"`
	PostgresEnabled bool   `json:"postgres_enabled"`
	PostgresDSN     string `json:"postgres_dsn"`
}

// AutotradeSettings is the executor risk envelope in config-file shape;
// durations are plain seconds and milliseconds so the JSON stays
// hand-editable.
type AutotradeSettings struct {
	Enabled              bool     `json:"enabled"`
	Mode                 string   `json:"mode"`
	MaxConcurrentTrades  int      `json:"max_concurrent_trades"`
	DailyLossLimitUSD    float64  `json:"daily_risk_usd_limit"`
	PerTradeRiskUSD      float64  `json:"per_trade_risk_usd"`
	PerSymbolExposureUSD float64  `json:"per_symbol_exposure_usd_max"`
	TotalExposureUSD     float64  `json:"total_exposure_usd_max"`
	Allowlist            []string `json:"allowlist_symbols"`
	TradingWindowsUTC    []string `json:"trading_windows_utc"`
	BlocklistDays        []string `json:"blocklist_days"`
	PostOnlyDefault      bool     `json:"post_only_default"`
	MakerTimeoutSec      int      `json:"maker_timeout_sec"`
	AmendOnDriftBps      float64  `json:"amend_on_drift_bps"`
	CancelOnTimeoutSec   int      `json:"cancel_on_timeout_sec"`
	RetryBackoffMS       []int    `json:"retry_backoff_ms"`
	IdempotencyPrefix    string   `json:"idempotency_prefix"`
	PriceTick            float64  `json:"price_tick"`
	QtyStep              float64  `json:"qty_step"`
	MinNotional          float64  `json:"min_notional"`
}

// PlannerSettings tunes entries, sizing and liquidation buffers.
type PlannerSettings struct {
	EntryTimeoutSec   int     `json:"entry_timeout_sec"`
	OBIMakerThreshold float64 `json:"obi_maker_threshold"`
	MakerSpreadMaxBps float64 `json:"maker_spread_max_bps"`
	QueueOffsetTicks  int     `json:"queue_offset_ticks"`
	StopEntryTicks    int     `json:"stop_entry_ticks"`
	VWAPKStd          float64 `json:"vwap_k_std"`
	ATRMinStopFrac    float64 `json:"atr_min_stop_frac"`
	RiskUSD           float64 `json:"risk_usd"`
	LotSize           float64 `json:"lot_size"`
	MinNotional       float64 `json:"min_notional"`
	MaintMarginRate   float64 `json:"maint_margin_rate"`
	DefaultLeverage   float64 `json:"default_leverage"`
	LiqBufferPct      float64 `json:"liq_buffer_pct"`
	LiqBufferATRMult  float64 `json:"liq_buffer_atr_mult"`
	ReduceOnUnsafeLiq bool    `json:"reduce_size_if_liq_too_close"`
	SkipIfStillUnsafe bool    `json:"skip_if_after_reduce_still_unsafe"`
}

// OpsSettings configures the operations HTTP server.
type OpsSettings struct {
	Listen string `json:"listen"`
}

// Settings is the full runtime configuration.
type Settings struct {
	Exchange           string            `json:"exchange"`
	ExchangeConfig     ExchangeConfig    `json:"exchange_config"`
	Timeframes         []string          `json:"timeframes"`
	MaxPairs           int               `json:"max_pairs"`
	MaxWorkers         int               `json:"max_workers"`
	TopSetupsLimit     int               `json:"top_setups_limit"`
	MinScore           float64           `json:"min_score"`
	AdapterCacheTTL    AdapterTTL        `json:"adapter_cache_ttl"`
	TimeframeCacheTTL  int               `json:"timeframe_cache_ttl"`
	ExcludeStablecoins bool              `json:"exclude_stablecoins"`
	CustomExclude      []string          `json:"custom_exclude"`
	SyntheticFallback  bool              `json:"synthetic_fallback"`
	PairsFile          string            `json:"pairs_file"`
	GatesProfile       string            `json:"gates_profile"`
	LogLevel           string            `json:"log_level"`
	Redis              RedisSettings     `json:"redis"`
	Output             OutputSettings    `json:"output"`
	Telegram           TelegramSettings  `json:"telegram"`
	Audit              AuditSettings     `json:"audit"`
	Journal            JournalSettings   `json:"journal"`
	Autotrade          AutotradeSettings `json:"autotrade"`
	Planner            PlannerSettings   `json:"planner"`
	Ops                OpsSettings       `json:"ops"`
}

// Default returns the shipped configuration.
func Default() Settings {
	return Settings{
		Exchange:           "phemex",
		Timeframes:         []string{"15m", "1h", "4h"},
		MaxPairs:           50,
		MaxWorkers:         5,
		TopSetupsLimit:     10,
		MinScore:           50,
		AdapterCacheTTL:    AdapterTTL{Markets: 300, Tickers: 30, OHLCV: 120},
		TimeframeCacheTTL:  300,
		ExcludeStablecoins: true,
		SyntheticFallback:  true,
		LogLevel:           "info",
		Output:             OutputSettings{Dir: "out", Formats: []string{"json", "csv", "md"}},
		Audit:              AuditSettings{Enabled: true, Dir: "audit_logs"},
		Journal:            JournalSettings{Dir: "journal", RedactKeys: true},
		Autotrade: AutotradeSettings{
			Enabled:              false,
			Mode:                 "paper",
			MaxConcurrentTrades:  3,
			DailyLossLimitUSD:    300,
			PerTradeRiskUSD:      50,
			PerSymbolExposureUSD: 1500,
			TotalExposureUSD:     4000,
			Allowlist:            []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
			TradingWindowsUTC:    []string{"07:00-20:00"},
			BlocklistDays:        []string{},
			PostOnlyDefault:      true,
			MakerTimeoutSec:      90,
			AmendOnDriftBps:      8,
			CancelOnTimeoutSec:   600,
			RetryBackoffMS:       []int{400, 800, 1600},
			IdempotencyPrefix:    "snp_v1_",
			PriceTick:            0.5,
			QtyStep:              0.001,
			MinNotional:          5,
		},
		Planner: PlannerSettings{
			EntryTimeoutSec:   60,
			MakerSpreadMaxBps: 10,
			StopEntryTicks:    1,
			ATRMinStopFrac:    0.25,
			RiskUSD:           50,
			LotSize:           0.001,
			MinNotional:       5,
			MaintMarginRate:   0.005,
			DefaultLeverage:   5,
			LiqBufferPct:      5,
			LiqBufferATRMult:  1,
			ReduceOnUnsafeLiq: true,
			SkipIfStillUnsafe: true,
		},
		Ops: OpsSettings{Listen: ":8089"},
	}
}

// Validate returns configuration issues without stopping at the first,
// so an operator can fix a file in one pass.
func (s Settings) Validate() []string {
	var issues []string

	if s.MinScore < 0 || s.MinScore > 100 {
		issues = append(issues, fmt.Sprintf("min_score %.1f outside [0, 100]", s.MinScore))
	}
	if s.MaxPairs < 1 {
		issues = append(issues, fmt.Sprintf("max_pairs %d must be at least 1", s.MaxPairs))
	}
	if s.MaxWorkers < 1 {
		issues = append(issues, fmt.Sprintf("max_workers %d must be at least 1", s.MaxWorkers))
	}
	if len(s.Timeframes) == 0 {
		issues = append(issues, "timeframes must not be empty")
	}

	switch s.Autotrade.Mode {
	case "paper", "live25", "live50", "live100":
	default:
		issues = append(issues, fmt.Sprintf("autotrade mode %q unsupported", s.Autotrade.Mode))
	}
	if s.Autotrade.Enabled && s.Autotrade.Mode != "paper" {
		if s.ExchangeConfig.APIKey == "" || s.ExchangeConfig.Secret == "" {
			issues = append(issues, "live autotrade requires exchange credentials")
		}
	}
	if s.Autotrade.MakerTimeoutSec <= 0 {
		issues = append(issues, "maker_timeout_sec must be positive")
	}

	if s.Telegram.Enabled && (s.Telegram.BotToken == "" || s.Telegram.ChatID == "") {
		issues = append(issues, "telegram enabled without bot token or chat id")
	}

	return issues
}

// ScanConfig maps the settings onto one scan run.
func (s Settings) ScanConfig() scan.Config {
	return scan.Config{
		Timeframes:  append([]string(nil), s.Timeframes...),
		Limit:       s.TopSetupsLimit,
		MinScore:    s.MinScore,
		Leverage:    s.Planner.DefaultLeverage,
		RiskUSD:     s.Planner.RiskUSD,
		MaxPairs:    s.MaxPairs,
		MaxWorkers:  s.MaxWorkers,
		CacheTTL:    time.Duration(s.TimeframeCacheTTL) * time.Second,
		Synthetic:   s.SyntheticFallback,
		CandleLimit: 250,
	}
}

// PlannerConfig maps the settings onto the plan builder.
func (s Settings) PlannerConfig() planner.Config {
	return planner.Config{
		OBIMakerThreshold: s.Planner.OBIMakerThreshold,
		MakerSpreadMaxBps: s.Planner.MakerSpreadMaxBps,
		QueueOffsetTicks:  s.Planner.QueueOffsetTicks,
		StopEntryTicks:    s.Planner.StopEntryTicks,
		EntryATRMinFrac:   s.Planner.ATRMinStopFrac,
		VWAPKStd:          s.Planner.VWAPKStd,
		EntryTimeoutSec:   s.Planner.EntryTimeoutSec,
		RiskUSD:           s.Planner.RiskUSD,
		DefaultLeverage:   s.Planner.DefaultLeverage,
		LotSize:           s.Planner.LotSize,
		MinNotional:       s.Planner.MinNotional,
		MaintMarginRate:   s.Planner.MaintMarginRate,
		LiqBufferPct:      s.Planner.LiqBufferPct,
		LiqBufferATRMult:  s.Planner.LiqBufferATRMult,
		ReduceOnUnsafeLiq: s.Planner.ReduceOnUnsafeLiq,
		SkipIfStillUnsafe: s.Planner.SkipIfStillUnsafe,
	}
}

// ExecConfig maps the settings onto the executor.
func (s Settings) ExecConfig() exec.Config {
	backoff := make([]time.Duration, 0, len(s.Autotrade.RetryBackoffMS))
	for _, ms := range s.Autotrade.RetryBackoffMS {
		backoff = append(backoff, time.Duration(ms)*time.Millisecond)
	}
	return exec.Config{
		Enabled:              s.Autotrade.Enabled,
		Mode:                 s.Autotrade.Mode,
		MaxConcurrentTrades:  s.Autotrade.MaxConcurrentTrades,
		DailyLossLimitUSD:    s.Autotrade.DailyLossLimitUSD,
		PerTradeRiskUSD:      s.Autotrade.PerTradeRiskUSD,
		PerSymbolExposureUSD: s.Autotrade.PerSymbolExposureUSD,
		TotalExposureUSD:     s.Autotrade.TotalExposureUSD,
		Allowlist:            append([]string(nil), s.Autotrade.Allowlist...),
		BlocklistDays:        append([]string(nil), s.Autotrade.BlocklistDays...),
		TradingWindowsUTC:    append([]string(nil), s.Autotrade.TradingWindowsUTC...),
		PostOnlyDefault:      s.Autotrade.PostOnlyDefault,
		MakerTimeout:         time.Duration(s.Autotrade.MakerTimeoutSec) * time.Second,
		AmendOnDriftBps:      s.Autotrade.AmendOnDriftBps,
		CancelOnTimeout:      time.Duration(s.Autotrade.CancelOnTimeoutSec) * time.Second,
		RetryBackoff:         backoff,
		IdempotencyPrefix:    s.Autotrade.IdempotencyPrefix,
		Constraints: exec.MarketConstraints{
			PriceTick:   s.Autotrade.PriceTick,
			QtyStep:     s.Autotrade.QtyStep,
			MinNotional: s.Autotrade.MinNotional,
		},
	}
}

// PhemexConfig maps the settings onto the REST client.
func (s Settings) PhemexConfig() phemex.Config {
	return phemex.Config{
		BaseURL:      s.ExchangeConfig.BaseURL,
		APIKey:       s.ExchangeConfig.APIKey,
		APISecret:    s.ExchangeConfig.Secret,
		RateLimitRPS: s.ExchangeConfig.RateLimitRPS,
		MarketsTTL:   time.Duration(s.AdapterCacheTTL.Markets) * time.Second,
		TickersTTL:   time.Duration(s.AdapterCacheTTL.Tickers) * time.Second,
		OHLCVTTL:     time.Duration(s.AdapterCacheTTL.OHLCV) * time.Second,
	}
}
