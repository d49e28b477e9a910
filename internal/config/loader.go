package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// Load resolves settings in ascending precedence: defaults, then the JSON
// config file at path (skipped when empty or absent), then environment
// variables. Command-line flags are applied on top by the CLI.
func Load(path string) (Settings, error) {
	_ = godotenv.Load()

	s := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return s, domain.WrapErr(domain.KindConfig, "read config file "+path, err)
			}
			if err := json.Unmarshal(data, &s); err != nil {
				return s, domain.WrapErr(domain.KindConfig, "parse config file "+path, err)
			}
		}
	}

	applyEnv(&s)
	return s, nil
}

// applyEnv overlays recognised environment variables onto s. Unset and
// malformed values leave the current setting untouched.
func applyEnv(s *Settings) {
	envString("EXCHANGE", &s.Exchange)
	envString("PHEMEX_API_KEY", &s.ExchangeConfig.APIKey)
	envString("PHEMEX_API_SECRET", &s.ExchangeConfig.Secret)
	envString("PHEMEX_BASE_URL", &s.ExchangeConfig.BaseURL)
	envList("TIMEFRAMES", &s.Timeframes)
	envInt("MAX_PAIRS", &s.MaxPairs)
	envInt("MAX_WORKERS", &s.MaxWorkers)
	envInt("TOP_SETUPS_LIMIT", &s.TopSetupsLimit)
	envFloat("MIN_SCORE_THRESHOLD", &s.MinScore)
	envInt("TIMEFRAME_CACHE_TTL", &s.TimeframeCacheTTL)
	envBool("EXCLUDE_STABLECOINS", &s.ExcludeStablecoins)
	envList("CUSTOM_EXCLUDE", &s.CustomExclude)
	envBool("SYNTHETIC_FALLBACK", &s.SyntheticFallback)
	envString("PAIRS_FILE", &s.PairsFile)
	envString("GATES_PROFILE", &s.GatesProfile)
	envString("LOG_LEVEL", &s.LogLevel)

	envBool("REDIS_ENABLED", &s.Redis.Enabled)
	envString("REDIS_ADDR", &s.Redis.Addr)
	envString("REDIS_PASSWORD", &s.Redis.Password)
	envInt("REDIS_DB", &s.Redis.DB)

	envString("OUTPUT_DIR", &s.Output.Dir)
	envList("OUTPUT_FORMATS", &s.Output.Formats)

	envString("TELEGRAM_BOT_TOKEN", &s.Telegram.BotToken)
	envString("TELEGRAM_CHAT_ID", &s.Telegram.ChatID)
	if s.Telegram.BotToken != "" && s.Telegram.ChatID != "" {
		s.Telegram.Enabled = true
	}

	envBool("AUDIT_ENABLED", &s.Audit.Enabled)
	envString("AUDIT_DIR", &s.Audit.Dir)

	envString("JOURNAL_DIR", &s.Journal.Dir)
	envBool("LOG_REDACT_KEYS", &s.Journal.RedactKeys)
	envBool("PG_ENABLED", &s.Journal.PostgresEnabled)
	envString("PG_DSN", &s.Journal.PostgresDSN)

	envBool("AUTOTRADE_ENABLED", &s.Autotrade.Enabled)
	envString("AUTOTRADE_MODE", &s.Autotrade.Mode)
	envInt("MAX_CONCURRENT_TRADES", &s.Autotrade.MaxConcurrentTrades)
	envFloat("DAILY_RISK_USD_LIMIT", &s.Autotrade.DailyLossLimitUSD)
	envFloat("PER_TRADE_RISK_USD", &s.Autotrade.PerTradeRiskUSD)
	envFloat("PER_SYMBOL_EXPOSURE_USD_MAX", &s.Autotrade.PerSymbolExposureUSD)
	envFloat("TOTAL_EXPOSURE_USD_MAX", &s.Autotrade.TotalExposureUSD)
	envList("ALLOWLIST_SYMBOLS", &s.Autotrade.Allowlist)
	envList("TRADING_WINDOWS_UTC", &s.Autotrade.TradingWindowsUTC)
	envList("BLOCKLIST_DAYS", &s.Autotrade.BlocklistDays)
	envInt("MAKER_TIMEOUT_SEC", &s.Autotrade.MakerTimeoutSec)
	envInt("CANCEL_ON_TIMEOUT_SEC", &s.Autotrade.CancelOnTimeoutSec)
	envFloat("AMEND_ON_DRIFT_BPS", &s.Autotrade.AmendOnDriftBps)
	envString("IDEMPOTENCY_PREFIX", &s.Autotrade.IdempotencyPrefix)

	envFloat("PER_TRADE_RISK_USD", &s.Planner.RiskUSD)
	envFloat("DEFAULT_LEVERAGE", &s.Planner.DefaultLeverage)
	envFloat("LIQ_BUFFER_PCT", &s.Planner.LiqBufferPct)
	envFloat("LIQ_BUFFER_ATR_MULT", &s.Planner.LiqBufferATRMult)
	envBool("REDUCE_SIZE_IF_LIQ_TOO_CLOSE", &s.Planner.ReduceOnUnsafeLiq)
	envBool("SKIP_IF_AFTER_REDUCE_STILL_UNSAFE", &s.Planner.SkipIfStillUnsafe)

	envString("OPS_LISTEN", &s.Ops.Listen)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

// envBool accepts true/1/yes/on as true and false/0/no/off as false,
// case-insensitively. Anything else keeps the current value.
func envBool(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		*dst = true
	case "false", "0", "no", "off":
		*dst = false
	}
}

// envList splits a comma-separated value, trimming blanks. An explicit
// empty value clears the list.
func envList(name string, dst *[]string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
