package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
)

func TestDefault_CoreValues(t *testing.T) {
	s := Default()

	assert.Equal(t, "phemex", s.Exchange)
	assert.Equal(t, []string{"15m", "1h", "4h"}, s.Timeframes)
	assert.Equal(t, 50, s.MaxPairs)
	assert.Equal(t, 5, s.MaxWorkers)
	assert.Equal(t, 10, s.TopSetupsLimit)
	assert.Equal(t, 50.0, s.MinScore)
	assert.Equal(t, AdapterTTL{Markets: 300, Tickers: 30, OHLCV: 120}, s.AdapterCacheTTL)
	assert.True(t, s.ExcludeStablecoins)

	assert.False(t, s.Autotrade.Enabled)
	assert.Equal(t, "paper", s.Autotrade.Mode)
	assert.Equal(t, "snp_v1_", s.Autotrade.IdempotencyPrefix)
	assert.Equal(t, []string{"07:00-20:00"}, s.Autotrade.TradingWindowsUTC)
	assert.Equal(t, 5.0, s.Planner.DefaultLeverage)
}

func TestSettings_Validate_Defaults(t *testing.T) {
	assert.Empty(t, Default().Validate())
}

func TestSettings_Validate_CollectsAllIssues(t *testing.T) {
	s := Default()
	s.MinScore = 150
	s.MaxPairs = 0
	s.Autotrade.Mode = "turbo"

	issues := s.Validate()

	require.Len(t, issues, 3)
	assert.Contains(t, issues[0], "min_score")
	assert.Contains(t, issues[1], "max_pairs")
	assert.Contains(t, issues[2], "turbo")
}

func TestSettings_Validate_LiveWithoutCredentials(t *testing.T) {
	s := Default()
	s.Autotrade.Enabled = true
	s.Autotrade.Mode = "live25"

	issues := s.Validate()

	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "credentials")

	s.ExchangeConfig.APIKey = "k"
	s.ExchangeConfig.Secret = "s"
	assert.Empty(t, s.Validate())
}

func TestLoad_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "exchange": "bybit",
  "min_score": 72.5,
  "exchange_config": {"apiKey": "ak", "secret": "sk"},
  "autotrade": {"enabled": true, "mode": "live25"}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bybit", s.Exchange)
	assert.Equal(t, 72.5, s.MinScore)
	assert.Equal(t, "ak", s.ExchangeConfig.APIKey)
	assert.True(t, s.Autotrade.Enabled)
	assert.Equal(t, "live25", s.Autotrade.Mode)
	// Untouched keys keep their defaults.
	assert.Equal(t, 50, s.MaxPairs)
	assert.Equal(t, "journal", s.Journal.Dir)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"min_score": 72.5}`), 0o644))

	t.Setenv("MIN_SCORE_THRESHOLD", "81")
	t.Setenv("AUTOTRADE_ENABLED", "yes")
	t.Setenv("AUTOTRADE_MODE", "paper")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 81.0, s.MinScore)
	assert.True(t, s.Autotrade.Enabled)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "phemex", s.Exchange)
}

func TestLoad_BadJSONIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestApplyEnv_BoolForms(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"OFF", false},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			s := Default()
			t.Setenv("AUTOTRADE_ENABLED", tc.value)
			applyEnv(&s)
			assert.Equal(t, tc.want, s.Autotrade.Enabled)
		})
	}
}

func TestApplyEnv_BadBoolKeepsCurrent(t *testing.T) {
	s := Default()
	t.Setenv("EXCLUDE_STABLECOINS", "maybe")
	applyEnv(&s)
	assert.True(t, s.ExcludeStablecoins)
}

func TestApplyEnv_ListSplitsAndClears(t *testing.T) {
	s := Default()
	t.Setenv("CUSTOM_EXCLUDE", "FOO/USDT, BAR/USDT,")
	t.Setenv("ALLOWLIST_SYMBOLS", "")
	applyEnv(&s)

	assert.Equal(t, []string{"FOO/USDT", "BAR/USDT"}, s.CustomExclude)
	assert.Empty(t, s.Autotrade.Allowlist)
}

func TestApplyEnv_TelegramEnabledWithCredentials(t *testing.T) {
	s := Default()
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "chat")
	applyEnv(&s)
	assert.True(t, s.Telegram.Enabled)
}

func TestSettings_ExecConfig_MapsDurations(t *testing.T) {
	s := Default()
	s.Autotrade.MakerTimeoutSec = 45
	s.Autotrade.RetryBackoffMS = []int{100, 200}

	cfg := s.ExecConfig()

	assert.Equal(t, 45*time.Second, cfg.MakerTimeout)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, cfg.RetryBackoff)
	assert.Equal(t, "snp_v1_", cfg.IdempotencyPrefix)
	assert.Equal(t, 0.5, cfg.Constraints.PriceTick)
	assert.Equal(t, 0.001, cfg.Constraints.QtyStep)
}

func TestSettings_ScanConfig_MapsFields(t *testing.T) {
	s := Default()
	cfg := s.ScanConfig()

	assert.Equal(t, s.Timeframes, cfg.Timeframes)
	assert.Equal(t, 10, cfg.Limit)
	assert.Equal(t, 50.0, cfg.MinScore)
	assert.Equal(t, 5.0, cfg.Leverage)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.Synthetic)
}

func TestSettings_PlannerConfig_MapsGuardrails(t *testing.T) {
	s := Default()
	s.Planner.LiqBufferPct = 7
	s.Planner.SkipIfStillUnsafe = false

	cfg := s.PlannerConfig()

	assert.Equal(t, 7.0, cfg.LiqBufferPct)
	assert.False(t, cfg.SkipIfStillUnsafe)
	assert.Equal(t, 5.0, cfg.DefaultLeverage)
	assert.Equal(t, 50.0, cfg.RiskUSD)
}

func TestSettings_PhemexConfig_MapsCredentials(t *testing.T) {
	s := Default()
	s.ExchangeConfig.APIKey = "ak"
	s.ExchangeConfig.Secret = "sk"
	s.AdapterCacheTTL.Markets = 120

	cfg := s.PhemexConfig()

	assert.Equal(t, "ak", cfg.APIKey)
	assert.Equal(t, "sk", cfg.APISecret)
	assert.Equal(t, 120*time.Second, cfg.MarketsTTL)
}
