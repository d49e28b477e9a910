package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/planner"
)

func policyPlan() *planner.TradePlan {
	return &planner.TradePlan{
		PlanID:      "p1",
		Symbol:      "BTC/USDT",
		Direction:   domain.Long,
		EntryNear:   50000,
		Qty:         0.02,
		NotionalUSD: 1000,
		RiskUSD:     20,
	}
}

func policyCfg() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	return cfg
}

// Noon UTC on a weekday, inside the default 07:00-20:00 window.
var policyNow = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

func TestCheckPolicyAt_OrderedReasons(t *testing.T) {
	cases := []struct {
		name      string
		plan      func() *planner.TradePlan
		portfolio domain.PortfolioState
		mutate    func(*Config)
		now       time.Time
		wantOK    bool
		want      string
	}{
		{
			name:   "disabled",
			mutate: func(c *Config) { c.Enabled = false },
			want:   "autotrade disabled",
		},
		{
			name:   "unsupported mode",
			mutate: func(c *Config) { c.Mode = "yolo" },
			want:   "unsupported mode yolo",
		},
		{
			name: "missing symbol",
			plan: func() *planner.TradePlan {
				p := policyPlan()
				p.Symbol = ""
				return p
			},
			want: "plan missing symbol",
		},
		{
			name: "not allowlisted",
			plan: func() *planner.TradePlan {
				p := policyPlan()
				p.Symbol = "XRP/USDT"
				return p
			},
			want: "symbol XRP/USDT not allowlisted",
		},
		{
			name:   "blocked day",
			mutate: func(c *Config) { c.BlocklistDays = []string{"2026-03-04"} },
			want:   "2026-03-04 blocked",
		},
		{
			name: "outside window",
			now:  time.Date(2026, time.March, 4, 3, 0, 0, 0, time.UTC),
			want: "outside trading window",
		},
		{
			name:      "daily loss cap",
			portfolio: domain.PortfolioState{DailyRealizedLossUSD: -300},
			want:      "daily loss limit reached",
		},
		{
			name:      "max concurrent",
			portfolio: domain.PortfolioState{OpenTrades: 3},
			want:      "max concurrent trades reached",
		},
		{
			name: "zero notional",
			plan: func() *planner.TradePlan {
				p := policyPlan()
				p.NotionalUSD = 0
				p.Qty = 0
				return p
			},
			want: "plan has zero notional",
		},
		{
			name:      "symbol exposure",
			portfolio: domain.PortfolioState{SymbolExposure: map[string]float64{"BTC/USDT": 600}},
			want:      "symbol exposure 1600.00 > limit",
		},
		{
			name:      "total exposure",
			portfolio: domain.PortfolioState{TotalExposureUSD: 3500},
			want:      "total exposure limit reached",
		},
		{
			name: "per-trade risk",
			plan: func() *planner.TradePlan {
				p := policyPlan()
				p.RiskUSD = 60
				return p
			},
			want: "per-trade risk 60.00 exceeds 50.00",
		},
		{
			name:   "admitted",
			wantOK: true,
			want:   "ok",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := policyCfg()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			plan := policyPlan()
			if tc.plan != nil {
				plan = tc.plan()
			}
			now := policyNow
			if !tc.now.IsZero() {
				now = tc.now
			}

			ok, reason := CheckPolicyAt(plan, tc.portfolio, cfg, now)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, reason)
		})
	}
}

func TestCheckPolicyAt_RiskDefaultsToNotionalFraction(t *testing.T) {
	plan := policyPlan()
	plan.RiskUSD = 0
	plan.NotionalUSD = 3000 // implied risk 60 > 50 cap

	cfg := policyCfg()
	cfg.PerSymbolExposureUSD = 0
	cfg.TotalExposureUSD = 0

	ok, reason := CheckPolicyAt(plan, domain.PortfolioState{}, cfg, policyNow)
	assert.False(t, ok)
	assert.Equal(t, "per-trade risk 60.00 exceeds 50.00", reason)
}

func TestCheckPolicyAt_NotionalFallsBackToPriceTimesQty(t *testing.T) {
	plan := policyPlan()
	plan.NotionalUSD = 0 // 50000 x 0.02 = 1000 via fallback

	ok, reason := CheckPolicyAt(plan, domain.PortfolioState{}, policyCfg(), policyNow)
	assert.True(t, ok)
	assert.Equal(t, "ok", reason)
}

func TestWithinWindows_Bounds(t *testing.T) {
	windows := []string{"07:00-20:00"}
	day := func(h, m int) time.Time {
		return time.Date(2026, time.March, 4, h, m, 0, 0, time.UTC)
	}

	assert.True(t, withinWindows(day(7, 0), windows))
	assert.True(t, withinWindows(day(20, 0), windows))
	assert.False(t, withinWindows(day(6, 59), windows))
	assert.False(t, withinWindows(day(20, 1), windows))
}

func TestWithinWindows_OvernightWrap(t *testing.T) {
	windows := []string{"22:00-02:00"}
	day := func(h, m int) time.Time {
		return time.Date(2026, time.March, 4, h, m, 0, 0, time.UTC)
	}

	assert.True(t, withinWindows(day(23, 30), windows))
	assert.True(t, withinWindows(day(1, 0), windows))
	assert.True(t, withinWindows(day(22, 0), windows))
	assert.True(t, withinWindows(day(2, 0), windows))
	assert.False(t, withinWindows(day(12, 0), windows))
}

func TestWithinWindows_EmptyAndMalformed(t *testing.T) {
	now := time.Date(2026, time.March, 4, 3, 0, 0, 0, time.UTC)

	assert.True(t, withinWindows(now, nil))
	// Malformed windows are skipped, not treated as always-open.
	assert.False(t, withinWindows(now, []string{"bogus", "25:00-99:99"}))
	assert.True(t, withinWindows(now, []string{"bogus", "02:00-04:00"}))
}
