package exec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/planner"
)

// defaultRiskFraction estimates per-trade risk when the plan carries no
// explicit risk budget.
const defaultRiskFraction = 0.02

var supportedModes = map[string]bool{
	"paper":   true,
	"live25":  true,
	"live50":  true,
	"live100": true,
}

// CheckPolicy admits or blocks a plan against the risk envelope using the
// current UTC time. A block is an outcome, not an error.
func CheckPolicy(plan *planner.TradePlan, portfolio domain.PortfolioState, cfg Config) (bool, string) {
	return CheckPolicyAt(plan, portfolio, cfg, time.Now().UTC())
}

// CheckPolicyAt runs the admission checks in a fixed order and returns
// the first failing reason, or "ok". Checks: master switch, mode,
// symbol/allowlist, blocked dates, trading windows, daily loss, open-trade
// count, notional, per-symbol and total exposure, per-trade risk.
func CheckPolicyAt(plan *planner.TradePlan, portfolio domain.PortfolioState, cfg Config, now time.Time) (bool, string) {
	if !cfg.Enabled {
		return false, "autotrade disabled"
	}
	if !supportedModes[cfg.Mode] {
		return false, fmt.Sprintf("unsupported mode %s", cfg.Mode)
	}
	if plan == nil || plan.Symbol == "" {
		return false, "plan missing symbol"
	}
	if len(cfg.Allowlist) > 0 && !contains(cfg.Allowlist, plan.Symbol) {
		return false, fmt.Sprintf("symbol %s not allowlisted", plan.Symbol)
	}

	today := now.UTC().Format("2006-01-02")
	if contains(cfg.BlocklistDays, today) {
		return false, today + " blocked"
	}
	if !withinWindows(now.UTC(), cfg.TradingWindowsUTC) {
		return false, "outside trading window"
	}

	if cfg.DailyLossLimitUSD > 0 && abs(portfolio.DailyRealizedLossUSD) >= cfg.DailyLossLimitUSD {
		return false, "daily loss limit reached"
	}
	if cfg.MaxConcurrentTrades > 0 && portfolio.OpenTrades >= cfg.MaxConcurrentTrades {
		return false, "max concurrent trades reached"
	}

	notional := planNotional(plan)
	if notional <= 0 {
		return false, "plan has zero notional"
	}
	if cfg.PerSymbolExposureUSD > 0 {
		if exposure := portfolio.SymbolExposure[plan.Symbol] + notional; exposure > cfg.PerSymbolExposureUSD {
			return false, fmt.Sprintf("symbol exposure %.2f > limit", exposure)
		}
	}
	if cfg.TotalExposureUSD > 0 && portfolio.TotalExposureUSD+notional > cfg.TotalExposureUSD {
		return false, "total exposure limit reached"
	}

	risk := plan.RiskUSD
	if risk <= 0 {
		risk = notional * defaultRiskFraction
	}
	if cfg.PerTradeRiskUSD > 0 && risk > cfg.PerTradeRiskUSD {
		return false, fmt.Sprintf("per-trade risk %.2f exceeds %.2f", risk, cfg.PerTradeRiskUSD)
	}

	return true, "ok"
}

// planNotional prefers the plan's own notional and falls back to
// price x quantity.
func planNotional(plan *planner.TradePlan) float64 {
	if plan.NotionalUSD > 0 {
		return plan.NotionalUSD
	}
	return plan.EntryNear * plan.Qty
}

// withinWindows reports whether now falls in any "HH:MM-HH:MM" window,
// bounds inclusive. A window with start after end wraps past midnight.
// No windows means always allowed; malformed windows are skipped.
func withinWindows(now time.Time, windows []string) bool {
	if len(windows) == 0 {
		return true
	}

	current := now.Hour()*60 + now.Minute()
	for _, window := range windows {
		start, end, ok := parseWindow(window)
		if !ok {
			continue
		}
		if start <= end {
			if current >= start && current <= end {
				return true
			}
		} else if current >= start || current <= end {
			return true
		}
	}
	return false
}

func parseWindow(window string) (start, end int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(window), "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok = parseMinutes(parts[0])
	if !ok {
		return 0, 0, false
	}
	end, ok = parseMinutes(parts[1])
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

func parseMinutes(clock string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
