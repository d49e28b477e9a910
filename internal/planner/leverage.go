package planner

import (
	"fmt"
	"math"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// EstimateLiqPrice approximates the isolated liquidation price for a
// USDT-margined perp, venue-agnostic: long `entry*(1 - 1/lev + mmr)`,
// short `entry*(1 + 1/lev - mmr)`.
func EstimateLiqPrice(direction domain.Direction, entry, leverage, maintMarginRate float64) (float64, error) {
	if leverage <= 0 {
		return 0, domain.Ef(domain.KindConfig, "leverage must be positive, got %f", leverage)
	}
	if entry <= 0 {
		return 0, domain.Ef(domain.KindInvalidSetup, "entry price must be positive, got %f", entry)
	}
	if maintMarginRate < 0 {
		return 0, domain.Ef(domain.KindConfig, "maintenance margin rate must be non-negative, got %f", maintMarginRate)
	}

	switch direction {
	case domain.Long:
		return entry * (1 - 1/leverage + maintMarginRate), nil
	case domain.Short:
		return entry * (1 + 1/leverage - maintMarginRate), nil
	default:
		return 0, domain.Ef(domain.KindInvalidSetup, "unsupported direction %s", direction)
	}
}

// MinGap is the required distance between stop and liquidation: the wider
// of a percentage of the stop price and an ATR multiple.
func MinGap(stop, atr float64, cfg Config) float64 {
	pctBuffer := math.Abs(stop) * (cfg.LiqBufferPct / 100)
	atrBuffer := math.Max(atr, 0) * cfg.LiqBufferATRMult
	return math.Max(pctBuffer, atrBuffer)
}

// LiqIsSafe reports whether the liquidation price clears the stop by at
// least MinGap on the correct side. A gap exactly at the buffer is safe.
func LiqIsSafe(direction domain.Direction, stop, liq, atr float64, cfg Config) (bool, string) {
	minGap := MinGap(stop, atr, cfg)

	switch direction {
	case domain.Long:
		if liq >= stop {
			return false, "liq above stop"
		}
		gap := stop - liq
		if gap >= minGap {
			return true, "liq safely below stop"
		}
		return false, fmt.Sprintf("need %.4f gap, have %.4f", minGap, gap)
	case domain.Short:
		if liq <= stop {
			return false, "liq below stop"
		}
		gap := liq - stop
		if gap >= minGap {
			return true, "liq safely above stop"
		}
		return false, fmt.Sprintf("need %.4f gap, have %.4f", minGap, gap)
	default:
		return false, fmt.Sprintf("unsupported direction %s", direction)
	}
}

// RecommendSizeAdjustment solves for the largest leverage whose estimated
// liquidation still clears the buffers, returned as a shrink factor in
// (0,1]. Zero means no reduction can make the position safe.
func RecommendSizeAdjustment(direction domain.Direction, entry, stop, leverage, maintMarginRate, atr float64, cfg Config) (float64, string) {
	if leverage <= 0 {
		return 0, "invalid leverage"
	}

	minGap := MinGap(stop, atr, cfg)

	var rhs float64
	if direction == domain.Long {
		required := stop - minGap
		if required <= 0 {
			required = stop * (1 - 1e-6)
		}
		rhs = 1 + maintMarginRate - required/entry
	} else {
		required := stop + minGap
		rhs = required/entry + maintMarginRate - 1
	}

	if rhs <= 0 {
		return 1, "any leverage safe"
	}

	maxSafeLeverage := 1 / rhs
	if maxSafeLeverage >= leverage {
		return 1, "current leverage safe"
	}

	factor := maxSafeLeverage / leverage
	if factor < 1e-3 {
		return 0, "reduction insufficient"
	}
	return factor, fmt.Sprintf("reduce leverage to %.2fx", maxSafeLeverage)
}
