package planner

import (
	"math"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// SizeRequest carries the inputs for one position-size computation.
// LotSize and MinNotional normally come from the market metadata; zero
// disables the respective constraint.
type SizeRequest struct {
	Direction       domain.Direction
	Entry           float64
	Stop            float64
	Price           float64
	RiskUSD         float64
	Leverage        float64
	LotSize         float64
	MinNotional     float64
	MaintMarginRate float64
	ATR             float64
}

// SizeResult is the sized position. Qty of zero with a reason means the
// position was vetoed rather than failed.
type SizeResult struct {
	Qty               float64 `json:"qty"`
	Liq               float64 `json:"liq"`
	Reduced           bool    `json:"reduced"`
	Reason            string  `json:"reason"`
	EffectiveLeverage float64 `json:"effective_leverage"`
}

// PositionSize sizes a position from the risk budget and stop distance,
// quantized down to whole lots (at least one), bumped up to the minimum
// notional, then checked against the liquidation buffers. When the
// liquidation sits too close and reduction is enabled, the size and
// effective leverage shrink until it clears; if that cannot be done and
// skipping is enabled the quantity is zeroed with the blocking reason.
//
// Invariant: the returned qty is a non-negative whole multiple of the lot
// size, and qty*price covers the minimum notional unless qty is zero.
func PositionSize(req SizeRequest, cfg Config) (SizeResult, error) {
	if req.Entry <= 0 || req.Price <= 0 {
		return SizeResult{}, domain.Ef(domain.KindInvalidSetup, "entry and price must be positive (entry %f, price %f)", req.Entry, req.Price)
	}
	if req.RiskUSD <= 0 {
		return SizeResult{Reason: "no risk budget", EffectiveLeverage: req.Leverage}, nil
	}

	distance := math.Abs(req.Entry - req.Stop)
	if distance == 0 {
		return SizeResult{Reason: "zero stop distance", EffectiveLeverage: req.Leverage}, nil
	}

	qty := quantizeDown(req.RiskUSD/distance, req.LotSize)
	if qty*req.Price < req.MinNotional {
		qty = lotsCovering(req.MinNotional, req.Price, req.LotSize)
	}

	effectiveLeverage := req.Leverage
	liq, err := EstimateLiqPrice(req.Direction, req.Entry, effectiveLeverage, req.MaintMarginRate)
	if err != nil {
		return SizeResult{}, err
	}
	safe, reason := LiqIsSafe(req.Direction, req.Stop, liq, req.ATR, cfg)

	reduced := false
	if !safe && cfg.ReduceOnUnsafeLiq {
		factor, adjReason := RecommendSizeAdjustment(req.Direction, req.Entry, req.Stop, req.Leverage, req.MaintMarginRate, req.ATR, cfg)
		if factor <= 0 {
			if cfg.SkipIfStillUnsafe {
				return SizeResult{Liq: liq, Reason: adjReason, EffectiveLeverage: effectiveLeverage}, nil
			}
		} else {
			reduced = factor < 1
			qty = quantizeDown(qty*factor, req.LotSize)
			effectiveLeverage = math.Max(req.Leverage*factor, 1)

			if qty*req.Price < req.MinNotional && cfg.SkipIfStillUnsafe {
				return SizeResult{Liq: liq, Reduced: reduced, Reason: "qty below min notional after reduce", EffectiveLeverage: effectiveLeverage}, nil
			}

			liq, err = EstimateLiqPrice(req.Direction, req.Entry, effectiveLeverage, req.MaintMarginRate)
			if err != nil {
				return SizeResult{}, err
			}
			safe, reason = LiqIsSafe(req.Direction, req.Stop, liq, req.ATR, cfg)
			if !safe && cfg.SkipIfStillUnsafe {
				return SizeResult{Liq: liq, Reduced: reduced, Reason: reason, EffectiveLeverage: effectiveLeverage}, nil
			}
		}
	}

	return SizeResult{
		Qty:               qty,
		Liq:               liq,
		Reduced:           reduced,
		Reason:            reason,
		EffectiveLeverage: effectiveLeverage,
	}, nil
}

// quantizeDown floors the quantity to whole lots, with a floor of one lot
// for any positive request. The relative epsilon absorbs division noise
// so an exact multiple never loses a lot.
func quantizeDown(qty, lot float64) float64 {
	if lot <= 0 {
		return qty
	}
	steps := math.Floor(qty / lot * (1 + 1e-9))
	if steps < 1 {
		steps = 1
	}
	return steps * lot
}

// lotsCovering returns the smallest whole-lot quantity whose notional at
// the given price reaches the target.
func lotsCovering(targetNotional, price, lot float64) float64 {
	if lot <= 0 {
		return targetNotional / price
	}
	steps := math.Ceil(targetNotional / price / lot * (1 - 1e-9))
	if steps < 1 {
		steps = 1
	}
	return steps * lot
}
