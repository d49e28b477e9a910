package exec

import (
	"math"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// MarketConstraints are the venue's rounding rules for one contract.
// Non-positive fields disable the corresponding quantization.
type MarketConstraints struct {
	PriceTick   float64 `json:"price_tick"`
	QtyStep     float64 `json:"qty_step"`
	MinNotional float64 `json:"min_notional"`
}

// DefaultConstraints matches the linear USDT perpetual contracts.
func DefaultConstraints() MarketConstraints {
	return MarketConstraints{PriceTick: 0.5, QtyStep: 0.001, MinNotional: 5}
}

// quantization guard against float division artifacts (0.3/0.1 = 2.999…).
const roundEps = 1e-9

// roundDown quantizes v to the largest step multiple not above it. Entry
// limits use this so a rounded price never crosses the book.
func roundDown(v, step float64) float64 {
	if step <= 0 || v <= 0 {
		return v
	}
	return math.Floor(v/step+roundEps) * step
}

// roundHalfUp quantizes v to the nearest step multiple, ties away from
// zero. Stops and take profits use this to stay closest to the intended
// trigger.
func roundHalfUp(v, step float64) float64 {
	if step <= 0 || v <= 0 {
		return v
	}
	return math.Floor(v/step+0.5+roundEps) * step
}

// quantity rounds qty down to the step, then bumps it to the smallest
// step multiple whose notional covers the venue minimum.
func quantity(qty, price float64, mc MarketConstraints) float64 {
	q := roundDown(qty, mc.QtyStep)
	if q < 0 {
		q = 0
	}
	if mc.MinNotional > 0 && price > 0 && q*price < mc.MinNotional {
		needed := mc.MinNotional / price
		if mc.QtyStep > 0 {
			q = math.Ceil(needed/mc.QtyStep-roundEps) * mc.QtyStep
		} else {
			q = needed
		}
	}
	return q
}

// LimitPostOnly builds a resting maker entry. The price rounds down to
// tick so it can only improve, never cross.
func LimitPostOnly(symbol string, side domain.OrderSide, qty, price float64, reduceOnly bool, mc MarketConstraints) domain.OrderIntent {
	px := roundDown(price, mc.PriceTick)
	return domain.OrderIntent{
		Symbol:      symbol,
		Side:        side,
		Type:        domain.OrderLimit,
		Price:       px,
		Quantity:    quantity(qty, px, mc),
		TimeInForce: "GoodTillCancel",
		PostOnly:    true,
		ReduceOnly:  reduceOnly,
	}
}

// StopEntry builds the taker fallback: a stop order that chases the move
// once the maker leg times out.
func StopEntry(symbol string, side domain.OrderSide, qty, stopPx float64, mc MarketConstraints) domain.OrderIntent {
	px := roundHalfUp(stopPx, mc.PriceTick)
	return domain.OrderIntent{
		Symbol:      symbol,
		Side:        side,
		Type:        domain.OrderStop,
		StopPx:      px,
		Quantity:    quantity(qty, px, mc),
		TimeInForce: "ImmediateOrCancel",
		ReduceOnly:  false,
	}
}

// TPLimit builds a reduce-only take-profit limit. side is the position
// side; the exit order takes the opposite.
func TPLimit(symbol string, side domain.OrderSide, qty, price float64, mc MarketConstraints) domain.OrderIntent {
	px := roundHalfUp(price, mc.PriceTick)
	return domain.OrderIntent{
		Symbol:      symbol,
		Side:        opposite(side),
		Type:        domain.OrderLimit,
		Price:       px,
		Quantity:    quantity(qty, px, mc),
		TimeInForce: "GoodTillCancel",
		ReduceOnly:  true,
	}
}

// SLMarket builds a reduce-only stop-market protective stop. side is the
// position side; the exit order takes the opposite.
func SLMarket(symbol string, side domain.OrderSide, qty, stopPx float64, mc MarketConstraints) domain.OrderIntent {
	px := roundHalfUp(stopPx, mc.PriceTick)
	return domain.OrderIntent{
		Symbol:     symbol,
		Side:       opposite(side),
		Type:       domain.OrderStopMarket,
		StopPx:     px,
		Quantity:   quantity(qty, px, mc),
		ReduceOnly: true,
	}
}

func opposite(side domain.OrderSide) domain.OrderSide {
	if side == domain.Buy {
		return domain.Sell
	}
	return domain.Buy
}
