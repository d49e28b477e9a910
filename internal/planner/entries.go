package planner

import (
	"math"
	"strings"
	"time"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// EntryType distinguishes resting maker limits from stop entries.
type EntryType string

const (
	EntryLimit EntryType = "limit"
	EntryStop  EntryType = "stop"
)

// PriceContext carries the market-side inputs for entry placement.
type PriceContext struct {
	Price    float64 `json:"price"`
	TickSize float64 `json:"tick_size"`
	ATR      float64 `json:"atr"`
	Regime   string  `json:"regime"`
	Session  string  `json:"session"`
}

// OrderflowContext summarizes the book at plan time.
type OrderflowContext struct {
	OBI       float64 `json:"obi"` // order-book imbalance [-1,1]
	SpreadBps float64 `json:"spread_bps"`
	LiqInZone bool    `json:"liq_in_zone"`
}

// StructureContext holds the structural anchors. Zero fields fall back:
// ob_mid to price, the directional edge to ob_mid, the FVG to the edge.
type StructureContext struct {
	OBMid   float64 `json:"ob_mid"`
	OBLow   float64 `json:"ob_low"`
	OBHigh  float64 `json:"ob_high"`
	FVGLow  float64 `json:"fvg_lo"`
	FVGHigh float64 `json:"fvg_hi"`
}

// VWAPContext is the anchored VWAP with dispersion; K of zero defers to
// the config's VWAPKStd.
type VWAPContext struct {
	VWAP float64 `json:"vwap"`
	Std  float64 `json:"std"`
	K    float64 `json:"k"`
}

// EntryLeg is one proposed entry order.
type EntryLeg struct {
	Price    float64   `json:"price"`
	Type     EntryType `json:"type"`
	PostOnly bool      `json:"post_only"`
	Reason   string    `json:"reason"`
}

// EntryPair is the near (primary) and far (extension) entry proposal.
type EntryPair struct {
	Near EntryLeg `json:"near"`
	Far  EntryLeg `json:"far"`
}

// EntryRequest is everything ProposeEntries needs about one setup.
type EntryRequest struct {
	Direction domain.Direction
	Stop      float64
	Price     PriceContext
	Orderflow OrderflowContext
	Structure StructureContext
	VWAP      VWAPContext
}

// ProposeEntries derives a near entry from the order-block midpoint and
// VWAP bias, and a far entry from the block edge and FVG. Entry type
// follows order flow: passive limits only when the book leans our way and
// the spread is tight, stop entries otherwise.
func ProposeEntries(req EntryRequest, cfg Config) (EntryPair, error) {
	side := req.Direction
	price := req.Price.Price
	tick := req.Price.TickSize
	atr := req.Price.ATR

	vwap := req.VWAP.VWAP
	if vwap == 0 {
		vwap = price
	}
	k := req.VWAP.K
	if k == 0 {
		k = cfg.VWAPKStd
	}
	bias := vwap - k*req.VWAP.Std
	if side == domain.Short {
		bias = vwap + k*req.VWAP.Std
	}

	obMid := req.Structure.OBMid
	if obMid == 0 {
		obMid = price
	}
	obEdge := req.Structure.OBLow
	if side == domain.Short {
		obEdge = req.Structure.OBHigh
	}
	if obEdge == 0 {
		obEdge = obMid
	}
	fvg := req.Structure.FVGLow
	if side == domain.Short {
		fvg = req.Structure.FVGHigh
	}
	if fvg == 0 {
		fvg = obEdge
	}

	nearPrice := (obMid + bias) / 2
	farPrice := (obEdge + fvg) / 2

	nearPrice = applySessionBias(nearPrice, side, req.Price.Session, cfg.SessionBiasTighter)
	farPrice = applySessionBias(farPrice, side, req.Price.Session, cfg.SessionBiasTighter)

	makerAllowed := req.Orderflow.OBI >= cfg.OBIMakerThreshold &&
		req.Orderflow.SpreadBps <= cfg.MakerSpreadMaxBps

	nearType := EntryStop
	if makerAllowed && !req.Orderflow.LiqInZone {
		nearType = EntryLimit
	}
	farType := EntryStop
	if makerAllowed {
		farType = EntryLimit
	}

	if nearType == EntryLimit {
		offset := tick * float64(max(cfg.QueueOffsetTicks, 0))
		if side == domain.Long {
			nearPrice = math.Min(nearPrice, price) - offset
		} else {
			nearPrice = math.Max(nearPrice, price) + offset
		}
	} else {
		nearPrice = stopBias(nearPrice, tick, side, cfg.StopEntryTicks)
	}

	if farType == EntryLimit {
		offset := tick * float64(max(cfg.QueueOffsetTicks, 0))
		if side == domain.Long {
			farPrice = math.Min(farPrice, nearPrice) - offset
		} else {
			farPrice = math.Max(farPrice, nearPrice) + offset
		}
	} else {
		farPrice = stopBias(farPrice, tick, side, cfg.StopEntryTicks)
	}

	nearPrice = roundToTick(nearPrice, tick)
	farPrice = roundToTick(farPrice, tick)

	if req.Stop > 0 && atr > 0 {
		if !atrGuard(nearPrice, req.Stop, atr, cfg.EntryATRMinFrac) {
			return EntryPair{}, domain.E(domain.KindInvalidSetup, "near entry violates ATR guard")
		}
		if !atrGuard(farPrice, req.Stop, atr, cfg.EntryATRMinFrac) {
			return EntryPair{}, domain.E(domain.KindInvalidSetup, "far entry violates ATR guard")
		}
	}

	nearReason := "liquidity stop"
	farReason := "protective stop"
	if makerAllowed {
		nearReason = "OB anchored with orderflow"
		farReason = "FVG extension"
	}

	return EntryPair{
		Near: EntryLeg{Price: nearPrice, Type: nearType, PostOnly: nearType == EntryLimit, Reason: nearReason},
		Far:  EntryLeg{Price: farPrice, Type: farType, PostOnly: farType == EntryLimit, Reason: farReason},
	}, nil
}

// SessionAt names the dominant trading session for an instant, in the
// vocabulary applySessionBias understands: Asia until 07:00 UTC, London
// until 13:00, New York until 21:00, blank for the overnight gap.
func SessionAt(t time.Time) string {
	switch h := t.UTC().Hour(); {
	case h < 7:
		return "asia"
	case h < 13:
		return "london"
	case h < 21:
		return "new_york"
	}
	return ""
}

// applySessionBias tightens entries by 1% toward price in the London and
// New York sessions and loosens them by 1% in Asia.
func applySessionBias(price float64, side domain.Direction, session string, enabled bool) float64 {
	if !enabled {
		return price
	}
	var adjust float64
	switch strings.ToLower(session) {
	case "london", "new_york", "ny":
		adjust = 0.01
	case "asia", "asian":
		adjust = -0.01
	default:
		return price
	}
	if side == domain.Long {
		return price * (1 - adjust)
	}
	return price * (1 + adjust)
}

// stopBias pushes a stop entry through the trigger level in the trade
// direction so it fills on momentum, not on noise.
func stopBias(price, tick float64, side domain.Direction, ticks int) float64 {
	if tick <= 0 {
		return price
	}
	offset := tick * float64(max(ticks, 0))
	if side == domain.Long {
		return price + offset
	}
	return price - offset
}

func atrGuard(entry, stop, atr, minFrac float64) bool {
	if atr <= 0 {
		return true
	}
	return math.Abs(entry-stop) >= atr*minFrac
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

