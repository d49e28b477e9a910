package domain

import (
	"math"
	"time"
)

// Direction is the trade side implied by a signal or setup.
type Direction string

const (
	Long    Direction = "LONG"
	Short   Direction = "SHORT"
	Neutral Direction = "NEUTRAL"
)

// Opposite flips LONG/SHORT and leaves NEUTRAL alone.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	}
	return Neutral
}

// Tradable reports whether the direction can back an order.
func (d Direction) Tradable() bool { return d == Long || d == Short }

// Candle is one OHLCV bar. Timestamp is unix milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// ParseCandle validates a raw numeric row (ts, o, h, l, c, v). Malformed rows
// are reported as data-shape failures so callers can skip them per row.
func ParseCandle(row []float64) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, Ef(KindDataShape, "candle row has %d fields, want 6", len(row))
	}
	for _, v := range row[:6] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Candle{}, E(KindDataShape, "candle row contains non-finite value")
		}
	}
	return Candle{
		Timestamp: int64(row[0]),
		Open:      row[1],
		High:      row[2],
		Low:       row[3],
		Close:     row[4],
		Volume:    row[5],
	}, nil
}

// MarketRef describes one tradable market as reported by a venue.
type MarketRef struct {
	Symbol      string  `json:"symbol"`       // normalized BASE/QUOTE
	VenueSymbol string  `json:"venue_symbol"` // venue-native id
	Venue       string  `json:"venue"`
	Active      bool    `json:"active"`
	PriceTick   float64 `json:"price_tick,omitempty"`
	QtyStep     float64 `json:"qty_step,omitempty"`
	MinNotional float64 `json:"min_notional,omitempty"`
	QuoteVolume float64 `json:"quote_volume,omitempty"`
}

// Ticker is a venue's 24h market summary for one symbol.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	Close       float64 `json:"close"`
	Turnover24h float64 `json:"turnover_24h"` // quote currency
	Volume24h   float64 `json:"volume_24h"`   // base currency
}

// Price is the tradable reference price: last when present, else close.
func (t Ticker) Price() float64 {
	if t.Last != 0 {
		return t.Last
	}
	return t.Close
}

// IndicatorSignal is one indicator's read on one timeframe.
type IndicatorSignal struct {
	Name      string             `json:"name"`
	Timeframe string             `json:"timeframe"`
	Direction Direction          `json:"direction"`
	Strength  float64            `json:"strength"` // [0,1]
	Value     float64            `json:"value"`
	Metadata  map[string]float64 `json:"metadata,omitempty"`
}

// LiquidationZone is a cluster of resting liquidations near price.
type LiquidationZone struct {
	Symbol       string    `json:"symbol"`
	PriceLevel   float64   `json:"price_level"`
	Amount       float64   `json:"amount"`
	Direction    Direction `json:"direction"`
	Significance float64   `json:"significance"` // [0,1]
}

// TradeSetup is a scored, plan-oriented candidate produced by the scorer.
type TradeSetup struct {
	Symbol              string               `json:"symbol"`
	Venue               string               `json:"venue"`
	Timeframe           string               `json:"timeframe"`
	Direction           Direction            `json:"direction"`
	Score               float64              `json:"score"`      // [0,100]
	Confidence          float64              `json:"confidence"` // [0,1]
	EntryPlan           []float64            `json:"entry_plan"`
	StopLoss            float64              `json:"stop_loss"`
	TakeProfits         []float64            `json:"take_profits"`
	RR                  float64              `json:"rr"`
	Reasons             []string             `json:"reasons"`
	TimeframeConfluence map[string]Direction `json:"timeframe_confluence"`
	IndicatorSummaries  []IndicatorSignal    `json:"indicator_summaries,omitempty"`
	Zones               []LiquidationZone    `json:"liquidation_zones,omitempty"`
	Metadata            map[string]float64   `json:"metadata,omitempty"`
	CreatedAt           time.Time            `json:"-"`
}

// NewTradeSetup enforces side geometry at construction: a long needs
// stop < entry < every take profit, a short the mirror image.
func NewTradeSetup(s TradeSetup) (*TradeSetup, error) {
	if !s.Direction.Tradable() {
		return nil, Ef(KindInvalidSetup, "setup %s has untradable direction %s", s.Symbol, s.Direction)
	}
	if len(s.EntryPlan) == 0 {
		return nil, Ef(KindInvalidSetup, "setup %s has empty entry plan", s.Symbol)
	}
	if len(s.TakeProfits) == 0 {
		return nil, Ef(KindInvalidSetup, "setup %s has no take profits", s.Symbol)
	}
	if s.Score < 0 || s.Score > 100 {
		return nil, Ef(KindInvalidSetup, "setup %s score %.2f outside [0,100]", s.Symbol, s.Score)
	}
	entry := s.EntryPlan[0]
	for _, tp := range s.TakeProfits {
		switch s.Direction {
		case Long:
			if !(s.StopLoss < entry && entry < tp) {
				return nil, Ef(KindInvalidSetup, "long %s violates stop < entry < tp (%.4f, %.4f, %.4f)",
					s.Symbol, s.StopLoss, entry, tp)
			}
		case Short:
			if !(tp < entry && entry < s.StopLoss) {
				return nil, Ef(KindInvalidSetup, "short %s violates tp < entry < stop (%.4f, %.4f, %.4f)",
					s.Symbol, tp, entry, s.StopLoss)
			}
		}
	}
	if rr := RewardRisk(s.Direction, entry, s.StopLoss, s.TakeProfits[0]); rr <= 0 {
		return nil, Ef(KindInvalidSetup, "setup %s has non-positive reward-to-risk", s.Symbol)
	}
	return &s, nil
}

// PortfolioState is the executor's view of current exposure.
type PortfolioState struct {
	OpenTrades           int                `json:"open_trades"`
	SymbolExposure       map[string]float64 `json:"symbol_exposure"`
	TotalExposureUSD     float64            `json:"total_exposure_usd"`
	DailyRealizedLossUSD float64            `json:"daily_realized_loss_usd"`
}
