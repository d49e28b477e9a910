package indicators

import (
	"math"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// Structure detection reads price action the way the entry planner prices
// it: confirmed swing extremes, untraded fair value gaps, and the opposing
// candle that launched a displacement move. Everything works on raw candle
// slices so callers can feed any timeframe.

const (
	defaultSwingWing = 2

	// A candle only counts as displacement when its body is this many
	// times the series' average body.
	displacementFactor = 1.5
)

// SwingKind tells whether a swing point is a high or a low.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is one confirmed local extremum.
type SwingPoint struct {
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Kind  SwingKind `json:"kind"`
}

// SwingPoints finds strict local extrema: highs whose High exceeds every
// High within wing candles on both sides, and the mirror for lows. A
// non-positive wing falls back to 2. Points come back in chart order, so
// the last entries are the freshest confirmed swings.
func SwingPoints(candles []domain.Candle, wing int) []SwingPoint {
	if wing <= 0 {
		wing = defaultSwingWing
	}
	if len(candles) < 2*wing+1 {
		return nil
	}

	var points []SwingPoint
	for i := wing; i < len(candles)-wing; i++ {
		isHigh, isLow := true, true
		for j := i - wing; j <= i+wing; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			points = append(points, SwingPoint{Index: i, Price: candles[i].High, Kind: SwingHigh})
		}
		if isLow {
			points = append(points, SwingPoint{Index: i, Price: candles[i].Low, Kind: SwingLow})
		}
	}
	return points
}

// FairValueGap is a three-candle imbalance: the outer wicks never overlap,
// leaving untraded space the market tends to revisit. Bounds always satisfy
// Low < High regardless of direction.
type FairValueGap struct {
	Index     int              `json:"index"`
	Low       float64          `json:"low"`
	High      float64          `json:"high"`
	Direction domain.Direction `json:"direction"`
	Filled    bool             `json:"filled"`
}

// Mid is the center of the gap, the usual retest target.
func (g FairValueGap) Mid() float64 { return (g.Low + g.High) / 2 }

// FairValueGaps scans the series for imbalances. A bullish gap sits at i
// when candle i-1's high stays below candle i+1's low; bearish mirrored.
// A gap is Filled once a later candle trades back through its far bound.
func FairValueGaps(candles []domain.Candle) []FairValueGap {
	if len(candles) < 3 {
		return nil
	}

	var gaps []FairValueGap
	for i := 1; i < len(candles)-1; i++ {
		prev, next := candles[i-1], candles[i+1]
		switch {
		case prev.High < next.Low:
			gaps = append(gaps, FairValueGap{
				Index:     i,
				Low:       prev.High,
				High:      next.Low,
				Direction: domain.Long,
				Filled:    filledBelow(candles[i+2:], prev.High),
			})
		case prev.Low > next.High:
			gaps = append(gaps, FairValueGap{
				Index:     i,
				Low:       next.High,
				High:      prev.Low,
				Direction: domain.Short,
				Filled:    filledAbove(candles[i+2:], prev.Low),
			})
		}
	}
	return gaps
}

func filledBelow(candles []domain.Candle, bound float64) bool {
	for _, c := range candles {
		if c.Low <= bound {
			return true
		}
	}
	return false
}

func filledAbove(candles []domain.Candle, bound float64) bool {
	for _, c := range candles {
		if c.High >= bound {
			return true
		}
	}
	return false
}

// OrderBlock is the last opposing candle before a displacement move, the
// zone where the resting orders that fueled the move are assumed to sit.
type OrderBlock struct {
	Index     int              `json:"index"`
	Low       float64          `json:"low"`
	High      float64          `json:"high"`
	Direction domain.Direction `json:"direction"`
}

// Mid is the center of the block zone.
func (b OrderBlock) Mid() float64 { return (b.Low + b.High) / 2 }

// OrderBlocks finds opposing candles whose successor is a displacement
// candle closing beyond the opposing candle's extreme: a bearish candle
// swallowed by a strong bullish close marks a long block, and mirrored for
// shorts. Series of dojis carry no displacement and yield nothing.
func OrderBlocks(candles []domain.Candle) []OrderBlock {
	if len(candles) < 2 {
		return nil
	}

	avgBody := 0.0
	for _, c := range candles {
		avgBody += math.Abs(c.Close - c.Open)
	}
	avgBody /= float64(len(candles))
	if avgBody <= 0 {
		return nil
	}
	threshold := displacementFactor * avgBody

	var blocks []OrderBlock
	for i := 0; i < len(candles)-1; i++ {
		cur, next := candles[i], candles[i+1]
		body := math.Abs(next.Close - next.Open)
		if body < threshold {
			continue
		}
		switch {
		case cur.Close < cur.Open && next.Close > next.Open && next.Close > cur.High:
			blocks = append(blocks, OrderBlock{Index: i, Low: cur.Low, High: cur.High, Direction: domain.Long})
		case cur.Close > cur.Open && next.Close < next.Open && next.Close < cur.Low:
			blocks = append(blocks, OrderBlock{Index: i, Low: cur.Low, High: cur.High, Direction: domain.Short})
		}
	}
	return blocks
}

// MarketStructure is the structural sketch around the latest close: the
// freshest order block and unfilled fair value gap agreeing with the trade
// direction, the latest confirmed swing on each side, and whether the last
// close already broke the opposing swing.
type MarketStructure struct {
	Block        *OrderBlock   `json:"block,omitempty"`
	Gap          *FairValueGap `json:"gap,omitempty"`
	SwingHigh    *SwingPoint   `json:"swing_high,omitempty"`
	SwingLow     *SwingPoint   `json:"swing_low,omitempty"`
	BrokeSwing   bool          `json:"broke_swing"`
	BlockQuality float64       `json:"block_quality"`
}

// DetectStructure composes swing, gap, and block detection into the sketch
// the planner consumes. Block quality decays linearly with the block's age
// so stale zones score near zero. A Neutral direction matches any block or
// gap and never reports a swing break.
func DetectStructure(candles []domain.Candle, direction domain.Direction) MarketStructure {
	var ms MarketStructure
	if len(candles) == 0 {
		return ms
	}

	blocks := OrderBlocks(candles)
	for i := len(blocks) - 1; i >= 0; i-- {
		if direction == domain.Neutral || blocks[i].Direction == direction {
			ms.Block = &blocks[i]
			age := len(candles) - 1 - blocks[i].Index
			ms.BlockQuality = clamp01(1 - float64(age)/float64(len(candles)))
			break
		}
	}

	gaps := FairValueGaps(candles)
	for i := len(gaps) - 1; i >= 0; i-- {
		if gaps[i].Filled {
			continue
		}
		if direction == domain.Neutral || gaps[i].Direction == direction {
			ms.Gap = &gaps[i]
			break
		}
	}

	for _, p := range SwingPoints(candles, defaultSwingWing) {
		point := p
		switch point.Kind {
		case SwingHigh:
			ms.SwingHigh = &point
		case SwingLow:
			ms.SwingLow = &point
		}
	}

	lastClose := candles[len(candles)-1].Close
	switch direction {
	case domain.Long:
		ms.BrokeSwing = ms.SwingHigh != nil && lastClose > ms.SwingHigh.Price
	case domain.Short:
		ms.BrokeSwing = ms.SwingLow != nil && lastClose < ms.SwingLow.Price
	}
	return ms
}
