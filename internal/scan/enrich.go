package scan

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/domain/indicators"
)

// EntryLeg is one priced entry suggestion inside a scan result.
type EntryLeg struct {
	Price    float64 `json:"price"`
	Type     string  `json:"type"`
	PostOnly bool    `json:"post_only"`
	Reason   string  `json:"reason"`
}

// EntryBlock pairs the structure-mid entry with the deeper mitigation one.
type EntryBlock struct {
	Near EntryLeg `json:"near"`
	Far  EntryLeg `json:"far"`
}

// Structure sketches the order block and fair value gap around the entry.
type Structure struct {
	OBMid  float64 `json:"ob_mid"`
	OBLow  float64 `json:"ob_low"`
	FVGMid float64 `json:"fvg_mid"`
}

// Flow condenses orderflow reads into display strings.
type Flow struct {
	OBI            float64 `json:"obi"`
	CVD            string  `json:"cvd"`
	LiqClusterNote string  `json:"liq_cluster_note"`
}

// ExecutionHints are human-readable order instructions per entry leg.
type ExecutionHints struct {
	Near string `json:"near"`
	Far  string `json:"far"`
}

// Links point at external chart views for the symbol.
type Links struct {
	TV            string `json:"tv"`
	PhemexPreview string `json:"phemex_preview"`
}

// Result is one ranked, fully enriched setup row. It carries no wall-clock
// fields: two scans over the same candles serialize identically.
type Result struct {
	Symbol      string           `json:"symbol"`
	Timeframe   string           `json:"timeframe"`
	Direction   domain.Direction `json:"direction"`
	Score       float64          `json:"score"`
	Reasons     []string         `json:"reasons"`
	TouchedTFs  []string         `json:"touched_tfs"`
	Entry       EntryBlock       `json:"entry"`
	Stop        float64          `json:"stop"`
	TPs         []float64        `json:"tps"`
	RR          float64          `json:"rr"`
	Leverage    float64          `json:"leverage"`
	Qty         float64          `json:"qty"`
	Notional    float64          `json:"notional"`
	LiqPrice    float64          `json:"liq_price"`
	LiqSafe     bool             `json:"liq_safe"`
	LiqReason   string           `json:"liq_reason"`
	DistancePct float64          `json:"distance_pct"`
	ATRPct      float64          `json:"atr_pct"`
	SpreadBps   float64          `json:"spread_bps"`
	VolUSD24h   float64          `json:"vol_usd_24h"`
	Structure   Structure        `json:"structure"`
	Flow        Flow             `json:"flow"`
	Execution   ExecutionHints   `json:"execution"`
	Links       Links            `json:"links"`
}

// enrich turns one scored setup into a display-ready result row for a single
// timeframe, deriving entry ladders, a quick liquidation check, flow notes
// and market statistics from that timeframe's candles.
func enrich(setup *domain.TradeSetup, symbol, timeframe string, leverage, riskUSD float64, candles []domain.Candle) Result {
	entryPrice := setup.EntryPlan[0]
	stopPrice := setup.StopLoss

	tps := append([]float64(nil), setup.TakeProfits...)
	if len(tps) == 0 {
		base := entryPrice * 1.02
		if setup.Direction == domain.Short {
			base = entryPrice * 0.98
		}
		tps = append(tps, base)
	}
	for len(tps) < 3 {
		last := tps[len(tps)-1]
		if setup.Direction == domain.Long {
			tps = append(tps, last*1.02)
		} else {
			tps = append(tps, last*0.98)
		}
	}
	tp0 := tps[0]
	for i := range tps {
		tps[i] = round4(tps[i])
	}

	near, far := entryBlocks(setup.Direction, entryPrice, stopPrice)
	liqPrice, liqSafe, liqReason := assessLiqBuffer(setup.Direction, entryPrice, stopPrice, leverage)

	riskDistance := math.Abs(entryPrice - stopPrice)
	var qty, notional float64
	if riskDistance > 0 {
		qty = riskUSD / riskDistance
		notional = qty * entryPrice
	}
	distancePct := 0.0
	if entryPrice != 0 {
		distancePct = riskDistance / entryPrice * 100
	}

	obi, cvdNote, liqNote := flowSummary(setup)

	fallbackStop := entryPrice * 1.0015
	if setup.Direction != domain.Long {
		fallbackStop = entryPrice * 0.9985
	}

	touched := make([]string, 0, len(setup.TimeframeConfluence))
	for tf := range setup.TimeframeConfluence {
		touched = append(touched, tf)
	}
	sort.Strings(touched)

	structure := structureSketch(setup.Direction, entryPrice, far.Price, tp0, candles)
	hints := ExecutionHints{
		Near: fmt.Sprintf("LIMIT post-only @ %s; fallback STOP %.4f after 90s", fmtPrice(near.Price), fallbackStop),
		Far:  fmt.Sprintf("LIMIT @ %s", fmtPrice(far.Price)),
	}
	links := Links{
		TV:            "https://tradingview.com/chart/" + strings.ReplaceAll(symbol, "/", ""),
		PhemexPreview: "https://phemex.com/contract/" + strings.ReplaceAll(symbol, "/", "-"),
	}

	return Result{
		Symbol:      symbol,
		Timeframe:   timeframe,
		Direction:   setup.Direction,
		Score:       round2(setup.Score),
		Reasons:     setup.Reasons,
		TouchedTFs:  touched,
		Entry:       EntryBlock{Near: near, Far: far},
		Stop:        round4(stopPrice),
		TPs:         tps,
		RR:          round2(setup.RR),
		Leverage:    leverage,
		Qty:         round6(qty),
		Notional:    round2(notional),
		LiqPrice:    liqPrice,
		LiqSafe:     liqSafe,
		LiqReason:   liqReason,
		DistancePct: round2(distancePct),
		ATRPct:      round2(atrPercent(candles)),
		SpreadBps:   round2(spreadBps(candles)),
		VolUSD24h:   round2(volumeUSD(candles)),
		Structure:   structure,
		Flow:        Flow{OBI: obi, CVD: cvdNote, LiqClusterNote: liqNote},
		Execution:   hints,
		Links:       links,
	}
}

// structureSketch prefers zones detected on the candles themselves; when the
// series is too thin to confirm a block or gap, it falls back to leveling off
// the entry ladder (block at entry, gap a quarter of the way to TP1).
func structureSketch(direction domain.Direction, entryPrice, farPrice, tp0 float64, candles []domain.Candle) Structure {
	structure := Structure{
		OBMid:  round4(entryPrice),
		OBLow:  round4(math.Min(entryPrice, farPrice)),
		FVGMid: round4(entryPrice + (tp0-entryPrice)*0.25),
	}
	ms := indicators.DetectStructure(candles, direction)
	if ms.Block != nil {
		structure.OBMid = round4(ms.Block.Mid())
		structure.OBLow = round4(ms.Block.Low)
	}
	if ms.Gap != nil {
		structure.FVGMid = round4(ms.Gap.Mid())
	}
	return structure
}

// entryBlocks proposes the two-leg ladder: near sits at the scored entry,
// far steps one mitigation deeper (at least 10 bps, up to half the risk
// distance).
func entryBlocks(direction domain.Direction, entryPrice, stopPrice float64) (EntryLeg, EntryLeg) {
	distance := math.Abs(entryPrice - stopPrice)
	adjustment := math.Max(entryPrice*0.001, distance*0.5)

	var farPrice float64
	var nearReason, farReason string
	if direction == domain.Long {
		farPrice = math.Max(0, entryPrice-adjustment)
		nearReason = "Structure mid + confluence"
		farReason = "OB mitigation"
		if distance == 0 {
			farReason = "Structure retest"
		}
	} else {
		farPrice = entryPrice + adjustment
		nearReason = "Premium tap + confluence"
		farReason = "Supply mitigation"
	}

	near := EntryLeg{Price: round4(entryPrice), Type: "limit", PostOnly: true, Reason: nearReason}
	far := EntryLeg{Price: round4(farPrice), Type: "limit", PostOnly: true, Reason: farReason}
	return near, far
}

// assessLiqBuffer is the scan-time coarse liquidation check: the estimated
// liq level must sit at least 30% further out than the stop.
func assessLiqBuffer(direction domain.Direction, entryPrice, stopPrice, leverage float64) (float64, bool, string) {
	leverage = math.Max(1, leverage)
	riskDistance := math.Abs(entryPrice - stopPrice)
	liqOffset := entryPrice / leverage * 0.8

	var liqPrice, buffer, stopBuffer float64
	if direction == domain.Long {
		liqPrice = math.Max(0, entryPrice-liqOffset)
		buffer = entryPrice - liqPrice
		stopBuffer = entryPrice - stopPrice
	} else {
		liqPrice = entryPrice + liqOffset
		buffer = liqPrice - entryPrice
		stopBuffer = stopPrice - entryPrice
	}
	safe := buffer > stopBuffer*1.3

	reason := "≥30% buffer beyond stop"
	if !safe {
		reason = "Liq too close to stop"
	}
	if riskDistance == 0 {
		safe = false
		reason = "Invalid risk distance"
	}
	return round4(liqPrice), safe, reason
}

// flowSummary reads orderflow imbalance off the indicator strengths and
// names the nearest liquidation cluster worth watching.
func flowSummary(setup *domain.TradeSetup) (float64, string, string) {
	var longStrength, shortStrength float64
	for _, signal := range setup.IndicatorSummaries {
		switch signal.Direction {
		case domain.Long:
			longStrength += signal.Strength
		case domain.Short:
			shortStrength += signal.Strength
		}
	}
	total := longStrength + shortStrength
	obi := 0.0
	if total != 0 {
		obi = (longStrength - shortStrength) / total
	}
	cvdNote := "Positive flow"
	if obi < 0 {
		cvdNote = "Negative flow"
	}

	liqNote := "No major clusters"
	for _, zone := range setup.Zones {
		if zone.Significance >= 0.6 {
			liqNote = fmt.Sprintf("%s cluster near %.2f", zone.Direction, zone.PriceLevel)
			break
		}
	}
	if liqNote == "No major clusters" && len(setup.Zones) > 0 {
		liqNote = fmt.Sprintf("%s liquidity pocket", setup.Zones[0].Direction)
	}

	return round2(obi), fmt.Sprintf("%s %.2f", cvdNote, math.Abs(obi)), liqNote
}

// atrPercent estimates volatility as the mean true range over the last
// candles, expressed as a percentage of the final close.
func atrPercent(candles []domain.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	period := len(candles) - 1
	if period > 14 {
		period = 14
	}

	prevClose := candles[0].Close
	window := candles[len(candles)-(period+1):]
	trs := make([]float64, 0, len(window))
	for _, c := range window {
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		trs = append(trs, tr)
		prevClose = c.Close
	}

	lastClose := candles[len(candles)-1].Close
	if lastClose <= 0 {
		return 0
	}
	return mean(trs) / lastClose * 100
}

// spreadBps approximates the spread from candle ranges, averaged over the
// last ten candles.
func spreadBps(candles []domain.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	window := candles
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	spreads := make([]float64, 0, len(window))
	for _, c := range window {
		if c.Close != 0 {
			spreads = append(spreads, (c.High-c.Low)/c.Close*10_000)
		}
	}
	if len(spreads) == 0 {
		return 0
	}
	return mean(spreads)
}

// volumeUSD sums close-weighted volume over the trailing 24 hours relative
// to the last candle, falling back to the last 24 candles when the series
// is too short to cover the window.
func volumeUSD(candles []domain.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	cutoff := candles[len(candles)-1].Timestamp - 24*60*60*1000

	var total float64
	counted := false
	for _, c := range candles {
		if c.Timestamp >= cutoff {
			total += c.Volume * c.Close
			counted = true
		}
	}
	if counted {
		return total
	}

	window := candles
	if len(window) > 24 {
		window = window[len(window)-24:]
	}
	for _, c := range window {
		total += c.Volume * c.Close
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 { return roundTo(v, 2) }
func round3(v float64) float64 { return roundTo(v, 3) }
func round4(v float64) float64 { return roundTo(v, 4) }
func round6(v float64) float64 { return roundTo(v, 6) }

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// fmtPrice renders a price the way charts do: no exponent, no trailing
// zeros.
func fmtPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
