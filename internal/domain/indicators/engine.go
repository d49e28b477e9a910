// Package indicators turns candle history into directional signals. The
// math comes from go-talib; the shaping into [0,1] strengths is ours.
package indicators

import (
	"math"
	"strconv"

	"github.com/markcheno/go-talib"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// Config tunes the indicator periods. Zero values select the defaults.
type Config struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	EMAPeriods []int
	BBPeriod   int
	BBStdDev   float64
	MinCandles int
}

// Engine computes the indicator suite over one timeframe of candles.
type Engine struct {
	cfg Config
}

// NewEngine applies defaults: RSI 14, MACD 12/26/9, EMA 20/50/200,
// Bollinger 20/2, minimum 50 candles.
func NewEngine(cfg Config) *Engine {
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.MACDFast <= 0 {
		cfg.MACDFast = 12
	}
	if cfg.MACDSlow <= 0 {
		cfg.MACDSlow = 26
	}
	if cfg.MACDSignal <= 0 {
		cfg.MACDSignal = 9
	}
	if len(cfg.EMAPeriods) == 0 {
		cfg.EMAPeriods = []int{20, 50, 200}
	}
	if cfg.BBPeriod <= 0 {
		cfg.BBPeriod = 20
	}
	if cfg.BBStdDev <= 0 {
		cfg.BBStdDev = 2
	}
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = 50
	}
	return &Engine{cfg: cfg}
}

// CalculateAll runs the full suite on one timeframe. Fewer candles than
// the minimum yields nil; a failing indicator is skipped, the rest still
// report.
func (e *Engine) CalculateAll(candles []domain.Candle, timeframe string) []domain.IndicatorSignal {
	if len(candles) < e.cfg.MinCandles {
		return nil
	}

	signals := make([]domain.IndicatorSignal, 0, 4)
	closes := closesOf(candles)

	if sig, err := e.RSI(closes, timeframe); err == nil {
		signals = append(signals, sig)
	}
	if sig, err := e.MACD(closes, timeframe); err == nil {
		signals = append(signals, sig)
	}
	if sig, err := e.EMAStack(closes, timeframe); err == nil {
		signals = append(signals, sig)
	}
	if sig, err := e.Bollinger(closes, timeframe); err == nil {
		signals = append(signals, sig)
	}
	return signals
}

// RSI maps oversold below 30 to a long signal and overbought above 70 to
// a short, strength scaling linearly toward the extremes.
func (e *Engine) RSI(closes []float64, timeframe string) (domain.IndicatorSignal, error) {
	if len(closes) <= e.cfg.RSIPeriod {
		return domain.IndicatorSignal{}, domain.Ef(domain.KindDataShape, "rsi needs more than %d closes, got %d", e.cfg.RSIPeriod, len(closes))
	}
	series := talib.Rsi(closes, e.cfg.RSIPeriod)
	value, err := lastValid(series, "rsi")
	if err != nil {
		return domain.IndicatorSignal{}, err
	}

	sig := domain.IndicatorSignal{
		Name:      "RSI",
		Timeframe: timeframe,
		Direction: domain.Neutral,
		Value:     value,
	}
	switch {
	case value < 30:
		sig.Direction = domain.Long
		sig.Strength = clamp01((30 - value) / 30)
	case value > 70:
		sig.Direction = domain.Short
		sig.Strength = clamp01((value - 70) / 30)
	}
	return sig, nil
}

// MACD signals off the histogram: positive favours longs, negative
// shorts. Strength is the histogram relative to the MACD line itself.
func (e *Engine) MACD(closes []float64, timeframe string) (domain.IndicatorSignal, error) {
	need := e.cfg.MACDSlow + e.cfg.MACDSignal
	if len(closes) <= need {
		return domain.IndicatorSignal{}, domain.Ef(domain.KindDataShape, "macd needs more than %d closes, got %d", need, len(closes))
	}
	macd, signal, _ := talib.Macd(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	macdLast, err := lastValid(macd, "macd")
	if err != nil {
		return domain.IndicatorSignal{}, err
	}
	signalLast, err := lastValid(signal, "macd signal")
	if err != nil {
		return domain.IndicatorSignal{}, err
	}

	diff := macdLast - signalLast
	sig := domain.IndicatorSignal{
		Name:      "MACD",
		Timeframe: timeframe,
		Direction: domain.Neutral,
		Value:     diff,
		Metadata:  map[string]float64{"macd": macdLast, "signal": signalLast},
	}
	if diff == 0 {
		return sig, nil
	}

	strength := 0.5
	if macdLast != 0 {
		strength = clamp01(math.Abs(diff) / math.Abs(macdLast))
	}
	sig.Strength = strength
	if diff > 0 {
		sig.Direction = domain.Long
	} else {
		sig.Direction = domain.Short
	}
	return sig, nil
}

// EMAStack reads trend alignment: price above every EMA is long, below
// every EMA is short, anything mixed is neutral.
func (e *Engine) EMAStack(closes []float64, timeframe string) (domain.IndicatorSignal, error) {
	price := closes[len(closes)-1]

	values := make([]float64, 0, len(e.cfg.EMAPeriods))
	meta := make(map[string]float64, len(e.cfg.EMAPeriods))
	for _, period := range e.cfg.EMAPeriods {
		if len(closes) < period {
			return domain.IndicatorSignal{}, domain.Ef(domain.KindDataShape, "ema %d needs %d closes, got %d", period, period, len(closes))
		}
		series := talib.Ema(closes, period)
		value, err := lastValid(series, "ema")
		if err != nil {
			return domain.IndicatorSignal{}, err
		}
		values = append(values, value)
		meta[emaKey(period)] = value
	}

	maxEMA, minEMA := values[0], values[0]
	for _, v := range values[1:] {
		maxEMA = math.Max(maxEMA, v)
		minEMA = math.Min(minEMA, v)
	}

	sig := domain.IndicatorSignal{
		Name:      "EMA Stack",
		Timeframe: timeframe,
		Direction: domain.Neutral,
		Value:     price,
		Metadata:  meta,
	}
	switch {
	case price > maxEMA && maxEMA > 0:
		sig.Direction = domain.Long
		sig.Strength = clamp01((price - maxEMA) / maxEMA * 10)
	case price < minEMA && minEMA > 0:
		sig.Direction = domain.Short
		sig.Strength = clamp01((minEMA - price) / minEMA * 10)
	}
	return sig, nil
}

// Bollinger flags band breaches: a close under the lower band is a long
// mean-reversion signal, above the upper band a short one.
func (e *Engine) Bollinger(closes []float64, timeframe string) (domain.IndicatorSignal, error) {
	if len(closes) < e.cfg.BBPeriod {
		return domain.IndicatorSignal{}, domain.Ef(domain.KindDataShape, "bollinger needs %d closes, got %d", e.cfg.BBPeriod, len(closes))
	}
	upper, middle, lower := talib.BBands(closes, e.cfg.BBPeriod, e.cfg.BBStdDev, e.cfg.BBStdDev, 0)
	upperLast, err := lastValid(upper, "bollinger upper")
	if err != nil {
		return domain.IndicatorSignal{}, err
	}
	middleLast, err := lastValid(middle, "bollinger middle")
	if err != nil {
		return domain.IndicatorSignal{}, err
	}
	lowerLast, err := lastValid(lower, "bollinger lower")
	if err != nil {
		return domain.IndicatorSignal{}, err
	}

	price := closes[len(closes)-1]
	bandwidth := upperLast - lowerLast

	sig := domain.IndicatorSignal{
		Name:      "Bollinger",
		Timeframe: timeframe,
		Direction: domain.Neutral,
		Value:     price,
		Metadata:  map[string]float64{"upper": upperLast, "middle": middleLast, "lower": lowerLast},
	}
	if bandwidth <= 0 {
		return sig, nil
	}
	switch {
	case price < lowerLast:
		sig.Direction = domain.Long
		sig.Strength = clamp01((lowerLast - price) / bandwidth * 2)
	case price > upperLast:
		sig.Direction = domain.Short
		sig.Strength = clamp01((price - upperLast) / bandwidth * 2)
	}
	return sig, nil
}

// ATRPercent is the average true range expressed as a percentage of the
// last close, the volatility unit the planner sizes stops with.
func (e *Engine) ATRPercent(candles []domain.Candle, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(candles) <= period {
		return 0, domain.Ef(domain.KindDataShape, "atr needs more than %d candles, got %d", period, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	series := talib.Atr(highs, lows, closes, period)
	atr, err := lastValid(series, "atr")
	if err != nil {
		return 0, err
	}
	last := closes[len(closes)-1]
	if last <= 0 {
		return 0, domain.E(domain.KindDataShape, "atr percent needs a positive last close")
	}
	return atr / last * 100, nil
}

func closesOf(candles []domain.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func lastValid(series []float64, name string) (float64, error) {
	if len(series) == 0 {
		return 0, domain.Ef(domain.KindDataShape, "%s produced no values", name)
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.Ef(domain.KindDataShape, "%s produced a non-finite value", name)
	}
	return v, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func emaKey(period int) string {
	return "ema" + strconv.Itoa(period)
}
