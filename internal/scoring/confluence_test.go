package scoring

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
)

func testCandles(n int, start, step float64) []domain.Candle {
	candles := make([]domain.Candle, n)
	price := start
	for i := range candles {
		candles[i] = domain.Candle{
			Timestamp: int64(i) * 60_000,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
		price += step
	}
	return candles
}

func TestDominantDirection(t *testing.T) {
	long := domain.IndicatorSignal{Direction: domain.Long, Strength: 0.8}
	short := domain.IndicatorSignal{Direction: domain.Short, Strength: 0.8}
	weakShort := domain.IndicatorSignal{Direction: domain.Short, Strength: 0.3}

	assert.Equal(t, domain.Long, dominantDirection([]domain.IndicatorSignal{long, weakShort}))
	assert.Equal(t, domain.Short, dominantDirection([]domain.IndicatorSignal{short, short, long}))
	assert.Equal(t, domain.Neutral, dominantDirection([]domain.IndicatorSignal{long, short}))
	assert.Equal(t, domain.Neutral, dominantDirection(nil))
}

func TestIndicatorAlignmentScore(t *testing.T) {
	allLong := []domain.IndicatorSignal{
		{Direction: domain.Long, Strength: 0.9},
		{Direction: domain.Long, Strength: 0.7},
	}
	assert.InDelta(t, 100.0, indicatorAlignmentScore(allLong), 1e-9)

	// 0.8 long vs 0.2 short: strength share 0.8, count share 0.5.
	mixed := []domain.IndicatorSignal{
		{Direction: domain.Long, Strength: 0.8},
		{Direction: domain.Short, Strength: 0.2},
	}
	assert.InDelta(t, (0.8*0.7+0.5*0.3)*100, indicatorAlignmentScore(mixed), 1e-9)

	assert.Zero(t, indicatorAlignmentScore(nil))
	assert.Zero(t, indicatorAlignmentScore([]domain.IndicatorSignal{{Direction: domain.Neutral}}))
}

func TestTrendStrengthScore(t *testing.T) {
	signals := []domain.IndicatorSignal{
		{Direction: domain.Long, Strength: 0.9},
		{Direction: domain.Short, Strength: 0.3},
		{Direction: domain.Neutral, Strength: 0.0},
	}
	assert.InDelta(t, 40.0, trendStrengthScore(signals), 1e-9)
	assert.Zero(t, trendStrengthScore(nil))
}

func TestTimeframeConfluenceScore(t *testing.T) {
	confluence := map[string]domain.Direction{
		"15m": domain.Long,
		"1h":  domain.Long,
		"4h":  domain.Neutral,
	}
	assert.InDelta(t, 2.0/3.0*100, timeframeConfluenceScore(confluence), 1e-9)
	assert.Zero(t, timeframeConfluenceScore(nil))
}

func TestLiquidationSupportScore(t *testing.T) {
	assert.InDelta(t, 50.0, liquidationSupportScore(nil, domain.Long), 1e-9)

	opposing := []domain.LiquidationZone{{Direction: domain.Short, Significance: 0.9}}
	assert.InDelta(t, 30.0, liquidationSupportScore(opposing, domain.Long), 1e-9)

	// Three max-significance zones on side: (1.0*0.7 + 1.0*0.3) * 100.
	supporting := []domain.LiquidationZone{
		{Direction: domain.Long, Significance: 1},
		{Direction: domain.Long, Significance: 1},
		{Direction: domain.Long, Significance: 1},
	}
	assert.InDelta(t, 100.0, liquidationSupportScore(supporting, domain.Long), 1e-9)

	one := []domain.LiquidationZone{{Direction: domain.Long, Significance: 0.6}}
	assert.InDelta(t, (0.6*0.7+(1.0/3.0)*0.3)*100, liquidationSupportScore(one, domain.Long), 1e-9)
}

func TestBuildReasons(t *testing.T) {
	signals := []domain.IndicatorSignal{
		{Name: "RSI", Timeframe: "1h", Direction: domain.Long, Strength: 0.9},
		{Name: "MACD", Timeframe: "1h", Direction: domain.Long, Strength: 0.3},
		{Name: "EMA Stack", Timeframe: "4h", Direction: domain.Long, Strength: 0.7},
	}
	zones := []domain.LiquidationZone{
		{Direction: domain.Long, Significance: 0.8},
		{Direction: domain.Long, Significance: 0.65},
		{Direction: domain.Short, Significance: 0.9},
	}

	reasons := buildReasons(signals, []string{"15m", "1h"}, zones, domain.Long, 75.2)

	require.Len(t, reasons, 5)
	assert.Equal(t, "RSI favours LONG on 1h (strength 0.90)", reasons[0])
	assert.Equal(t, "EMA Stack favours LONG on 4h (strength 0.70)", reasons[1])
	assert.Equal(t, "Multi-timeframe alignment: 15m, 1h", reasons[2])
	assert.Equal(t, "2 supportive liquidation zone(s)", reasons[3])
	assert.Equal(t, "High composite score 75.2/100", reasons[4])
}

func TestBuildReasons_Fallback(t *testing.T) {
	reasons := buildReasons(nil, nil, nil, domain.Long, 42.5)
	assert.Equal(t, []string{"Composite score 42.5/100"}, reasons)

	// The fallback is stable across calls, there is nothing time-based in it.
	assert.Equal(t, reasons, buildReasons(nil, nil, nil, domain.Long, 42.5))
}

func TestScorer_ScoreSetup(t *testing.T) {
	scorer := NewScorer(nil, NewHeatmapProvider(), Weights{}, zerolog.Nop())

	// A strongly trending series: RSI pins to an extreme and dominates.
	data := map[string][]domain.Candle{
		"1h": testCandles(60, 100, 1),
		"4h": testCandles(60, 100, 1),
	}

	setup, err := scorer.ScoreSetup(context.Background(), "BTC/USDT", "phemex", data, 160)
	require.NoError(t, err)
	require.NotNil(t, setup)

	assert.Equal(t, "BTC/USDT", setup.Symbol)
	assert.Equal(t, "phemex", setup.Venue)
	assert.Equal(t, "1h", setup.Timeframe)
	assert.True(t, setup.Direction.Tradable())
	assert.InDelta(t, 2.0, setup.RR, 1e-9)
	assert.NotEmpty(t, setup.Reasons)
	assert.Len(t, setup.EntryPlan, 1)
	assert.Len(t, setup.TakeProfits, 2)
	assert.Contains(t, setup.Metadata, "indicator_score")
	assert.Contains(t, setup.Metadata, "liquidation_score")
	assert.Equal(t, setup.Direction, setup.TimeframeConfluence["1h"])
	assert.NotEmpty(t, setup.Zones)
	assert.GreaterOrEqual(t, setup.Confidence, 0.0)
	assert.LessOrEqual(t, setup.Confidence, 1.0)

	// Baseline geometry brackets the entry on the correct side.
	entry := setup.EntryPlan[0]
	if setup.Direction == domain.Long {
		assert.Less(t, setup.StopLoss, entry)
		assert.Greater(t, setup.TakeProfits[0], entry)
	} else {
		assert.Greater(t, setup.StopLoss, entry)
		assert.Less(t, setup.TakeProfits[0], entry)
	}
}

func TestScorer_ScoreSetup_Deterministic(t *testing.T) {
	scorer := NewScorer(nil, NewHeatmapProvider(), Weights{}, zerolog.Nop())
	data := map[string][]domain.Candle{
		"15m": testCandles(80, 200, -1),
		"1h":  testCandles(80, 200, -1),
		"4h":  testCandles(80, 200, -1),
	}

	first, err := scorer.ScoreSetup(context.Background(), "SOL/USDT", "phemex", data, 120)
	require.NoError(t, err)
	second, err := scorer.ScoreSetup(context.Background(), "SOL/USDT", "phemex", data, 120)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "15m", first.Timeframe)
}

func TestScorer_ScoreSetup_InsufficientHistory(t *testing.T) {
	scorer := NewScorer(nil, nil, Weights{}, zerolog.Nop())
	data := map[string][]domain.Candle{
		"1h": testCandles(20, 100, 1),
	}

	_, err := scorer.ScoreSetup(context.Background(), "BTC/USDT", "phemex", data, 120)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidSetup, domain.KindOf(err))

	_, err = scorer.ScoreSetup(context.Background(), "BTC/USDT", "phemex", nil, 120)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidSetup, domain.KindOf(err))
}

func TestScorer_ScoreSetup_RejectsBadPrice(t *testing.T) {
	scorer := NewScorer(nil, nil, Weights{}, zerolog.Nop())

	_, err := scorer.ScoreSetup(context.Background(), "BTC/USDT", "phemex", nil, -1)
	require.Error(t, err)
	assert.Equal(t, domain.KindDataShape, domain.KindOf(err))
}
