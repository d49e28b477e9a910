package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
)

func ohlc(o, h, l, c float64) domain.Candle {
	return domain.Candle{Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

// displacementSeries has a bearish candle at index 3 swallowed by a strong
// bullish close, two bullish imbalances, a swing high at index 6 and a swing
// low at index 8, and a final close above the swing high.
func displacementSeries() []domain.Candle {
	return []domain.Candle{
		ohlc(100, 101, 99, 100.5),
		ohlc(100.5, 101.5, 99.5, 100),
		ohlc(100, 100.8, 99.2, 100.2),
		ohlc(100.2, 101, 99.8, 99.9),
		ohlc(99.9, 103, 99.7, 102.8),
		ohlc(102.8, 105, 102.5, 104.8),
		ohlc(104.8, 106, 104.2, 105),
		ohlc(105, 105.5, 103.8, 104),
		ohlc(104, 104.5, 103.5, 104.2),
		ohlc(104.2, 104.8, 103.9, 104.5),
		ohlc(104.5, 105.2, 104, 105),
		ohlc(105, 106.5, 104.8, 106.3),
	}
}

func TestSwingPoints_StrictExtrema(t *testing.T) {
	points := SwingPoints(displacementSeries(), 2)
	require.Len(t, points, 2)

	assert.Equal(t, SwingPoint{Index: 6, Price: 106, Kind: SwingHigh}, points[0])
	assert.Equal(t, SwingPoint{Index: 8, Price: 103.5, Kind: SwingLow}, points[1])
}

func TestSwingPoints_ShortSeries(t *testing.T) {
	assert.Nil(t, SwingPoints(displacementSeries()[:4], 2))
	assert.Nil(t, SwingPoints(nil, 0))
}

func TestFairValueGaps_Bullish(t *testing.T) {
	gaps := FairValueGaps(displacementSeries())
	require.Len(t, gaps, 2)

	assert.Equal(t, 4, gaps[0].Index)
	assert.Equal(t, domain.Long, gaps[0].Direction)
	assert.InDelta(t, 101.0, gaps[0].Low, 1e-9)
	assert.InDelta(t, 102.5, gaps[0].High, 1e-9)
	assert.False(t, gaps[0].Filled)

	assert.Equal(t, 5, gaps[1].Index)
	assert.InDelta(t, 103.6, gaps[1].Mid(), 1e-9)
}

func TestFairValueGaps_BullishFill(t *testing.T) {
	candles := []domain.Candle{
		ohlc(100, 101, 99, 100.8),
		ohlc(100.8, 104, 100.5, 103.8),
		ohlc(103.8, 105, 102.5, 104),
	}
	gaps := FairValueGaps(candles)
	require.Len(t, gaps, 1)
	assert.False(t, gaps[0].Filled)

	// A later low trading through the lower bound fills the gap.
	candles = append(candles, ohlc(104, 104.5, 100.9, 101.5))
	gaps = FairValueGaps(candles)
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Filled)
}

func TestFairValueGaps_BearishFill(t *testing.T) {
	candles := []domain.Candle{
		ohlc(110, 112, 108, 109),
		ohlc(109, 109.5, 104, 104.5),
		ohlc(104.5, 106, 103, 105),
	}
	gaps := FairValueGaps(candles)
	require.Len(t, gaps, 1)
	assert.Equal(t, domain.Short, gaps[0].Direction)
	assert.InDelta(t, 106.0, gaps[0].Low, 1e-9)
	assert.InDelta(t, 108.0, gaps[0].High, 1e-9)
	assert.False(t, gaps[0].Filled)

	candles = append(candles, ohlc(105, 109, 104.5, 108.5))
	gaps = FairValueGaps(candles)
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Filled)
}

func TestOrderBlocks_BullishDisplacement(t *testing.T) {
	blocks := OrderBlocks(displacementSeries())
	require.Len(t, blocks, 1)

	assert.Equal(t, 3, blocks[0].Index)
	assert.Equal(t, domain.Long, blocks[0].Direction)
	assert.InDelta(t, 99.8, blocks[0].Low, 1e-9)
	assert.InDelta(t, 101.0, blocks[0].High, 1e-9)
	assert.InDelta(t, 100.4, blocks[0].Mid(), 1e-9)
}

func TestOrderBlocks_DojisCarryNoDisplacement(t *testing.T) {
	candles := make([]domain.Candle, 20)
	for i := range candles {
		p := 100 + float64(i)
		candles[i] = ohlc(p, p+1, p-1, p)
	}
	assert.Nil(t, OrderBlocks(candles))
}

func TestDetectStructure_Long(t *testing.T) {
	ms := DetectStructure(displacementSeries(), domain.Long)

	require.NotNil(t, ms.Block)
	assert.Equal(t, 3, ms.Block.Index)
	assert.InDelta(t, 1.0/3.0, ms.BlockQuality, 1e-9)

	require.NotNil(t, ms.Gap)
	assert.Equal(t, 5, ms.Gap.Index)
	assert.False(t, ms.Gap.Filled)

	require.NotNil(t, ms.SwingHigh)
	assert.InDelta(t, 106.0, ms.SwingHigh.Price, 1e-9)
	require.NotNil(t, ms.SwingLow)
	assert.InDelta(t, 103.5, ms.SwingLow.Price, 1e-9)

	assert.True(t, ms.BrokeSwing)
}

func TestDetectStructure_ShortFindsNoAlignedZones(t *testing.T) {
	ms := DetectStructure(displacementSeries(), domain.Short)

	assert.Nil(t, ms.Block)
	assert.Zero(t, ms.BlockQuality)
	assert.Nil(t, ms.Gap)
	assert.False(t, ms.BrokeSwing)
}

func TestDetectStructure_Empty(t *testing.T) {
	ms := DetectStructure(nil, domain.Long)
	assert.Nil(t, ms.Block)
	assert.Nil(t, ms.Gap)
	assert.Nil(t, ms.SwingHigh)
	assert.False(t, ms.BrokeSwing)
}
