package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
)

func sizeCfg() Config {
	cfg := DefaultConfig()
	cfg.LiqBufferPct = 5
	cfg.LiqBufferATRMult = 1
	return cfg
}

func TestPositionSize_RiskOverDistance(t *testing.T) {
	res, err := PositionSize(SizeRequest{
		Direction: domain.Long,
		Entry:     100,
		Stop:      98,
		Price:     100,
		RiskUSD:   100,
		Leverage:  10,
	}, sizeCfg())
	require.NoError(t, err)

	assert.InDelta(t, 50.0, res.Qty, 1e-9)
	assert.InDelta(t, 90.0, res.Liq, 1e-9)
	assert.False(t, res.Reduced)
	assert.Equal(t, "liq safely below stop", res.Reason)
	assert.Equal(t, 10.0, res.EffectiveLeverage)
}

func TestPositionSize_LotQuantization(t *testing.T) {
	req := SizeRequest{
		Direction: domain.Long,
		Entry:     100,
		Stop:      98,
		Price:     100,
		RiskUSD:   100,
		Leverage:  10,
		LotSize:   0.3,
	}

	res, err := PositionSize(req, sizeCfg())
	require.NoError(t, err)
	// 50 / 0.3 = 166.67 lots, floored to 166.
	assert.InDelta(t, 49.8, res.Qty, 1e-9)

	// An exact multiple must not lose a lot to division noise.
	req.LotSize = 0.5
	res, err = PositionSize(req, sizeCfg())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, res.Qty, 1e-9)
}

func TestPositionSize_MinimumOneLot(t *testing.T) {
	res, err := PositionSize(SizeRequest{
		Direction: domain.Long,
		Entry:     100,
		Stop:      98,
		Price:     100,
		RiskUSD:   0.1, // raw qty 0.05, below one lot
		Leverage:  10,
		LotSize:   1,
	}, sizeCfg())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Qty, 1e-9)
}

func TestPositionSize_MinNotionalBump(t *testing.T) {
	res, err := PositionSize(SizeRequest{
		Direction:   domain.Long,
		Entry:       100,
		Stop:        98,
		Price:       1, // qty 50 is only $50 notional
		RiskUSD:     100,
		Leverage:    10,
		LotSize:     1,
		MinNotional: 60,
	}, sizeCfg())
	require.NoError(t, err)

	assert.InDelta(t, 60.0, res.Qty, 1e-9)
	assert.GreaterOrEqual(t, res.Qty*1, 60.0)
}

func TestPositionSize_Vetoes(t *testing.T) {
	res, err := PositionSize(SizeRequest{
		Direction: domain.Long, Entry: 100, Stop: 98, Price: 100, Leverage: 10,
	}, sizeCfg())
	require.NoError(t, err)
	assert.Zero(t, res.Qty)
	assert.Equal(t, "no risk budget", res.Reason)
	assert.Equal(t, 10.0, res.EffectiveLeverage)

	res, err = PositionSize(SizeRequest{
		Direction: domain.Long, Entry: 100, Stop: 100, Price: 100, RiskUSD: 50, Leverage: 10,
	}, sizeCfg())
	require.NoError(t, err)
	assert.Zero(t, res.Qty)
	assert.Equal(t, "zero stop distance", res.Reason)
}

func TestPositionSize_InvalidInputs(t *testing.T) {
	_, err := PositionSize(SizeRequest{Direction: domain.Long, Entry: 0, Price: 100, RiskUSD: 50}, sizeCfg())
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidSetup, domain.KindOf(err))

	_, err = PositionSize(SizeRequest{Direction: domain.Long, Entry: 100, Price: 0, RiskUSD: 50}, sizeCfg())
	require.Error(t, err)
}

func TestPositionSize_ReducesLeverage(t *testing.T) {
	// 50x puts the liquidation at 98, above the 95 stop. Max safe
	// leverage with no buffer is 20x, so the size shrinks by 0.4.
	cfg := Config{ReduceOnUnsafeLiq: true, SkipIfStillUnsafe: false}

	res, err := PositionSize(SizeRequest{
		Direction: domain.Long,
		Entry:     100,
		Stop:      95,
		Price:     100,
		RiskUSD:   100,
		Leverage:  50,
	}, cfg)
	require.NoError(t, err)

	assert.True(t, res.Reduced)
	assert.InDelta(t, 8.0, res.Qty, 1e-6)
	assert.InDelta(t, 20.0, res.EffectiveLeverage, 1e-6)
	assert.NotEmpty(t, res.Reason)
}

func TestPositionSize_SkipsWhenReductionInsufficient(t *testing.T) {
	// The buffer swallows the whole stop distance, so no reduction helps.
	cfg := Config{LiqBufferPct: 100, ReduceOnUnsafeLiq: true, SkipIfStillUnsafe: true}

	res, err := PositionSize(SizeRequest{
		Direction: domain.Long,
		Entry:     100,
		Stop:      50,
		Price:     100,
		RiskUSD:   10,
		Leverage:  5000,
	}, cfg)
	require.NoError(t, err)

	assert.Zero(t, res.Qty)
	assert.Equal(t, "reduction insufficient", res.Reason)
	assert.InDelta(t, 99.98, res.Liq, 1e-9)
	assert.Equal(t, 5000.0, res.EffectiveLeverage)
}

func TestPositionSize_SkipsWhenReducedBelowNotional(t *testing.T) {
	cfg := Config{ReduceOnUnsafeLiq: true, SkipIfStillUnsafe: true}

	res, err := PositionSize(SizeRequest{
		Direction:   domain.Long,
		Entry:       100,
		Stop:        95,
		Price:       100,
		RiskUSD:     10, // qty 2 shrinks to 0.8, $80 notional
		Leverage:    50,
		MinNotional: 100,
	}, cfg)
	require.NoError(t, err)

	assert.Zero(t, res.Qty)
	assert.True(t, res.Reduced)
	assert.Equal(t, "qty below min notional after reduce", res.Reason)
	assert.InDelta(t, 20.0, res.EffectiveLeverage, 1e-6)
}

func TestPositionSize_UnsafeWithoutReduce(t *testing.T) {
	cfg := Config{ReduceOnUnsafeLiq: false}

	res, err := PositionSize(SizeRequest{
		Direction: domain.Long,
		Entry:     100,
		Stop:      95,
		Price:     100,
		RiskUSD:   100,
		Leverage:  50,
	}, cfg)
	require.NoError(t, err)

	// The unsafe verdict is reported but the size is left for the caller.
	assert.InDelta(t, 20.0, res.Qty, 1e-9)
	assert.InDelta(t, 98.0, res.Liq, 1e-9)
	assert.False(t, res.Reduced)
	assert.Equal(t, "liq above stop", res.Reason)
}

func TestPositionSize_TightLiquidationEndToEnd(t *testing.T) {
	// 50x against a 1.5% stop with a 5% liquidation buffer: the raw
	// liquidation (98.5) sits on the stop, so the position must either
	// come out reduced with a safe liquidation or be skipped entirely.
	res, err := PositionSize(SizeRequest{
		Direction:       domain.Long,
		Entry:           100,
		Stop:            98.5,
		Price:           100,
		RiskUSD:         50,
		Leverage:        50,
		LotSize:         0.001,
		MinNotional:     5,
		MaintMarginRate: 0.005,
		ATR:             1.0,
	}, sizeCfg())
	require.NoError(t, err)

	assert.NotEmpty(t, res.Reason)
	assert.Greater(t, res.Liq, 0.0)
	if res.Qty > 0 {
		assert.True(t, res.Reduced)
		assert.Less(t, res.EffectiveLeverage, 50.0)
		assert.Less(t, res.Liq, 98.5)
		// Whole lots covering the minimum notional.
		steps := res.Qty / 0.001
		assert.InDelta(t, math.Round(steps), steps, 1e-6)
		assert.GreaterOrEqual(t, res.Qty*100, 5.0)
	}
}
