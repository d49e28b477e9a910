package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
)

func baseEntryRequest() EntryRequest {
	return EntryRequest{
		Direction: domain.Long,
		Stop:      95,
		Price:     PriceContext{Price: 100, TickSize: 0.01, ATR: 2, Session: ""},
		Orderflow: OrderflowContext{OBI: 0.5, SpreadBps: 5},
		Structure: StructureContext{OBMid: 98, OBLow: 97, FVGLow: 96},
		VWAP:      VWAPContext{VWAP: 99},
	}
}

func TestProposeEntries_MakerPath(t *testing.T) {
	pair, err := ProposeEntries(baseEntryRequest(), DefaultConfig())
	require.NoError(t, err)

	// near = (ob_mid 98 + bias 99) / 2, far = (ob_low 97 + fvg 96) / 2.
	assert.Equal(t, EntryLimit, pair.Near.Type)
	assert.True(t, pair.Near.PostOnly)
	assert.InDelta(t, 98.5, pair.Near.Price, 1e-9)
	assert.Equal(t, "OB anchored with orderflow", pair.Near.Reason)

	assert.Equal(t, EntryLimit, pair.Far.Type)
	assert.InDelta(t, 96.5, pair.Far.Price, 1e-9)
	assert.Equal(t, "FVG extension", pair.Far.Reason)
}

func TestProposeEntries_LiqClusterForcesStopNear(t *testing.T) {
	req := baseEntryRequest()
	req.Orderflow.LiqInZone = true

	pair, err := ProposeEntries(req, DefaultConfig())
	require.NoError(t, err)

	// Near becomes a stop pushed one tick through the level; the far leg
	// ignores the cluster flag and stays passive.
	assert.Equal(t, EntryStop, pair.Near.Type)
	assert.False(t, pair.Near.PostOnly)
	assert.InDelta(t, 98.51, pair.Near.Price, 1e-9)
	assert.Equal(t, EntryLimit, pair.Far.Type)
}

func TestProposeEntries_WideSpreadForcesStops(t *testing.T) {
	req := baseEntryRequest()
	req.Orderflow.SpreadBps = 50

	pair, err := ProposeEntries(req, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, EntryStop, pair.Near.Type)
	assert.Equal(t, "liquidity stop", pair.Near.Reason)
	assert.Equal(t, EntryStop, pair.Far.Type)
	assert.Equal(t, "protective stop", pair.Far.Reason)
}

func TestProposeEntries_ShortMirrors(t *testing.T) {
	req := EntryRequest{
		Direction: domain.Short,
		Stop:      105,
		Price:     PriceContext{Price: 100, TickSize: 0.01, ATR: 2},
		Orderflow: OrderflowContext{OBI: 0.5, SpreadBps: 5},
		Structure: StructureContext{OBMid: 102, OBHigh: 103, FVGHigh: 104},
		VWAP:      VWAPContext{VWAP: 101},
	}

	pair, err := ProposeEntries(req, DefaultConfig())
	require.NoError(t, err)

	// near = (102 + 101) / 2 = 101.5 above price, far = (103 + 104) / 2.
	assert.InDelta(t, 101.5, pair.Near.Price, 1e-9)
	assert.InDelta(t, 103.5, pair.Far.Price, 1e-9)
	assert.Equal(t, EntryLimit, pair.Near.Type)
}

func TestProposeEntries_SessionBias(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionBiasTighter = true

	london := baseEntryRequest()
	london.Price.Session = "london"
	pair, err := ProposeEntries(london, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 98.5*0.99, pair.Near.Price, 0.01)

	asia := baseEntryRequest()
	asia.Price.Session = "asia"
	pair, err = ProposeEntries(asia, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 98.5*1.01, pair.Near.Price, 0.01)

	// Unknown sessions and the disabled flag leave prices alone.
	unknown := baseEntryRequest()
	unknown.Price.Session = "weekend"
	pair, err = ProposeEntries(unknown, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 98.5, pair.Near.Price, 1e-9)
}

func TestProposeEntries_ATRGuard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EntryATRMinFrac = 0.5 // require half an ATR between entry and stop

	near := baseEntryRequest()
	near.Stop = 98.2 // |98.5 - 98.2| = 0.3 < 1.0
	_, err := ProposeEntries(near, cfg)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidSetup, domain.KindOf(err))
	assert.Contains(t, err.Error(), "near entry violates ATR guard")

	far := baseEntryRequest()
	far.Stop = 97.3 // near gap 1.2 passes, far gap 0.8 fails
	_, err = ProposeEntries(far, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "far entry violates ATR guard")
}

func TestProposeEntries_StructureFallbacks(t *testing.T) {
	req := EntryRequest{
		Direction: domain.Long,
		Stop:      95,
		Price:     PriceContext{Price: 100, TickSize: 0.01},
		Orderflow: OrderflowContext{OBI: 0.5, SpreadBps: 5},
	}

	pair, err := ProposeEntries(req, DefaultConfig())
	require.NoError(t, err)

	// With no structure or VWAP everything anchors on the price itself.
	assert.InDelta(t, 100.0, pair.Near.Price, 1e-9)
	assert.InDelta(t, 100.0, pair.Far.Price, 1e-9)
}

func TestProposeEntries_RoundsToTick(t *testing.T) {
	req := baseEntryRequest()
	req.Price.TickSize = 0.25
	req.Structure = StructureContext{OBMid: 98.3, OBLow: 97.1, FVGLow: 96.2}
	req.VWAP = VWAPContext{VWAP: 98.4}

	pair, err := ProposeEntries(req, DefaultConfig())
	require.NoError(t, err)

	// near raw (98.3+98.4)/2 = 98.35 -> 98.25, far raw 96.65 -> 96.75.
	assert.InDelta(t, 98.25, pair.Near.Price, 1e-9)
	assert.InDelta(t, 96.75, pair.Far.Price, 1e-9)
}
