package gates

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// approvable is a candidate that clears every hard gate under the default
// profile: rr 2.0, entry ~1% away, fresh, liquid, tight book, three
// structure flags in favour.
func approvable() Candidate {
	return Candidate{
		Symbol:         "BTC/USDT",
		Timeframe:      "1h",
		Direction:      domain.Long,
		CurrentPrice:   99,
		OrderbookBid:   98.99,
		OrderbookAsk:   99.01,
		VolumeUSD24h:   5_000_000,
		ATRPct:         2.0,
		MinutesOld:     10,
		EntryNear:      100,
		EntryStop:      95,
		EntryTP1:       105,
		HTFTrendAgrees: true,
		BOSInFavor:     true,
		OrderBlock:     true,
		OBQuality:      0.8,
		VenueListed:    true,
		Regime:         RegimeTrending,
		TouchedTFs:     []string{"1h", "4h"},
	}
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(DefaultConfig(), "phemex", zerolog.Nop())
}

func TestEvaluator_RRFloor(t *testing.T) {
	e := newTestEvaluator()

	accepted := approvable()
	decisions := e.Evaluate([]Candidate{accepted})
	require.Len(t, decisions, 1)
	assert.InDelta(t, 2.0, decisions[0].RR, 1e-9)

	// tp1 at 104 drags rr to 1.8, under the floor.
	tooTight := approvable()
	tooTight.EntryTP1 = 104
	assert.Empty(t, e.Evaluate([]Candidate{tooTight}))

	// Mirrored short geometry earns the same 2.0.
	short := approvable()
	short.Direction = domain.Short
	short.EntryStop = 105
	short.EntryTP1 = 95
	short.CurrentPrice = 101
	short.OrderbookBid = 100.99
	short.OrderbookAsk = 101.01
	decisions = e.Evaluate([]Candidate{short})
	require.Len(t, decisions, 1)
	assert.InDelta(t, 2.0, decisions[0].RR, 1e-9)
}

func TestEvaluator_EntryDistance(t *testing.T) {
	e := newTestEvaluator()

	at := func(entry, stop, tp1 float64) Candidate {
		c := approvable()
		c.CurrentPrice = 100
		c.OrderbookBid = 99.99
		c.OrderbookAsk = 100.01
		c.EntryNear = entry
		c.EntryStop = stop
		c.EntryTP1 = tp1
		return c
	}

	// 0.2% away: too close to be worth a resting order.
	assert.Empty(t, e.Evaluate([]Candidate{at(100.2, 95.2, 110.2)}))

	// 1% away: inside the window.
	decisions := e.Evaluate([]Candidate{at(101, 96, 106)})
	require.Len(t, decisions, 1)
	assert.InDelta(t, 1.0, decisions[0].EntryDistancePct, 1e-9)

	// 7% away: stale structure.
	assert.Empty(t, e.Evaluate([]Candidate{at(107, 102, 112)}))
}

func TestEvaluator_FreshnessDecay(t *testing.T) {
	e := newTestEvaluator()

	assert.InDelta(t, 1.0, e.FreshnessWeight(0), 1e-9)
	assert.InDelta(t, 0.5, e.FreshnessWeight(30), 1e-9)
	assert.InDelta(t, 0.25, e.FreshnessWeight(60), 1e-9)
	assert.InDelta(t, 1.0, e.FreshnessWeight(-5), 1e-9)

	// Past the max age the candidate is dropped no matter how it scores.
	stale := approvable()
	stale.MinutesOld = 91
	assert.Empty(t, e.Evaluate([]Candidate{stale}))
}

func TestEvaluator_VenueListing(t *testing.T) {
	unlisted := approvable()
	unlisted.VenueListed = false

	phemex := NewEvaluator(DefaultConfig(), "phemex", zerolog.Nop())
	assert.Empty(t, phemex.Evaluate([]Candidate{unlisted}))

	// The listing gate only arms for phemex.
	other := NewEvaluator(DefaultConfig(), "", zerolog.Nop())
	assert.Len(t, other.Evaluate([]Candidate{unlisted}), 1)
}

func TestEvaluator_SpreadGate(t *testing.T) {
	e := newTestEvaluator()

	wide := approvable()
	wide.OrderbookBid = 98
	wide.OrderbookAsk = 99 // ~102 bps
	assert.Empty(t, e.Evaluate([]Candidate{wide}))

	crossed := approvable()
	crossed.OrderbookBid = 99.01
	crossed.OrderbookAsk = 98.99
	assert.Empty(t, e.Evaluate([]Candidate{crossed}))

	assert.True(t, math.IsInf(SpreadBps(0, 100), 1))
	assert.True(t, math.IsInf(SpreadBps(100, 99), 1))
	assert.InDelta(t, 10.0, SpreadBps(99.95, 100.05), 0.01)
}

func TestEvaluator_ConfluenceGate(t *testing.T) {
	e := newTestEvaluator()

	thin := approvable()
	thin.OrderBlock = false // down to two flags
	assert.Empty(t, e.Evaluate([]Candidate{thin}))

	assert.Equal(t, 3, approvable().ConfluenceCount())
}

func TestEvaluator_ScoreAndReasons(t *testing.T) {
	e := newTestEvaluator()

	decisions := e.Evaluate([]Candidate{approvable()})
	require.Len(t, decisions, 1)
	d := decisions[0]

	// 25 tf + 12 ob + 15 bos + 10*0.5^(1/3) fresh + 10*(2/3) rr + 10 atr + 5 regime.
	assert.InDelta(t, 81.6037, d.Score, 1e-3)
	assert.Equal(t, 3, d.Confluence)
	assert.Equal(t, []string{
		"HTF trend agrees",
		"BOS in favor",
		"OB quality=80",
		"RR=2.00 (entry 1.0% away)",
		"fresh 0.79 (age 10m)",
	}, d.Reasons)
	assert.Equal(t, []string{"1h", "4h"}, d.TouchedTFs)
}

func TestEvaluator_SortTruncateDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSetups = 2
	e := NewEvaluator(cfg, "phemex", zerolog.Nop())

	strong := approvable()
	weaker := approvable()
	weaker.Symbol = "ETH/USDT"
	weaker.OBQuality = 0.2
	weakest := approvable()
	weakest.Symbol = "SOL/USDT"
	weakest.OBQuality = 0.1

	in := []Candidate{weaker, strong, weakest}

	first := e.Evaluate(in)
	require.Len(t, first, 2)
	assert.Equal(t, "BTC/USDT", first[0].Candidate.Symbol)
	assert.Equal(t, "ETH/USDT", first[1].Candidate.Symbol)
	assert.GreaterOrEqual(t, first[0].Score, first[1].Score)

	second := e.Evaluate(in)
	assert.Equal(t, first, second)
}

func TestATRBandFactor(t *testing.T) {
	tests := []struct {
		name   string
		atr    float64
		regime string
		want   float64
	}{
		{"trending sweet spot", 2.0, RegimeTrending, 1.0},
		{"trending inner taper", 1.5, RegimeTrending, 0.5},
		{"trending below band", 0.5, RegimeTrending, 0.75},
		{"trending far above", 5.0, RegimeTrending, 0.0},
		{"ranging sweet spot", 1.0, RegimeRanging, 1.0},
		{"volatile sweet spot", 3.5, RegimeVolatile, 1.0},
		{"unknown regime uses trending band", 2.0, "sideways", 1.0},
		{"zero atr", 0, RegimeTrending, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, atrBandFactor(tt.atr, tt.regime), 1e-9)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.Empty(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MinRR = 0
	bad.EntryDistanceMinPct = 6
	bad.MinScore = 120
	bad.MaxSetups = 0
	bad.Weights["tf_align"] = -1

	issues := bad.Validate()
	assert.Len(t, issues, 5)
}

func TestProfile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates.yaml")

	cfg := DefaultConfig()
	cfg.MinScore = 72
	cfg.MaxSetups = 3
	require.NoError(t, SaveProfile(cfg, path))

	loaded, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestProfile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_rr: 3.0\nmax_setups: 2\n"), 0o644))

	cfg, err := LoadProfile(path)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, cfg.MinRR, 1e-9)
	assert.Equal(t, 2, cfg.MaxSetups)
	assert.InDelta(t, 60.0, cfg.MinScore, 1e-9)
	assert.InDelta(t, 25.0, cfg.Weights["tf_align"], 1e-9)
}

func TestProfile_MissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
