// Package gates screens setup candidates through hard filters and a
// weighted soft score before anything reaches the planner.
package gates

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// Market regimes the soft score differentiates on.
const (
	RegimeTrending = "TRENDING"
	RegimeRanging  = "RANGING"
	RegimeVolatile = "VOLATILE"
)

// DefaultWeights is the calibrated soft-score split. The weights sum to
// 100 so the composite lands in [0,100] without rescaling.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"tf_align":      25,
		"ob_quality":    15,
		"fvg_presence":  10,
		"bos_choch":     15,
		"freshness":     10,
		"rr_strength":   10,
		"atr_sweetspot": 10,
		"regime_bias":   5,
	}
}

// Config holds the gate thresholds. Loadable as a YAML profile.
type Config struct {
	MinRR                float64            `yaml:"min_rr"`
	EntryDistanceMinPct  float64            `yaml:"entry_distance_min_pct"`
	EntryDistanceMaxPct  float64            `yaml:"entry_distance_max_pct"`
	FreshnessHalfLifeMin float64            `yaml:"freshness_half_life_min"`
	MaxSetupAgeMin       float64            `yaml:"max_setup_age_min"`
	MinVolumeUSD         float64            `yaml:"min_volume_usd"`
	MaxSpreadBps         float64            `yaml:"max_spread_bps"`
	MinConfluence        int                `yaml:"min_confluence"`
	MinScore             float64            `yaml:"min_score"`
	MaxSetups            int                `yaml:"max_setups"`
	Weights              map[string]float64 `yaml:"confluence_weights"`
}

// DefaultConfig is the production profile.
func DefaultConfig() Config {
	return Config{
		MinRR:                2.0,
		EntryDistanceMinPct:  0.5,
		EntryDistanceMaxPct:  5.0,
		FreshnessHalfLifeMin: 30,
		MaxSetupAgeMin:       90,
		MinVolumeUSD:         100_000,
		MaxSpreadBps:         20,
		MinConfluence:        3,
		MinScore:             60,
		MaxSetups:            5,
		Weights:              DefaultWeights(),
	}
}

// Candidate is the normalized setup shape the gates consume.
type Candidate struct {
	Symbol       string             `json:"symbol"`
	Timeframe    string             `json:"timeframe"`
	Direction    domain.Direction   `json:"direction"`
	CurrentPrice float64            `json:"current_price"`
	OrderbookBid float64            `json:"orderbook_bid"`
	OrderbookAsk float64            `json:"orderbook_ask"`
	VolumeUSD24h float64            `json:"volume_usd_24h"`
	ATRPct       float64            `json:"atr_pct"`
	MinutesOld   float64            `json:"minutes_old"`
	EntryNear    float64            `json:"entry_near"`
	EntryStop    float64            `json:"entry_stop"`
	EntryTP1     float64            `json:"entry_tp1"`

	// Structure flags; ConfluenceCount tallies these four.
	HTFTrendAgrees bool `json:"htf_trend_agrees"`
	BOSInFavor     bool `json:"bos_in_favor"`
	OrderBlock     bool `json:"has_ob"`
	FVGAligned     bool `json:"has_fvg"`

	OBQuality   float64            `json:"ob_quality"` // [0,1]
	VenueListed bool               `json:"venue_listed"`
	Regime      string             `json:"regime"`
	TouchedTFs  []string           `json:"touched_tfs,omitempty"`
	Metadata    map[string]float64 `json:"metadata,omitempty"`
}

// ConfluenceCount is the number of structure flags in the candidate's
// favour.
func (c Candidate) ConfluenceCount() int {
	n := 0
	for _, flag := range []bool{c.HTFTrendAgrees, c.BOSInFavor, c.OrderBlock, c.FVGAligned} {
		if flag {
			n++
		}
	}
	return n
}

// Decision is an approved candidate with its derived gate numbers.
type Decision struct {
	Candidate        Candidate `json:"candidate"`
	RR               float64   `json:"rr"`
	EntryDistancePct float64   `json:"entry_distance_pct"`
	SpreadBps        float64   `json:"spread_bps"`
	FreshnessWeight  float64   `json:"freshness_weight"`
	Confluence       int       `json:"confluence"`
	Score            float64   `json:"score"`
	Reasons          []string  `json:"reasons"`
	TouchedTFs       []string  `json:"touched_tfs,omitempty"`
}

// Evaluator applies one gate profile against candidate batches.
type Evaluator struct {
	cfg    Config
	venue  string
	logger zerolog.Logger
}

// NewEvaluator builds an evaluator. The venue-listing gate only arms when
// venue is phemex; other venues pass unlisted candidates through.
func NewEvaluator(cfg Config, venue string, logger zerolog.Logger) *Evaluator {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	return &Evaluator{cfg: cfg, venue: venue, logger: logger}
}

// Evaluate runs every candidate through the hard gates, scores the
// survivors and returns them sorted by score descending, stable on input
// order, truncated to MaxSetups. Same inputs give the same outputs.
func (e *Evaluator) Evaluate(candidates []Candidate) []Decision {
	approved := make([]Decision, 0, len(candidates))

	for _, c := range candidates {
		if e.venue == "phemex" && !c.VenueListed {
			e.drop(c, "not listed on venue")
			continue
		}

		rr := domain.RewardRisk(c.Direction, c.EntryNear, c.EntryStop, c.EntryTP1)
		if rr < e.cfg.MinRR {
			e.drop(c, fmt.Sprintf("rr %.2f below %.2f", rr, e.cfg.MinRR))
			continue
		}

		distPct := EntryDistancePct(c.CurrentPrice, c.EntryNear)
		if distPct < e.cfg.EntryDistanceMinPct || distPct > e.cfg.EntryDistanceMaxPct {
			e.drop(c, fmt.Sprintf("entry %.2f%% away, outside [%.2f, %.2f]", distPct, e.cfg.EntryDistanceMinPct, e.cfg.EntryDistanceMaxPct))
			continue
		}

		if c.MinutesOld > e.cfg.MaxSetupAgeMin {
			e.drop(c, fmt.Sprintf("age %.0fm over %.0fm", c.MinutesOld, e.cfg.MaxSetupAgeMin))
			continue
		}

		if c.VolumeUSD24h < e.cfg.MinVolumeUSD {
			e.drop(c, fmt.Sprintf("volume $%.0f under $%.0f", c.VolumeUSD24h, e.cfg.MinVolumeUSD))
			continue
		}

		spreadBps := SpreadBps(c.OrderbookBid, c.OrderbookAsk)
		if spreadBps > e.cfg.MaxSpreadBps {
			e.drop(c, fmt.Sprintf("spread %.0f bps over %.0f", spreadBps, e.cfg.MaxSpreadBps))
			continue
		}

		confluence := c.ConfluenceCount()
		if confluence < e.cfg.MinConfluence {
			e.drop(c, fmt.Sprintf("confluence %d under %d", confluence, e.cfg.MinConfluence))
			continue
		}

		fresh := e.FreshnessWeight(c.MinutesOld)
		score := e.score(c, rr, fresh)
		if score < e.cfg.MinScore {
			e.drop(c, fmt.Sprintf("score %.1f under %.1f", score, e.cfg.MinScore))
			continue
		}

		approved = append(approved, Decision{
			Candidate:        c,
			RR:               rr,
			EntryDistancePct: distPct,
			SpreadBps:        spreadBps,
			FreshnessWeight:  fresh,
			Confluence:       confluence,
			Score:            score,
			Reasons:          buildReasons(c, rr, distPct, fresh, spreadBps),
			TouchedTFs:       append([]string(nil), c.TouchedTFs...),
		})
	}

	sort.SliceStable(approved, func(i, j int) bool { return approved[i].Score > approved[j].Score })
	if e.cfg.MaxSetups > 0 && len(approved) > e.cfg.MaxSetups {
		approved = approved[:e.cfg.MaxSetups]
	}
	return approved
}

func (e *Evaluator) drop(c Candidate, why string) {
	e.logger.Debug().
		Str("symbol", c.Symbol).
		Str("timeframe", c.Timeframe).
		Str("gate", why).
		Msg("candidate rejected")
}

// EntryDistancePct is how far the entry sits from the current price, in
// percent. A non-positive price makes the distance infinite so the bounds
// gate rejects it.
func EntryDistancePct(price, entry float64) float64 {
	if price <= 0 {
		return math.Inf(1)
	}
	return math.Abs(entry-price) / price * 100
}

// SpreadBps is the bid/ask spread in basis points of the mid. Invalid or
// crossed books are infinite.
func SpreadBps(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 || ask <= bid {
		return math.Inf(1)
	}
	mid := (ask + bid) / 2
	return (ask - bid) / mid * 10_000
}

// FreshnessWeight halves for every half-life the setup has aged. Negative
// ages count as brand new.
func (e *Evaluator) FreshnessWeight(minutesOld float64) float64 {
	if minutesOld < 0 {
		minutesOld = 0
	}
	return math.Pow(0.5, minutesOld/e.cfg.FreshnessHalfLifeMin)
}

func (e *Evaluator) score(c Candidate, rr, fresh float64) float64 {
	w := e.cfg.Weights
	score := w["tf_align"]*boolFactor(c.HTFTrendAgrees) +
		w["ob_quality"]*c.OBQuality +
		w["fvg_presence"]*boolFactor(c.FVGAligned) +
		w["bos_choch"]*boolFactor(c.BOSInFavor) +
		w["freshness"]*fresh +
		w["rr_strength"]*rrFactor(rr) +
		w["atr_sweetspot"]*atrBandFactor(c.ATRPct, c.Regime) +
		w["regime_bias"]*regimeFactor(c.Regime)
	return clip(score, 0, 100)
}

func boolFactor(flag bool) float64 {
	if flag {
		return 1
	}
	return 0
}

func rrFactor(rr float64) float64 {
	if rr <= 0 {
		return 0
	}
	return math.Min(rr/3, 1)
}

// atrBandFactor scores volatility against the regime's sweet spot:
// triangular taper inside the band, linear fall-off over one band width
// outside it.
func atrBandFactor(atrPct float64, regime string) float64 {
	if atrPct <= 0 {
		return 0
	}

	var low, high float64
	switch strings.ToUpper(regime) {
	case RegimeRanging:
		low, high = 0.5, 1.5
	case RegimeVolatile:
		low, high = 2.0, 5.0
	default:
		low, high = 1.0, 3.0
	}

	span := high - low
	if atrPct < low {
		return clip(1-(low-atrPct)/span, 0, 1)
	}
	if atrPct > high {
		return clip(1-(atrPct-high)/span, 0, 1)
	}

	mid := (low + high) / 2
	if atrPct == mid {
		return 1
	}
	return clip(1-math.Abs(atrPct-mid)/(span/2), 0, 1)
}

func regimeFactor(regime string) float64 {
	switch strings.ToUpper(regime) {
	case RegimeTrending:
		return 1.0
	case RegimeVolatile:
		return 0.8
	case RegimeRanging:
		return 0.6
	default:
		return 0.6
	}
}

// buildReasons explains an approval in at most five lines: structure
// first, then the derived numbers.
func buildReasons(c Candidate, rr, distPct, fresh, spreadBps float64) []string {
	reasons := make([]string, 0, 7)

	if c.HTFTrendAgrees {
		reasons = append(reasons, "HTF trend agrees")
	}
	if c.BOSInFavor {
		reasons = append(reasons, "BOS in favor")
	}
	if c.OrderBlock && c.OBQuality > 0 {
		reasons = append(reasons, fmt.Sprintf("OB quality=%.0f", c.OBQuality*100))
	} else if c.OrderBlock {
		reasons = append(reasons, "Order block in play")
	}
	if c.FVGAligned {
		reasons = append(reasons, "FVG aligned")
	}

	reasons = append(reasons, fmt.Sprintf("RR=%.2f (entry %.1f%% away)", rr, distPct))
	reasons = append(reasons, fmt.Sprintf("fresh %.2f (age %.0fm)", fresh, c.MinutesOld))
	reasons = append(reasons, fmt.Sprintf("spread %.0f bps, vol $%.2fM", spreadBps, c.VolumeUSD24h/1_000_000))

	if len(reasons) > 5 {
		reasons = reasons[:5]
	}
	return reasons
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
