// Package scoring ranks markets by how many independent reads agree on a
// direction: indicator alignment, higher-timeframe confluence, liquidation
// positioning and trend strength, blended into a 0..100 composite.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/domain/indicators"
	"github.com/snipetrade/snipetrade/internal/exchange"
)

// Weights splits the composite across its four components. They should
// sum to 1; DefaultWeights is the calibrated split.
type Weights struct {
	IndicatorAlignment  float64 `json:"indicator_alignment"`
	TimeframeConfluence float64 `json:"timeframe_confluence"`
	LiquidationSupport  float64 `json:"liquidation_support"`
	TrendStrength       float64 `json:"trend_strength"`
}

// DefaultWeights favours indicator agreement, then cross-timeframe
// confirmation.
func DefaultWeights() Weights {
	return Weights{
		IndicatorAlignment:  0.35,
		TimeframeConfluence: 0.30,
		LiquidationSupport:  0.20,
		TrendStrength:       0.15,
	}
}

// Scorer combines the indicator engine and a liquidation feed into
// ranked trade setups.
type Scorer struct {
	engine  *indicators.Engine
	zones   ZoneProvider
	weights Weights
	logger  zerolog.Logger
}

// NewScorer wires a scorer. A nil engine gets the default indicator
// configuration; a nil provider scores liquidations as unknown.
func NewScorer(engine *indicators.Engine, zones ZoneProvider, weights Weights, logger zerolog.Logger) *Scorer {
	if engine == nil {
		engine = indicators.NewEngine(indicators.Config{})
	}
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{engine: engine, zones: zones, weights: weights, logger: logger}
}

// ScoreSetup scores one market across its timeframes and, when a
// direction dominates, emits a setup with baseline 2%/2% risk geometry.
// Timeframes with fewer than the engine minimum candles are skipped.
func (s *Scorer) ScoreSetup(ctx context.Context, symbol, venue string, timeframeData map[string][]domain.Candle, currentPrice float64) (*domain.TradeSetup, error) {
	if currentPrice <= 0 {
		return nil, domain.Ef(domain.KindDataShape, "cannot score %s without a positive price", symbol)
	}

	timeframes := sortedTimeframes(timeframeData)

	var allSignals []domain.IndicatorSignal
	confluence := make(map[string]domain.Direction, len(timeframes))
	for _, tf := range timeframes {
		signals := s.engine.CalculateAll(timeframeData[tf], tf)
		if len(signals) == 0 {
			continue
		}
		allSignals = append(allSignals, signals...)
		confluence[tf] = dominantDirection(signals)
	}
	if len(allSignals) == 0 {
		return nil, domain.Ef(domain.KindInvalidSetup, "%s has insufficient candle history on every timeframe", symbol)
	}

	direction := dominantDirection(allSignals)
	if !direction.Tradable() {
		return nil, domain.Ef(domain.KindInvalidSetup, "%s has no dominant direction", symbol)
	}

	zones := s.fetchZones(ctx, symbol, currentPrice)

	indicatorScore := indicatorAlignmentScore(allSignals)
	timeframeScore := timeframeConfluenceScore(confluence)
	liquidationScore := liquidationSupportScore(zones, direction)
	trendScore := trendStrengthScore(allSignals)

	score := indicatorScore*s.weights.IndicatorAlignment +
		timeframeScore*s.weights.TimeframeConfluence +
		liquidationScore*s.weights.LiquidationSupport +
		trendScore*s.weights.TrendStrength

	aligned := alignedTimeframes(timeframes, confluence, direction)

	stop, takeProfits := baselineGeometry(direction, currentPrice)
	setup := domain.TradeSetup{
		Symbol:              symbol,
		Venue:               venue,
		Timeframe:           primaryTimeframe(timeframes, confluence),
		Direction:           direction,
		Score:               score,
		Confidence:          confidence(score, len(allSignals), len(aligned)),
		EntryPlan:           []float64{currentPrice},
		StopLoss:            stop,
		TakeProfits:         takeProfits,
		RR:                  domain.RewardRisk(direction, currentPrice, stop, takeProfits[0]),
		Reasons:             buildReasons(allSignals, aligned, zones, direction, score),
		TimeframeConfluence: confluence,
		IndicatorSummaries:  allSignals,
		Zones:               zones,
		Metadata: map[string]float64{
			"indicator_score":    indicatorScore,
			"timeframe_score":    timeframeScore,
			"liquidation_score":  liquidationScore,
			"trend_score":        trendScore,
			"signal_count":       float64(len(allSignals)),
			"aligned_timeframes": float64(len(aligned)),
		},
	}
	return domain.NewTradeSetup(setup)
}

func (s *Scorer) fetchZones(ctx context.Context, symbol string, price float64) []domain.LiquidationZone {
	if s.zones == nil {
		return nil
	}
	zones, err := s.zones.Zones(ctx, symbol, price)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("liquidation zones unavailable")
		return nil
	}
	return zones
}

// sortedTimeframes orders by duration ascending so scoring is stable no
// matter what order the fetcher populated the map in.
func sortedTimeframes(data map[string][]domain.Candle) []string {
	tfs := make([]string, 0, len(data))
	for tf := range data {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool {
		di, erri := exchange.ParseTimeframe(tfs[i])
		dj, errj := exchange.ParseTimeframe(tfs[j])
		if erri != nil || errj != nil || di == dj {
			return tfs[i] < tfs[j]
		}
		return di < dj
	})
	return tfs
}

// primaryTimeframe is the shortest timeframe that actually produced a
// directional read; the scan anchor.
func primaryTimeframe(sorted []string, confluence map[string]domain.Direction) string {
	for _, tf := range sorted {
		if _, ok := confluence[tf]; ok {
			return tf
		}
	}
	if len(sorted) > 0 {
		return sorted[0]
	}
	return ""
}

// dominantDirection sums signal strengths per side. A strict majority by
// strength wins; an exact tie is neutral.
func dominantDirection(signals []domain.IndicatorSignal) domain.Direction {
	var longSum, shortSum float64
	for _, sig := range signals {
		switch sig.Direction {
		case domain.Long:
			longSum += sig.Strength
		case domain.Short:
			shortSum += sig.Strength
		}
	}
	switch {
	case longSum > shortSum:
		return domain.Long
	case shortSum > longSum:
		return domain.Short
	default:
		return domain.Neutral
	}
}

// indicatorAlignmentScore blends strength dominance (70%) with headcount
// dominance (30%) into 0..100.
func indicatorAlignmentScore(signals []domain.IndicatorSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var longSum, shortSum, total float64
	var longN, shortN int
	for _, sig := range signals {
		total += sig.Strength
		switch sig.Direction {
		case domain.Long:
			longSum += sig.Strength
			longN++
		case domain.Short:
			shortSum += sig.Strength
			shortN++
		}
	}
	if total == 0 {
		return 0
	}
	strengthShare := maxFloat(longSum, shortSum) / total
	countShare := float64(maxInt(longN, shortN)) / float64(len(signals))
	return (strengthShare*0.7 + countShare*0.3) * 100
}

// trendStrengthScore is the mean signal strength over all timeframes,
// scaled to 0..100. Direction-blind: a market pinning every oscillator is
// trending hard whichever way it points.
func trendStrengthScore(signals []domain.IndicatorSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var sum float64
	for _, sig := range signals {
		sum += sig.Strength
	}
	return sum / float64(len(signals)) * 100
}

// timeframeConfluenceScore is the share of timeframes agreeing with the
// majority side, neutral timeframes diluting it.
func timeframeConfluenceScore(confluence map[string]domain.Direction) float64 {
	if len(confluence) == 0 {
		return 0
	}
	var longN, shortN int
	for _, dir := range confluence {
		switch dir {
		case domain.Long:
			longN++
		case domain.Short:
			shortN++
		}
	}
	return float64(maxInt(longN, shortN)) / float64(len(confluence)) * 100
}

// liquidationSupportScore rewards significant zones on the trade side.
// No data at all is scored as a coin flip rather than a rejection.
func liquidationSupportScore(zones []domain.LiquidationZone, direction domain.Direction) float64 {
	if len(zones) == 0 {
		return 50
	}
	var sigSum float64
	var supporting int
	for _, z := range zones {
		if z.Direction == direction {
			supporting++
			sigSum += z.Significance
		}
	}
	if supporting == 0 {
		return 30
	}
	avgSig := sigSum / float64(supporting)
	density := minFloat(1, float64(supporting)/3)
	return (avgSig*0.7 + density*0.3) * 100
}

func alignedTimeframes(sorted []string, confluence map[string]domain.Direction, direction domain.Direction) []string {
	aligned := make([]string, 0, len(sorted))
	for _, tf := range sorted {
		if confluence[tf] == direction {
			aligned = append(aligned, tf)
		}
	}
	return aligned
}

// confidence folds the composite with small bonuses for signal count and
// timeframe agreement, capped at 1.
func confidence(score float64, signalCount, alignedCount int) float64 {
	c := score/100 +
		minFloat(0.2, float64(signalCount)/20) +
		minFloat(0.2, float64(alignedCount)/10)
	return minFloat(1, c)
}

// buildReasons renders the human-readable evidence list. The output is a
// pure function of its inputs so identical scans produce identical text.
func buildReasons(signals []domain.IndicatorSignal, aligned []string, zones []domain.LiquidationZone, direction domain.Direction, score float64) []string {
	reasons := make([]string, 0, 6)

	strong := make([]domain.IndicatorSignal, 0, len(signals))
	for _, sig := range signals {
		if sig.Strength > 0.6 {
			strong = append(strong, sig)
		}
	}
	sort.SliceStable(strong, func(i, j int) bool { return strong[i].Strength > strong[j].Strength })
	if len(strong) > 3 {
		strong = strong[:3]
	}
	for _, sig := range strong {
		reasons = append(reasons, fmt.Sprintf("%s favours %s on %s (strength %.2f)", sig.Name, sig.Direction, sig.Timeframe, sig.Strength))
	}

	if len(aligned) >= 2 {
		list := aligned
		if len(list) > 4 {
			list = list[:4]
		}
		reasons = append(reasons, "Multi-timeframe alignment: "+strings.Join(list, ", "))
	}

	var supportive int
	for _, z := range zones {
		if z.Direction == direction && z.Significance >= 0.6 {
			supportive++
		}
	}
	if supportive > 0 {
		reasons = append(reasons, fmt.Sprintf("%d supportive liquidation zone(s)", supportive))
	}

	switch {
	case score >= 70:
		reasons = append(reasons, fmt.Sprintf("High composite score %.1f/100", score))
	case score >= 50:
		reasons = append(reasons, fmt.Sprintf("Moderate composite score %.1f/100", score))
	}

	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("Composite score %.1f/100", score))
	}
	return reasons
}

// baselineGeometry is the scorer's 2% stop / 2%+4% target frame around
// the current price. The planner refines it later.
func baselineGeometry(direction domain.Direction, price float64) (stop float64, takeProfits []float64) {
	if direction == domain.Long {
		return price * 0.98, []float64{price * 1.02, price * 1.04}
	}
	return price * 1.02, []float64{price * 0.98, price * 0.96}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
