package scan

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/domain/indicators"
	"github.com/snipetrade/snipetrade/internal/exchange"
	"github.com/snipetrade/snipetrade/internal/planner"
)

// PlanSymbol scores one symbol the way Scan does and prices it into an
// executable trade plan on the requested timeframe (blank defers to the
// scorer's dominant one). Unlike Scan it fails loudly: a symbol that does
// not qualify is an error, not an empty report.
func (s *Scheduler) PlanSymbol(ctx context.Context, symbol, timeframe string, plannerCfg planner.Config) (*planner.TradePlan, error) {
	normalized, err := exchange.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SymbolTimeout)
	defer cancel()

	if !exchange.IsPairListed(ctx, s.adapter, normalized) {
		return nil, domain.Ef(domain.KindConfig, "%s is not listed on %s", normalized, s.adapter.VenueID())
	}

	tfCandles := make(map[string][]domain.Candle, len(s.cfg.Timeframes))
	var currentPrice float64
	for _, tf := range s.cfg.Timeframes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := s.candlesFor(ctx, normalized, tf)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", normalized).Str("timeframe", tf).Msg("timeframe skipped")
			continue
		}
		tfCandles[tf] = candles
		if currentPrice == 0 {
			price, err := s.adapter.CurrentPrice(ctx, normalized)
			if err != nil || price <= 0 {
				price = candles[len(candles)-1].Close
			}
			currentPrice = price
		}
	}
	if len(tfCandles) == 0 || currentPrice <= 0 {
		return nil, domain.Ef(domain.KindDataShape, "no candle data for %s", normalized)
	}

	setup, err := s.scorer.ScoreSetup(ctx, normalized, s.adapter.VenueID(), tfCandles, currentPrice)
	if err != nil {
		return nil, err
	}
	if setup.Score < s.cfg.MinScore {
		return nil, domain.Ef(domain.KindInvalidSetup, "%s scored %.1f, below minimum %.1f", normalized, setup.Score, s.cfg.MinScore)
	}

	if timeframe == "" {
		timeframe = setup.Timeframe
	}
	candles, ok := tfCandles[timeframe]
	if !ok {
		return nil, domain.Ef(domain.KindConfig, "no %s candles for %s; configured timeframes: %v", timeframe, normalized, s.cfg.Timeframes)
	}
	setup.Timeframe = timeframe

	row := enrich(setup, normalized, timeframe, s.cfg.Leverage, s.cfg.RiskUSD, candles)

	structure := planner.StructureContext{OBMid: row.Structure.OBMid, OBLow: row.Structure.OBLow}
	ms := indicators.DetectStructure(candles, setup.Direction)
	if ms.Block != nil {
		structure.OBHigh = ms.Block.High
	}
	if ms.Gap != nil {
		structure.FVGLow = ms.Gap.Low
		structure.FVGHigh = ms.Gap.High
	}

	vwap := indicators.AnchoredVWAP(candles)
	now := time.Now()

	plan, err := planner.BuildTradePlan(planner.PlanRequest{
		Setup: setup,
		Price: planner.PriceContext{
			Price:   currentPrice,
			ATR:     row.ATRPct / 100 * currentPrice,
			Session: planner.SessionAt(now),
		},
		Orderflow: planner.OrderflowContext{
			OBI:       row.Flow.OBI,
			SpreadBps: row.SpreadBps,
			LiqInZone: zoneBetween(setup.Zones, setup.EntryPlan[0], setup.StopLoss),
		},
		Structure:    structure,
		VWAP:         planner.VWAPContext{VWAP: vwap.VWAP, Std: vwap.StdDev},
		Leverage:     s.cfg.Leverage,
		RiskUSD:      s.cfg.RiskUSD,
		DistancePct:  row.DistancePct,
		VolumeUSD24h: row.VolUSD24h,
		Links:        []string{row.Links.TV, row.Links.PhemexPreview},
		NowMS:        now.UnixMilli(),
	}, plannerCfg)
	if err != nil {
		return nil, err
	}
	plan.PlanID = uuid.NewString()

	s.metrics.Incr("plans_built")
	s.audit.Event("plan_built", map[string]interface{}{
		"plan_id":   plan.PlanID,
		"symbol":    normalized,
		"timeframe": timeframe,
		"direction": string(plan.Direction),
		"score":     plan.Score,
	})
	s.logger.Info().
		Str("plan_id", plan.PlanID).
		Str("symbol", normalized).
		Str("timeframe", timeframe).
		Str("direction", string(plan.Direction)).
		Float64("score", round2(plan.Score)).
		Msg("plan built")
	return plan, nil
}

// zoneBetween reports whether a significant liquidation cluster sits inside
// the entry-to-stop band, which pushes the planner off resting makers and
// onto stop entries.
func zoneBetween(zones []domain.LiquidationZone, entry, stop float64) bool {
	lo, hi := math.Min(entry, stop), math.Max(entry, stop)
	for _, zone := range zones {
		if zone.Significance >= 0.6 && zone.PriceLevel >= lo && zone.PriceLevel <= hi {
			return true
		}
	}
	return false
}
