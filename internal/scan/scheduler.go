// Package scan runs the market scan: it expands the trading universe, pulls
// multi-timeframe candles through a TTL cache, scores each symbol once,
// enriches the survivors per timeframe and ranks them into a reproducible
// report. Symbol failures are isolated; only caller cancellation aborts a
// run.
package scan

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snipetrade/snipetrade/internal/data/cache"
	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exchange"
	"github.com/snipetrade/snipetrade/internal/filter"
	"github.com/snipetrade/snipetrade/internal/scoring"
	"github.com/snipetrade/snipetrade/internal/telemetry"
)

// Filters echoes the effective scan parameters into the report meta.
type Filters struct {
	Symbols    []string `json:"symbols"`
	Timeframes []string `json:"timeframes"`
	MinScore   float64  `json:"min_score"`
	Limit      int      `json:"limit"`
	Leverage   float64  `json:"leverage"`
	RiskUSD    float64  `json:"risk_usd"`
}

// Stats counts the funnel: pairs examined, rows that survived the filters,
// rows returned after ranking.
type Stats struct {
	Pairs     int `json:"pairs"`
	Qualified int `json:"qualified"`
	Returned  int `json:"returned"`
}

// Meta describes one scan run. It is the only place wall-clock values
// appear; the results rows stay reproducible.
type Meta struct {
	ScanID         string           `json:"scan_id"`
	GeneratedAt    string           `json:"generated_at"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	Filters        Filters          `json:"filters"`
	Stats          Stats            `json:"stats"`
	Cancelled      bool             `json:"cancelled,omitempty"`
	Notes          []string         `json:"notes,omitempty"`
	Backtest       *BacktestSummary `json:"backtest,omitempty"`
}

// Report bundles the meta block with the ranked results.
type Report struct {
	Meta    Meta     `json:"meta"`
	Results []Result `json:"results"`
}

// BacktestSummary grades a result batch by its risk-reward profile.
type BacktestSummary struct {
	Status       string  `json:"status"`
	Reason       string  `json:"reason,omitempty"`
	SetupsTested int     `json:"setups_tested,omitempty"`
	AvgScore     float64 `json:"avg_score"`
	AvgRR        float64 `json:"avg_rr"`
	WinRatio     float64 `json:"win_ratio"`
}

// MarshalJSON keeps the skipped payload down to status and reason so report
// consumers never see zeroed statistics.
func (b BacktestSummary) MarshalJSON() ([]byte, error) {
	if b.Status != "ok" {
		return json.Marshal(struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}{b.Status, b.Reason})
	}
	type summary struct {
		Status       string  `json:"status"`
		SetupsTested int     `json:"setups_tested"`
		AvgScore     float64 `json:"avg_score"`
		AvgRR        float64 `json:"avg_rr"`
		WinRatio     float64 `json:"win_ratio"`
	}
	return json.Marshal(summary{b.Status, b.SetupsTested, b.AvgScore, b.AvgRR, b.WinRatio})
}

// Setups with at least this risk-reward count as winners in the quick
// backtest.
const backtestWinnerRR = 2.5

// SummarizeBacktest scores a finished batch. Callers attach it to the
// report meta after ranking.
func SummarizeBacktest(results []Result) BacktestSummary {
	if len(results) == 0 {
		return BacktestSummary{Status: "skipped", Reason: "No setups available for backtest."}
	}

	var scoreSum, rrSum float64
	winners := 0
	for _, r := range results {
		scoreSum += r.Score
		rrSum += r.RR
		if r.RR >= backtestWinnerRR {
			winners++
		}
	}
	n := float64(len(results))
	return BacktestSummary{
		Status:       "ok",
		SetupsTested: len(results),
		AvgScore:     round2(scoreSum / n),
		AvgRR:        round2(rrSum / n),
		WinRatio:     round2(float64(winners) / n),
	}
}

// AuditSink receives scan lifecycle events. Implementations must not
// block; a slow sink slows every worker.
type AuditSink interface {
	Event(name string, data map[string]interface{})
}

type nopAudit struct{}

func (nopAudit) Event(string, map[string]interface{}) {}

// Scheduler owns one scan pipeline: adapter, scorer, pair filter and the
// shared candle cache. It is safe for repeated Scan calls; the cache warms
// across runs inside its TTL.
type Scheduler struct {
	adapter exchange.Adapter
	scorer  *scoring.Scorer
	pairs   *filter.PairFilter
	candles cache.Manager
	cfg     Config
	logger  zerolog.Logger
	metrics *telemetry.Counters
	stages  *telemetry.StageTracker
	audit   AuditSink
}

// NewScheduler wires a scheduler. A nil scorer gets the default confluence
// scorer with the seeded heatmap provider; a nil pair filter excludes
// stablecoin pairs only.
func NewScheduler(adapter exchange.Adapter, scorer *scoring.Scorer, pairs *filter.PairFilter, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if adapter == nil {
		return nil, domain.E(domain.KindConfig, "scan scheduler needs an exchange adapter")
	}
	cfg = cfg.withDefaults()
	if scorer == nil {
		scorer = scoring.NewScorer(nil, scoring.NewHeatmapProvider(), scoring.DefaultWeights(), logger)
	}
	if pairs == nil {
		pairs = filter.New(true, nil)
	}
	candles, err := cache.NewInMemory(cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		adapter: adapter,
		scorer:  scorer,
		pairs:   pairs,
		candles: candles,
		cfg:     cfg,
		logger:  logger.With().Str("component", "scan").Logger(),
		metrics: telemetry.NewCounters(),
		stages:  telemetry.NewStageTracker(),
		audit:   nopAudit{},
	}, nil
}

// WithAudit routes scan lifecycle events to the given sink.
func (s *Scheduler) WithAudit(sink AuditSink) *Scheduler {
	if sink != nil {
		s.audit = sink
	}
	return s
}

// WithCandleCache swaps the candle cache backend. The default is
// process-local; a Redis manager lets concurrent scanners reuse each
// other's venue fetches.
func (s *Scheduler) WithCandleCache(mgr cache.Manager) *Scheduler {
	if mgr != nil {
		s.candles = mgr
	}
	return s
}

// WithTelemetry points the scheduler at shared counters and stage
// histograms so scan metrics land in the same registry the executor and
// the ops endpoints use.
func (s *Scheduler) WithTelemetry(counters *telemetry.Counters, stages *telemetry.StageTracker) *Scheduler {
	if counters != nil {
		s.metrics = counters
	}
	if stages != nil {
		s.stages = stages
	}
	return s
}

// Metrics exposes the counter registry backing this scheduler.
func (s *Scheduler) Metrics() *telemetry.Counters { return s.metrics }

// Stages exposes the per-stage latency histograms.
func (s *Scheduler) Stages() *telemetry.StageTracker { return s.stages }

// Scan runs one full pass over the universe and returns the ranked report.
// Individual symbols may fail without failing the scan; the returned error
// is reserved for universe resolution and caller cancellation.
func (s *Scheduler) Scan(ctx context.Context) (*Report, error) {
	start := time.Now()
	scanID := uuid.NewString()

	symbols, metaSymbols, err := s.universe(ctx)
	if err != nil {
		s.audit.Event("scan_execution_error", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	s.logger.Info().Str("scan_id", scanID).Int("pairs", len(symbols)).Msg("scan started")
	s.audit.Event("scan_started", map[string]interface{}{
		"scan_id":    scanID,
		"pairs":      len(symbols),
		"timeframes": s.cfg.Timeframes,
		"min_score":  s.cfg.MinScore,
	})

	perSymbol := make([][]Result, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			symCtx, cancel := context.WithTimeout(gctx, s.cfg.SymbolTimeout)
			defer cancel()

			rows, err := s.scanSymbol(symCtx, symbol)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.metrics.Incr("scan_symbol_errors")
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("symbol scan failed")
				s.audit.Event("pair_scan_error", map[string]interface{}{"symbol": symbol, "error": err.Error()})
				return nil
			}
			perSymbol[i] = rows
			return nil
		})
	}
	cancelled := false
	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			return nil, err
		}
		// Caller cancellation: stop dispatching and report whatever the
		// finished workers produced.
		cancelled = true
		s.logger.Warn().Str("scan_id", scanID).Msg("scan cancelled, returning partial results")
	}

	// Flatten in universe order before the stable sort so equal scores keep
	// a deterministic ordering regardless of which worker finished first.
	qualified := make([]Result, 0, len(symbols))
	for _, rows := range perSymbol {
		qualified = append(qualified, rows...)
	}
	sort.SliceStable(qualified, func(i, j int) bool { return qualified[i].Score > qualified[j].Score })

	top := qualified
	if len(top) > s.cfg.Limit {
		top = top[:s.cfg.Limit]
	}

	elapsed := time.Since(start)
	s.metrics.Incr("scans_completed")
	s.metrics.Add("setups_qualified", int64(len(qualified)))
	s.metrics.ObserveLatency("scan", float64(elapsed.Milliseconds()))

	meta := Meta{
		ScanID:         scanID,
		GeneratedAt:    time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		ElapsedSeconds: round3(elapsed.Seconds()),
		Filters: Filters{
			Symbols:    metaSymbols,
			Timeframes: s.cfg.Timeframes,
			MinScore:   s.cfg.MinScore,
			Limit:      s.cfg.Limit,
			Leverage:   s.cfg.Leverage,
			RiskUSD:    s.cfg.RiskUSD,
		},
		Stats:     Stats{Pairs: len(symbols), Qualified: len(qualified), Returned: len(top)},
		Cancelled: cancelled,
	}
	if cancelled {
		meta.Notes = append(meta.Notes, "Scan cancelled before completion; results are partial.")
	}
	if len(top) < s.cfg.Limit {
		meta.Notes = append(meta.Notes, "Low-signal market: fewer setups than requested.")
	}

	s.logger.Info().
		Str("scan_id", scanID).
		Int("qualified", len(qualified)).
		Int("returned", len(top)).
		Float64("elapsed_seconds", meta.ElapsedSeconds).
		Msg("scan completed")
	s.audit.Event("scan_completed", map[string]interface{}{
		"scan_id":         scanID,
		"pairs":           len(symbols),
		"qualified":       len(qualified),
		"returned":        len(top),
		"cancelled":       cancelled,
		"elapsed_seconds": meta.ElapsedSeconds,
	})
	return &Report{Meta: meta, Results: top}, nil
}

// universe resolves the symbols to scan plus the list echoed in the meta
// block, which keeps pinned symbols as the caller wrote them.
func (s *Scheduler) universe(ctx context.Context) ([]string, []string, error) {
	if len(s.cfg.Symbols) > 0 {
		normalized := make([]string, 0, len(s.cfg.Symbols))
		for _, symbol := range s.cfg.Symbols {
			normalized = append(normalized, exchange.MustNormalizeSymbol(symbol))
		}
		return normalized, s.cfg.Symbols, nil
	}

	ranked, err := s.adapter.TopPairs(ctx, s.cfg.MaxPairs*2, s.cfg.Quote)
	if err != nil {
		return nil, nil, domain.WrapErr(domain.KindTransient, "expanding scan universe", err)
	}
	top := s.pairs.TopPairs(ranked, s.cfg.MaxPairs)
	return top, top, nil
}

// scanSymbol produces the filtered result rows for one symbol. A nil error
// with no rows means the symbol was skipped, not that it failed.
func (s *Scheduler) scanSymbol(ctx context.Context, symbol string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !exchange.IsPairListed(ctx, s.adapter, symbol) {
		s.logger.Debug().Str("symbol", symbol).Msg("skipping unlisted pair")
		return nil, nil
	}

	dataTimer := s.stages.StartTimer(telemetry.StageData)
	tfCandles := make(map[string][]domain.Candle, len(s.cfg.Timeframes))
	var currentPrice float64
	for _, tf := range s.cfg.Timeframes {
		if err := ctx.Err(); err != nil {
			dataTimer.Stop()
			return nil, err
		}
		candles, err := s.candlesFor(ctx, symbol, tf)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", tf).Msg("timeframe skipped")
			s.audit.Event("data_fetch_error", map[string]interface{}{"symbol": symbol, "timeframe": tf, "error": err.Error()})
			continue
		}
		tfCandles[tf] = candles
		if currentPrice == 0 {
			price, err := s.adapter.CurrentPrice(ctx, symbol)
			if err != nil || price <= 0 {
				price = candles[len(candles)-1].Close
			}
			currentPrice = price
		}
	}
	dataTimer.Stop()
	if len(tfCandles) == 0 || currentPrice <= 0 {
		return nil, nil
	}

	scoreTimer := s.stages.StartTimer(telemetry.StageScore)
	setup, err := s.scorer.ScoreSetup(ctx, symbol, s.adapter.VenueID(), tfCandles, currentPrice)
	scoreTimer.Stop()
	if err != nil {
		s.logger.Debug().Err(err).Str("symbol", symbol).Msg("no setup")
		return nil, nil
	}
	if setup.Score < s.cfg.MinScore {
		return nil, nil
	}

	gateTimer := s.stages.StartTimer(telemetry.StageGate)
	defer gateTimer.Stop()
	rows := make([]Result, 0, len(tfCandles))
	for _, tf := range s.cfg.Timeframes {
		candles, ok := tfCandles[tf]
		if !ok {
			continue
		}
		row := enrich(setup, symbol, tf, s.cfg.Leverage, s.cfg.RiskUSD, candles)
		if s.keep(row) {
			rows = append(rows, row)
			s.audit.Event("setup_found", map[string]interface{}{
				"symbol":    row.Symbol,
				"timeframe": row.Timeframe,
				"direction": string(row.Direction),
				"score":     row.Score,
			})
		}
	}
	return rows, nil
}

// keep applies the phase filters to one enriched row.
func (s *Scheduler) keep(row Result) bool {
	switch {
	case row.Score < s.cfg.MinScore:
		s.drop(row, "score below minimum")
	case row.RR < 2.0:
		s.drop(row, "rr below 2.0")
	case !row.LiqSafe:
		s.drop(row, "liquidation unsafe")
	case row.SpreadBps > 300:
		s.drop(row, "spread above 300 bps")
	default:
		return true
	}
	return false
}

func (s *Scheduler) drop(row Result, why string) {
	s.metrics.Incr("scan_drops")
	s.logger.Debug().
		Str("symbol", row.Symbol).
		Str("timeframe", row.Timeframe).
		Str("gate", why).
		Msg("setup filtered")
}

// candlesFor serves candles from the scan cache, fetching on miss and
// falling back to the synthetic generator when enabled.
func (s *Scheduler) candlesFor(ctx context.Context, symbol, timeframe string) ([]domain.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := symbol + ":" + timeframe
	if cached, ok := s.cachedCandles(ctx, key); ok {
		s.metrics.Incr("candle_cache_hits")
		return cached, nil
	}

	candles, err := s.adapter.FetchOHLCV(ctx, symbol, timeframe, s.cfg.CandleLimit)
	if err != nil || len(candles) == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !s.cfg.Synthetic {
			if err != nil {
				return nil, err
			}
			return nil, domain.Ef(domain.KindDataShape, "%s returned no %s candles", symbol, timeframe)
		}
		candles, err = SyntheticCandles(symbol, timeframe, s.cfg.CandleLimit)
		if err != nil {
			return nil, err
		}
		s.metrics.Incr("synthetic_series")
	}

	s.storeCandles(ctx, key, candles)
	return candles, nil
}

// cachedCandles decodes one cache entry. Backend failures and unreadable
// payloads count as misses; the venue fetch covers both.
func (s *Scheduler) cachedCandles(ctx context.Context, key string) ([]domain.Candle, bool) {
	payload, ok, err := s.candles.Get(ctx, key)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("candle cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var candles []domain.Candle
	if err := json.Unmarshal(payload, &candles); err != nil || len(candles) == 0 {
		return nil, false
	}
	return candles, true
}

func (s *Scheduler) storeCandles(ctx context.Context, key string, candles []domain.Candle) {
	payload, err := json.Marshal(candles)
	if err != nil {
		return
	}
	if err := s.candles.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("candle cache write failed")
	}
}
