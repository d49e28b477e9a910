package exec

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exec/journal"
	"github.com/snipetrade/snipetrade/internal/exec/state"
	"github.com/snipetrade/snipetrade/internal/planner"
	"github.com/snipetrade/snipetrade/internal/telemetry"
)

// fallbackDriftBps offsets the fallback stop from the entry when the plan
// carries no stop-entry price.
const fallbackDriftBps = 5.0

// Result is the executor's verdict on one plan, printed by the CLI and
// recorded in the journal.
type Result struct {
	Status  string                 `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
	PlanID  string                 `json:"plan_id,omitempty"`
	Symbol  string                 `json:"symbol,omitempty"`
	PnL     float64                `json:"pnl"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusEvent is a human-readable execution progress note, fanned out to
// messaging channels and the ops websocket.
type StatusEvent struct {
	Timestamp time.Time `json:"timestamp"`
	PlanID    string    `json:"plan_id,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Message   string    `json:"message"`
}

// StatusSink receives execution progress events.
type StatusSink interface {
	Publish(event StatusEvent)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(StatusEvent)

func (f SinkFunc) Publish(event StatusEvent) { f(event) }

// Executor drives one plan through the maker-first flow against a venue,
// persisting every step so a crash or retry resumes idempotently.
type Executor struct {
	venue    Venue
	store    *state.Store
	journal  *journal.Journal
	counters *telemetry.Counters
	health   *telemetry.Health
	registry *IdempotencyRegistry
	sink     StatusSink
	logger   zerolog.Logger
}

// NewExecutor wires the venue with its bookkeeping. Telemetry defaults to
// private instances; share them via WithTelemetry.
func NewExecutor(venue Venue, store *state.Store, jrnl *journal.Journal, logger zerolog.Logger) *Executor {
	return &Executor{
		venue:    venue,
		store:    store,
		journal:  jrnl,
		counters: telemetry.NewCounters(),
		health:   telemetry.NewHealth(0),
		logger:   logger.With().Str("component", "executor").Logger(),
	}
}

// WithTelemetry shares counters and health with the rest of the process.
func (e *Executor) WithTelemetry(counters *telemetry.Counters, health *telemetry.Health) *Executor {
	if counters != nil {
		e.counters = counters
	}
	if health != nil {
		e.health = health
	}
	return e
}

// WithStatusSink streams progress events to the sink.
func (e *Executor) WithStatusSink(sink StatusSink) *Executor {
	e.sink = sink
	return e
}

// WithRegistry dedupes placements across processes via Redis.
func (e *Executor) WithRegistry(registry *IdempotencyRegistry) *Executor {
	e.registry = registry
	return e
}

// Execute runs the maker-first flow: snapshot the intent, rest a
// post-only limit, wait out the maker timeout, arm the stop fallback,
// then settle the paper fill. Every venue call is keyed so replays after
// a crash or transport error cannot double-place.
func (e *Executor) Execute(ctx context.Context, plan *planner.TradePlan, cfg Config, clock Clock) (*Result, error) {
	if plan == nil {
		return nil, domain.E(domain.KindExecutor, "cannot execute a nil plan")
	}
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = RealClock()
	}

	planID := plan.PlanID
	if planID == "" {
		planID = uuid.NewString()
	}
	if err := e.store.SaveIntent(planID, plan); err != nil {
		return nil, err
	}

	side := domain.SideFor(plan.Direction)
	entry := plan.EntryNear
	if entry <= 0 {
		return nil, domain.Ef(domain.KindInvalidSetup, "plan %s has no entry price", planID)
	}
	qty := plan.Qty
	if qty <= 0 {
		qty = plan.Size.Qty
	}
	if qty <= 0 && plan.NotionalUSD > 0 {
		qty = plan.NotionalUSD / entry
	}
	if qty <= 0 {
		return nil, domain.Ef(domain.KindInvalidSetup, "plan %s has no quantity", planID)
	}

	maker := LimitPostOnly(plan.Symbol, side, qty, entry, false, cfg.Constraints)
	e.notify(plan, planID, fmt.Sprintf("LIMIT post-only %.6f @ %s (fallback STOP in %ds)",
		maker.Quantity, formatPx(maker.Price), int(cfg.MakerTimeout.Seconds())))

	e.counters.Incr("orders_attempted")
	started := clock.Now()
	limitOrder, err := e.place(ctx, maker, cfg.IdempotencyPrefix+planID+"_limit", cfg, clock)
	elapsed := float64(clock.Now().Sub(started).Milliseconds())
	if err != nil {
		e.counters.Incr("orders_failed")
		e.health.RecordFailure(elapsed)
		e.journalEvent(planID, plan.Symbol, "error", map[string]interface{}{"message": err.Error()})
		e.updateStatus(planID, domain.StatusRejected, nil)
		return &Result{
			Status:  "rejected",
			PlanID:  planID,
			Symbol:  plan.Symbol,
			Details: map[string]interface{}{"error": err.Error()},
		}, nil
	}
	e.health.RecordSuccess(elapsed)
	e.updateStatus(planID, domain.StatusWorking, map[string]string{"limit": limitOrder.OrderID})
	e.journalEvent(planID, plan.Symbol, "limit_placed", map[string]interface{}{"order_id": limitOrder.OrderID})

	if err := clock.Sleep(ctx, cfg.MakerTimeout); err != nil {
		return nil, domain.WrapErr(domain.KindExecutor, "maker wait interrupted", err)
	}

	fallbackStop := stopEntryPrice(plan, side, entry)
	stop := StopEntry(plan.Symbol, side, qty, fallbackStop, cfg.Constraints)
	ids := map[string]string{"limit": limitOrder.OrderID}
	fbOrder, fbErr := e.place(ctx, stop, cfg.IdempotencyPrefix+planID+"_fallback", cfg, clock)
	if fbErr != nil {
		e.counters.Incr("orders_failed")
		e.journalEvent(planID, plan.Symbol, "fallback_error", map[string]interface{}{"message": fbErr.Error()})
	} else {
		ids["fallback"] = fbOrder.OrderID
		e.journalEvent(planID, plan.Symbol, "fallback_placed", map[string]interface{}{
			"order_id": fbOrder.OrderID,
			"stop":     stop.StopPx,
		})
	}

	pnl := paperPnL(plan, side, maker.Price, maker.Quantity)
	fill := domain.Fill{
		EntryPrice: maker.Price,
		Qty:        maker.Quantity,
		PnL:        pnl,
		Timestamp:  float64(clock.Now().UnixNano()) / 1e9,
	}
	if err := e.store.AppendFill(planID, fill); err != nil {
		e.logger.Warn().Err(err).Str("plan_id", planID).Msg("fill not persisted")
	}
	e.updateStatus(planID, domain.StatusFilled, ids)
	e.journalEvent(planID, plan.Symbol, "plan_completed", map[string]interface{}{"pnl": pnl})
	e.counters.Incr("orders_filled")

	return &Result{
		Status: "filled",
		PlanID: planID,
		Symbol: plan.Symbol,
		PnL:    pnl,
		Details: map[string]interface{}{
			"entry_price":   maker.Price,
			"quantity":      maker.Quantity,
			"fallback_stop": stop.StopPx,
		},
	}, nil
}

// place submits one keyed order, retrying transient venue failures with
// the configured backoff. The key makes a retry after a lost response
// land on the order the venue already holds.
func (e *Executor) place(ctx context.Context, intent domain.OrderIntent, key string, cfg Config, clock Clock) (*VenueOrder, error) {
	if e.registry != nil {
		if order, ok, err := e.registry.Lookup(ctx, key); err == nil && ok {
			return order, nil
		}
	}

	var order *VenueOrder
	var err error
	for attempt := 0; ; attempt++ {
		order, err = e.venue.Place(ctx, intent, key)
		if err == nil {
			break
		}
		if attempt >= len(cfg.RetryBackoff) || !domain.IsRetryable(err) {
			return nil, err
		}
		e.logger.Warn().Err(err).Str("key", key).Int("attempt", attempt+1).Msg("placement retry")
		if sleepErr := clock.Sleep(ctx, cfg.RetryBackoff[attempt]); sleepErr != nil {
			return nil, domain.WrapErr(domain.KindExecutor, "retry interrupted", sleepErr)
		}
	}

	if e.registry != nil {
		if err := e.registry.Reserve(ctx, key, order); err != nil {
			e.logger.Warn().Err(err).Str("key", key).Msg("idempotency record not stored")
		}
	}
	return order, nil
}

// stopEntryPrice prefers the plan's own fallback price, else nudges the
// entry through the book by a few bps so the stop triggers on the move.
func stopEntryPrice(plan *planner.TradePlan, side domain.OrderSide, entry float64) float64 {
	if fb := plan.Execution.Fallback; fb != nil && fb.Price > 0 {
		return fb.Price
	}
	if side == domain.Buy {
		return entry * (1 + fallbackDriftBps/10000)
	}
	return entry / (1 + fallbackDriftBps/10000)
}

// paperPnL settles the simulated trade at the last take profit, falling
// back to the stop, else flat.
func paperPnL(plan *planner.TradePlan, side domain.OrderSide, entry, qty float64) float64 {
	exit := entry
	if plan.Stop > 0 {
		exit = plan.Stop
	}
	if n := len(plan.TakeProfits); n > 0 && plan.TakeProfits[n-1] > 0 {
		exit = plan.TakeProfits[n-1]
	}
	if side == domain.Sell {
		return (entry - exit) * qty
	}
	return (exit - entry) * qty
}

func (e *Executor) notify(plan *planner.TradePlan, planID, message string) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(StatusEvent{
		Timestamp: time.Now().UTC(),
		PlanID:    planID,
		Symbol:    plan.Symbol,
		Message:   message,
	})
}

func (e *Executor) journalEvent(planID, symbol, event string, details map[string]interface{}) {
	if err := e.journal.LogEvent(planID, symbol, event, details); err != nil {
		e.logger.Warn().Err(err).Str("event", event).Msg("journal write failed")
	}
}

func (e *Executor) updateStatus(planID string, status domain.OrderStatus, ids map[string]string) {
	if err := e.store.UpdateStatus(planID, status, ids); err != nil {
		e.logger.Warn().Err(err).Str("plan_id", planID).Msg("status not persisted")
	}
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
