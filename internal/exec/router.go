package exec

import (
	"context"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/planner"
)

// Route is the entry point for handing a plan to the autotrader: it
// applies the master switch, runs the policy gate, and only then
// executes. Every verdict lands in the journal.
func (e *Executor) Route(ctx context.Context, plan *planner.TradePlan, portfolio domain.PortfolioState, cfg Config, clock Clock) (*Result, error) {
	if plan == nil {
		return nil, domain.E(domain.KindExecutor, "cannot route a nil plan")
	}
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = RealClock()
	}

	if !cfg.Enabled {
		e.notify(plan, plan.PlanID, "Autotrade OFF (paper only)")
		result := &Result{
			Status: "disabled",
			Reason: "autotrade disabled",
			PlanID: plan.PlanID,
			Symbol: plan.Symbol,
		}
		e.record(result)
		return result, nil
	}

	if ok, reason := CheckPolicyAt(plan, portfolio, cfg, clock.Now().UTC()); !ok {
		e.notify(plan, plan.PlanID, "blocked: "+reason)
		result := &Result{
			Status: "blocked",
			Reason: reason,
			PlanID: plan.PlanID,
			Symbol: plan.Symbol,
		}
		e.record(result)
		return result, nil
	}

	result, err := e.Execute(ctx, plan, cfg, clock)
	if err != nil {
		return nil, err
	}
	e.record(result)
	return result, nil
}

func (e *Executor) record(result *Result) {
	if err := e.journal.Record(result); err != nil {
		e.logger.Warn().Err(err).Str("status", result.Status).Msg("result not recorded")
	}
}
