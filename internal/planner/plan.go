package planner

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// PlanRequest bundles a scored setup with its market contexts. Zero
// Leverage, RiskUSD, LotSize and MinNotional defer to the config; zero
// NowMS means the wall clock.
type PlanRequest struct {
	Setup        *domain.TradeSetup
	Price        PriceContext
	Orderflow    OrderflowContext
	Structure    StructureContext
	VWAP         VWAPContext
	Leverage     float64
	RiskUSD      float64
	LotSize      float64
	MinNotional  float64
	DistancePct  float64
	VolumeUSD24h float64
	Links        []string
	NowMS        int64
}

// TradePlan is the executable payload handed to the executor and the
// alert channels.
type TradePlan struct {
	PlanID       string           `json:"plan_id,omitempty"`
	Symbol       string           `json:"symbol"`
	Timeframe    string           `json:"timeframe"`
	Direction    domain.Direction `json:"direction"`
	Score        float64          `json:"score"`
	EntryNear    float64          `json:"entry_near"`
	EntryFar     float64          `json:"entry_far"`
	Stop         float64          `json:"stop"`
	TP1          float64          `json:"tp1"`
	TakeProfits  []float64        `json:"take_profits,omitempty"`
	Leverage     float64          `json:"leverage"`
	Qty          float64          `json:"qty"`
	NotionalUSD  float64          `json:"notional_usd"`
	RiskUSD      float64          `json:"risk_usd"`
	Liq          float64          `json:"liq"`
	LiqBuffer    string           `json:"liq_buffer"`
	RR           float64          `json:"rr"`
	DistancePct  float64          `json:"distance_pct"`
	SpreadBps    float64          `json:"spread_bps"`
	VolumeUSD24h float64          `json:"volume_usd_24h"`
	Reasons      []string         `json:"reasons"`
	Entries      EntryPair        `json:"entries"`
	Size         SizeResult       `json:"size"`
	Execution    ExecutionPlan    `json:"execution"`
	Links        []string         `json:"links,omitempty"`
	AlertText    string           `json:"alert_text"`
}

// BuildTradePlan wires the planner stack end to end: entries from
// structure and order flow, leverage-aware sizing against the near entry,
// execution hints, and the liquidation-gap summary.
func BuildTradePlan(req PlanRequest, cfg Config) (*TradePlan, error) {
	setup := req.Setup
	if setup == nil {
		return nil, domain.E(domain.KindInvalidSetup, "cannot plan a nil setup")
	}

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = cfg.DefaultLeverage
	}
	riskUSD := req.RiskUSD
	if riskUSD <= 0 {
		riskUSD = cfg.RiskUSD
	}
	lotSize := req.LotSize
	if lotSize <= 0 {
		lotSize = cfg.LotSize
	}
	minNotional := req.MinNotional
	if minNotional <= 0 {
		minNotional = cfg.MinNotional
	}
	nowMS := req.NowMS
	if nowMS == 0 {
		nowMS = time.Now().UnixMilli()
	}

	entries, err := ProposeEntries(EntryRequest{
		Direction: setup.Direction,
		Stop:      setup.StopLoss,
		Price:     req.Price,
		Orderflow: req.Orderflow,
		Structure: req.Structure,
		VWAP:      req.VWAP,
	}, cfg)
	if err != nil {
		return nil, err
	}

	size, err := PositionSize(SizeRequest{
		Direction:       setup.Direction,
		Entry:           entries.Near.Price,
		Stop:            setup.StopLoss,
		Price:           req.Price.Price,
		RiskUSD:         riskUSD,
		Leverage:        leverage,
		LotSize:         lotSize,
		MinNotional:     minNotional,
		MaintMarginRate: cfg.MaintMarginRate,
		ATR:             req.Price.ATR,
	}, cfg)
	if err != nil {
		return nil, err
	}

	execution := DecideExecution(entries.Near, entries.Far, nowMS, cfg)

	var tp1 float64
	if len(setup.TakeProfits) > 0 {
		tp1 = setup.TakeProfits[0]
	}

	plan := &TradePlan{
		Symbol:       setup.Symbol,
		Timeframe:    setup.Timeframe,
		Direction:    setup.Direction,
		Score:        setup.Score,
		EntryNear:    entries.Near.Price,
		EntryFar:     entries.Far.Price,
		Stop:         setup.StopLoss,
		TP1:          tp1,
		TakeProfits:  setup.TakeProfits,
		Leverage:     leverage,
		Qty:          size.Qty,
		NotionalUSD:  size.Qty * entries.Near.Price,
		RiskUSD:      riskUSD,
		Liq:          size.Liq,
		LiqBuffer:    fmt.Sprintf("gap %.3f", math.Abs(setup.StopLoss-size.Liq)),
		RR:           setup.RR,
		DistancePct:  req.DistancePct,
		SpreadBps:    req.Orderflow.SpreadBps,
		VolumeUSD24h: req.VolumeUSD24h,
		Reasons:      setup.Reasons,
		Entries:      entries,
		Size:         size,
		Execution:    execution,
		Links:        req.Links,
	}
	plan.AlertText = formatAlert(plan)
	return plan, nil
}

// formatAlert renders the compact multi-line alert sent to messaging
// channels.
func formatAlert(p *TradePlan) string {
	parts := []string{
		fmt.Sprintf("%s %s %s", p.Symbol, p.Timeframe, p.Direction),
		fmt.Sprintf("Score %.1f", p.Score),
		fmt.Sprintf("Entry N/F: %s / %s", formatPrice(p.EntryNear), formatPrice(p.EntryFar)),
		fmt.Sprintf("SL %s | TP1 %s", formatPrice(p.Stop), formatPrice(p.TP1)),
		fmt.Sprintf("Lev %sx | Qty %s | Liq %s (%s)",
			formatPrice(p.Leverage), formatPrice(p.Qty), formatPrice(p.Liq), p.LiqBuffer),
		fmt.Sprintf("RR %.2f | Dist %.2f%%", p.RR, p.DistancePct),
		fmt.Sprintf("Spread %.0fbps | Vol $%s", p.SpreadBps, formatPrice(p.VolumeUSD24h)),
		"Reasons: " + formatReasons(p.Reasons),
	}

	var exec []string
	near := p.Execution.Near
	post := ""
	if near.PostOnly {
		post = " post-only"
	}
	exec = append(exec, fmt.Sprintf("near: %s%s @%s", strings.ToUpper(string(near.Type)), post, formatPrice(near.Price)))
	if fb := p.Execution.Fallback; fb != nil {
		exec = append(exec, fmt.Sprintf("fallback -> %s @%s (%s)", strings.ToUpper(string(fb.Type)), formatPrice(fb.Price), fb.Reason))
	}
	far := p.Execution.Far
	exec = append(exec, fmt.Sprintf("far: %s @%s", strings.ToUpper(string(far.Type)), formatPrice(far.Price)))
	parts = append(parts, "Execution: "+strings.Join(exec, "; "))

	if len(p.Links) > 0 {
		parts = append(parts, "Links: "+strings.Join(p.Links, " | "))
	}

	return strings.Join(parts, "\n")
}

func formatReasons(reasons []string) string {
	kept := make([]string, 0, 5)
	for _, r := range reasons {
		if r == "" {
			continue
		}
		kept = append(kept, r)
		if len(kept) == 5 {
			break
		}
	}
	if len(kept) == 0 {
		return "n/a"
	}
	return strings.Join(kept, " | ")
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
