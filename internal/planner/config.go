// Package planner turns a scored setup into an executable trade plan:
// near/far entry legs anchored on structure and order flow, a
// leverage-aware position size with liquidation safety, and execution
// hints with a maker-timeout fallback.
package planner

// Config tunes entry placement, sizing and liquidation buffers.
type Config struct {
	// Entry placement.
	OBIMakerThreshold  float64 `json:"obi_maker_threshold"`
	MakerSpreadMaxBps  float64 `json:"maker_spread_max_bps"`
	QueueOffsetTicks   int     `json:"queue_offset_ticks"`
	StopEntryTicks     int     `json:"stop_entry_ticks"`
	EntryATRMinFrac    float64 `json:"entry_atr_min_frac"`
	VWAPKStd           float64 `json:"vwap_k_std"`
	SessionBiasTighter bool    `json:"session_bias_tighter"`

	// Execution.
	EntryTimeoutSec int `json:"entry_timeout_sec"`

	// Sizing.
	RiskUSD         float64 `json:"risk_usd"`
	DefaultLeverage float64 `json:"default_leverage"`
	LotSize         float64 `json:"lot_size"`
	MinNotional     float64 `json:"min_notional"`
	MaintMarginRate float64 `json:"maint_margin_rate"`

	// Liquidation safety.
	LiqBufferPct      float64 `json:"liq_buffer_pct"`
	LiqBufferATRMult  float64 `json:"liq_buffer_atr_mult"`
	ReduceOnUnsafeLiq bool    `json:"reduce_on_unsafe_liq"`
	SkipIfStillUnsafe bool    `json:"skip_if_still_unsafe"`
}

// DefaultConfig is the conservative production profile: passive entries
// behind a 10 bps spread cap, 60 s maker timeout, 50 USD risk per trade
// and a liquidation buffer of 5% of the stop or one ATR, whichever is
// wider.
func DefaultConfig() Config {
	return Config{
		MakerSpreadMaxBps: 10,
		StopEntryTicks:    1,
		EntryTimeoutSec:   60,
		RiskUSD:           50,
		DefaultLeverage:   25,
		MaintMarginRate:   0.005,
		LiqBufferPct:      5,
		LiqBufferATRMult:  1,
		ReduceOnUnsafeLiq: true,
		SkipIfStillUnsafe: true,
	}
}
