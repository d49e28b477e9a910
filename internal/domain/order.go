package domain

// OrderSide is the venue-facing side of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// SideFor maps a trade direction to the entry order side.
func SideFor(d Direction) OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// OrderType is the venue-facing order type.
type OrderType string

const (
	OrderLimit      OrderType = "LIMIT"
	OrderStop       OrderType = "STOP"
	OrderStopMarket OrderType = "STOP_MARKET"
	OrderMarket     OrderType = "MARKET"
)

// OrderIntent is a fully-specified order ready for submission. The
// idempotency key travels separately so the same intent can be replayed
// under a new key.
type OrderIntent struct {
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	Type        OrderType `json:"type"`
	Price       float64   `json:"price,omitempty"`
	StopPx      float64   `json:"stopPx,omitempty"`
	Quantity    float64   `json:"quantity"`
	TimeInForce string    `json:"timeInForce,omitempty"`
	PostOnly    bool      `json:"postOnly,omitempty"`
	ReduceOnly  bool      `json:"reduceOnly"`
}

// OrderStatus is one step in a plan's execution lifecycle. Transitions
// only move forward: intent -> working -> a terminal status.
type OrderStatus string

const (
	StatusIntent   OrderStatus = "intent"
	StatusWorking  OrderStatus = "working"
	StatusFilled   OrderStatus = "filled"
	StatusRejected OrderStatus = "rejected"
	StatusCanceled OrderStatus = "canceled"
	StatusAmended  OrderStatus = "amended"
)

// statusRank orders the lifecycle; terminal statuses share a rank so a
// plan never hops between them.
func statusRank(s OrderStatus) int {
	switch s {
	case StatusIntent:
		return 0
	case StatusWorking:
		return 1
	case StatusFilled, StatusRejected, StatusCanceled, StatusAmended:
		return 2
	}
	return -1
}

// Terminal reports whether the status ends the lifecycle.
func (s OrderStatus) Terminal() bool { return statusRank(s) == 2 }

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic. Re-asserting the current status is allowed (idempotent
// updates); moving backwards or between terminal states is not.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	from, to := statusRank(s), statusRank(next)
	if from < 0 || to < 0 {
		return false
	}
	if s == next {
		return true
	}
	if from == 2 {
		return false
	}
	return to > from
}

// Fill is one execution against a plan's orders.
type Fill struct {
	EntryPrice float64 `json:"entry_price"`
	Qty        float64 `json:"qty"`
	PnL        float64 `json:"pnl"`
	Timestamp  float64 `json:"timestamp"`
}
