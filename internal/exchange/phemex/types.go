package phemex

import "encoding/json"

// envelope is the common Phemex response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type productsData struct {
	Products []product `json:"products"`
}

type product struct {
	Symbol        string  `json:"symbol"`
	DisplaySymbol string  `json:"displaySymbol"`
	Status        string  `json:"status"`
	TickSize      float64 `json:"tickSize"`
	QtyStepSize   float64 `json:"qtyStepSize"`
	MinOrderValue float64 `json:"minOrderValue"`
	BaseCurrency  string  `json:"baseCurrency"`
	QuoteCurrency string  `json:"quoteCurrency"`
}

type klineData struct {
	Rows [][]float64 `json:"rows"`
}

type tickerResult struct {
	Symbol    string  `json:"symbol"`
	BidPx     float64 `json:"bidRp"`
	AskPx     float64 `json:"askRp"`
	LastPrice float64 `json:"lastRp"`
	ClosePx   float64 `json:"closeRp"`
	Turnover  float64 `json:"turnoverRv"`
	Volume    float64 `json:"volumeRq"`
}

type tickerEnvelope struct {
	Error  *string      `json:"error"`
	Result tickerResult `json:"result"`
}

type tickersEnvelope struct {
	Error  *string        `json:"error"`
	Result []tickerResult `json:"result"`
}

// OrderRecord is the venue's view of one order.
type OrderRecord struct {
	OrderID        string  `json:"orderID"`
	ClOrdID        string  `json:"clOrdID"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	OrderType      string  `json:"ordType"`
	Price          float64 `json:"priceRp"`
	StopPx         float64 `json:"stopPxRp,omitempty"`
	Quantity       float64 `json:"orderQtyRq"`
	Status         string  `json:"ordStatus"`
	FilledQuantity float64 `json:"cumQtyRq"`
	AvgPrice       float64 `json:"avgPriceRp"`
	CreatedAt      int64   `json:"actionTimeNs"`
}

// Position is one open position row.
type Position struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Size         float64 `json:"sizeRq"`
	EntryPrice   float64 `json:"avgEntryPriceRp"`
	LiqPrice     float64 `json:"liquidationPriceRp"`
	Leverage     float64 `json:"leverageRr"`
	UnrealisedPL float64 `json:"unRealisedPnlRv"`
}
