package phemex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// OrderRequest is the payload for order placement. ClOrdID carries the
// idempotency key; the venue dedupes on it.
type OrderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	OrderType   string  `json:"ordType"`
	Price       float64 `json:"priceRp,omitempty"`
	StopPx      float64 `json:"stopPxRp,omitempty"`
	Quantity    float64 `json:"orderQtyRq"`
	TimeInForce string  `json:"timeInForce,omitempty"`
	PostOnly    bool    `json:"postOnly,omitempty"`
	ReduceOnly  bool    `json:"reduceOnly,omitempty"`
	ClOrdID     string  `json:"clOrdID"`
}

// PlaceOrder submits an order. The idempotency key rides as clOrdID.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest, idempotencyKey string) (*OrderRecord, error) {
	req.ClOrdID = idempotencyKey

	var env envelope
	if err := c.send(ctx, http.MethodPost, "/g-orders", req, &env); err != nil {
		return nil, err
	}
	return decodeOrder(env)
}

// AmendOrder replaces mutable fields on a working order.
func (c *Client) AmendOrder(ctx context.Context, orderID string, changes map[string]interface{}) (*OrderRecord, error) {
	payload := map[string]interface{}{"orderID": orderID}
	for k, v := range changes {
		payload[k] = v
	}

	var env envelope
	if err := c.send(ctx, http.MethodPut, "/g-orders/replace", payload, &env); err != nil {
		return nil, err
	}
	return decodeOrder(env)
}

// CancelOrder cancels a working order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (*OrderRecord, error) {
	payload := map[string]interface{}{"symbol": symbol, "orderID": orderID}

	var env envelope
	if err := c.send(ctx, http.MethodDelete, "/g-orders/cancel", payload, &env); err != nil {
		return nil, err
	}
	return decodeOrder(env)
}

// FetchOrder queries one order by id.
func (c *Client) FetchOrder(ctx context.Context, symbol, orderID string) (*OrderRecord, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("orderID", orderID)

	var env envelope
	if err := c.get(ctx, classPrivate, "/exchange/order", query, &env); err != nil {
		return nil, err
	}
	return decodeOrder(env)
}

// FetchPositions lists open positions, optionally filtered by symbol.
func (c *Client) FetchPositions(ctx context.Context, symbol string) ([]Position, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", symbol)
	}

	var env envelope
	if err := c.get(ctx, classPrivate, "/g-accounts/positions", query, &env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, domain.Ef(domain.KindFatal, "venue error %d: %s", env.Code, env.Msg)
	}

	var payload struct {
		Positions []Position `json:"positions"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, domain.WrapErr(domain.KindDataShape, "decode positions", err)
	}
	return payload.Positions, nil
}

func decodeOrder(env envelope) (*OrderRecord, error) {
	if env.Code != 0 {
		return nil, domain.Ef(domain.KindExecutor, "venue rejected order: %d %s", env.Code, env.Msg)
	}
	var record OrderRecord
	if err := json.Unmarshal(env.Data, &record); err != nil {
		return nil, domain.WrapErr(domain.KindDataShape, "decode order", err)
	}
	return &record, nil
}
