// Package exec turns trade plans into venue orders: policy admission,
// maker-first placement with a stop fallback, idempotent retries, and
// lifecycle bookkeeping in the order-state store and journal.
package exec

import (
	"context"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exchange/phemex"
)

// VenueOrder is the venue's acknowledgement of one order.
type VenueOrder struct {
	OrderID        string             `json:"order_id"`
	IdempotencyKey string             `json:"idempotency_key"`
	Symbol         string             `json:"symbol"`
	Side           domain.OrderSide   `json:"side"`
	Type           domain.OrderType   `json:"type"`
	Price          float64            `json:"price,omitempty"`
	StopPx         float64            `json:"stop_px,omitempty"`
	Quantity       float64            `json:"quantity"`
	Status         domain.OrderStatus `json:"status"`
	CreatedAt      float64            `json:"created_at"`
}

// Position is one open position as reported by the venue.
type Position struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Size         float64 `json:"size"`
	EntryPrice   float64 `json:"entry_price"`
	LiqPrice     float64 `json:"liq_price"`
	Leverage     float64 `json:"leverage"`
	UnrealisedPL float64 `json:"unrealised_pl"`
}

// Venue places and manages orders. Place must dedupe on the idempotency
// key: replaying a key returns the original order instead of creating a
// second one.
type Venue interface {
	Place(ctx context.Context, intent domain.OrderIntent, idempotencyKey string) (*VenueOrder, error)
	Amend(ctx context.Context, orderID string, changes map[string]interface{}) (*VenueOrder, error)
	Cancel(ctx context.Context, symbol, orderID string) (*VenueOrder, error)
	FetchOrder(ctx context.Context, symbol, orderID string) (*VenueOrder, error)
	FetchPositions(ctx context.Context, symbol string) ([]Position, error)
}

// PhemexVenue drives the signed REST client. The idempotency key rides as
// clOrdID, which the venue dedupes server-side.
type PhemexVenue struct {
	client *phemex.Client
}

// NewPhemexVenue wraps a configured REST client.
func NewPhemexVenue(client *phemex.Client) *PhemexVenue {
	return &PhemexVenue{client: client}
}

func (v *PhemexVenue) Place(ctx context.Context, intent domain.OrderIntent, idempotencyKey string) (*VenueOrder, error) {
	record, err := v.client.PlaceOrder(ctx, phemex.OrderRequest{
		Symbol:      intent.Symbol,
		Side:        string(intent.Side),
		OrderType:   string(intent.Type),
		Price:       intent.Price,
		StopPx:      intent.StopPx,
		Quantity:    intent.Quantity,
		TimeInForce: intent.TimeInForce,
		PostOnly:    intent.PostOnly,
		ReduceOnly:  intent.ReduceOnly,
	}, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

func (v *PhemexVenue) Amend(ctx context.Context, orderID string, changes map[string]interface{}) (*VenueOrder, error) {
	record, err := v.client.AmendOrder(ctx, orderID, changes)
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

func (v *PhemexVenue) Cancel(ctx context.Context, symbol, orderID string) (*VenueOrder, error) {
	record, err := v.client.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

func (v *PhemexVenue) FetchOrder(ctx context.Context, symbol, orderID string) (*VenueOrder, error) {
	record, err := v.client.FetchOrder(ctx, symbol, orderID)
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

func (v *PhemexVenue) FetchPositions(ctx context.Context, symbol string) ([]Position, error) {
	rows, err := v.client.FetchPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, Position{
			Symbol:       row.Symbol,
			Side:         row.Side,
			Size:         row.Size,
			EntryPrice:   row.EntryPrice,
			LiqPrice:     row.LiqPrice,
			Leverage:     row.Leverage,
			UnrealisedPL: row.UnrealisedPL,
		})
	}
	return positions, nil
}

func fromRecord(record *phemex.OrderRecord) *VenueOrder {
	return &VenueOrder{
		OrderID:        record.OrderID,
		IdempotencyKey: record.ClOrdID,
		Symbol:         record.Symbol,
		Side:           domain.OrderSide(record.Side),
		Type:           domain.OrderType(record.OrderType),
		Price:          record.Price,
		StopPx:         record.StopPx,
		Quantity:       record.Quantity,
		Status:         venueStatus(record.Status),
		CreatedAt:      float64(record.CreatedAt) / 1e9,
	}
}

// venueStatus folds the venue's order states onto the lifecycle statuses.
func venueStatus(raw string) domain.OrderStatus {
	switch raw {
	case "Filled":
		return domain.StatusFilled
	case "Canceled", "Deactivated":
		return domain.StatusCanceled
	case "Rejected":
		return domain.StatusRejected
	default:
		return domain.StatusWorking
	}
}
