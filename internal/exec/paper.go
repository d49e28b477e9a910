package exec

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// PaperVenue simulates order placement in memory. It honors the venue
// idempotency contract: replaying a key returns the order it originally
// created, so the created-order count stays at one per key.
type PaperVenue struct {
	mu      sync.Mutex
	orders  map[string]*VenueOrder
	byKey   map[string]string
	created int
	nowFn   func() time.Time
}

// NewPaperVenue returns an empty paper venue.
func NewPaperVenue() *PaperVenue {
	return &PaperVenue{
		orders: map[string]*VenueOrder{},
		byKey:  map[string]string{},
		nowFn:  time.Now,
	}
}

// WithClock swaps the wall clock, for deterministic timestamps.
func (v *PaperVenue) WithClock(nowFn func() time.Time) *PaperVenue {
	v.nowFn = nowFn
	return v
}

// Place creates an order, or returns the existing one when the
// idempotency key has been seen before. Market orders fill immediately;
// resting types stay working.
func (v *PaperVenue) Place(ctx context.Context, intent domain.OrderIntent, idempotencyKey string) (*VenueOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if id, ok := v.byKey[idempotencyKey]; ok {
		return copyOrder(v.orders[id]), nil
	}

	status := domain.StatusWorking
	if intent.Type == domain.OrderMarket {
		status = domain.StatusFilled
	}

	order := &VenueOrder{
		OrderID:        uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		Type:           intent.Type,
		Price:          intent.Price,
		StopPx:         intent.StopPx,
		Quantity:       intent.Quantity,
		Status:         status,
		CreatedAt:      float64(v.nowFn().UnixNano()) / 1e9,
	}
	v.orders[order.OrderID] = order
	v.byKey[idempotencyKey] = order.OrderID
	v.created++
	return copyOrder(order), nil
}

// Amend updates price, stopPx or quantity on a known order.
func (v *PaperVenue) Amend(ctx context.Context, orderID string, changes map[string]interface{}) (*VenueOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	order, ok := v.orders[orderID]
	if !ok {
		return nil, domain.Ef(domain.KindExecutor, "unknown order %s", orderID)
	}
	if px, ok := asFloat(changes["price"]); ok {
		order.Price = px
	}
	if px, ok := asFloat(changes["stopPx"]); ok {
		order.StopPx = px
	}
	if qty, ok := asFloat(changes["quantity"]); ok {
		order.Quantity = qty
	}
	return copyOrder(order), nil
}

// Cancel moves a known order to canceled.
func (v *PaperVenue) Cancel(ctx context.Context, symbol, orderID string) (*VenueOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	order, ok := v.orders[orderID]
	if !ok {
		return nil, domain.Ef(domain.KindExecutor, "unknown order %s", orderID)
	}
	order.Status = domain.StatusCanceled
	return copyOrder(order), nil
}

// FetchOrder returns a known order by id.
func (v *PaperVenue) FetchOrder(ctx context.Context, symbol, orderID string) (*VenueOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	order, ok := v.orders[orderID]
	if !ok {
		return nil, domain.Ef(domain.KindExecutor, "unknown order %s", orderID)
	}
	return copyOrder(order), nil
}

// FetchPositions reports no positions; the paper venue does not model
// holdings.
func (v *PaperVenue) FetchPositions(ctx context.Context, symbol string) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []Position{}, nil
}

// CreatedOrders counts venue-facing order creations, excluding replays.
func (v *PaperVenue) CreatedOrders() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.created
}

func copyOrder(order *VenueOrder) *VenueOrder {
	dup := *order
	return &dup
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
