package exec

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// IdempotencyRegistry shares placement records across processes via
// Redis. SETNX gives first-writer-wins: whoever reserves a key first
// owns the venue order; everyone else reads that record back.
type IdempotencyRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewIdempotencyRegistry wraps a v9 client. Keys live under prefix
// ("snipetrade:idem:" when empty) and expire after ttl (24h when zero).
func NewIdempotencyRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *IdempotencyRegistry {
	if prefix == "" {
		prefix = "snipetrade:idem:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRegistry{client: client, prefix: prefix, ttl: ttl}
}

// Reserve stores the order under the key unless another process already
// did. Losing the race is not an error.
func (r *IdempotencyRegistry) Reserve(ctx context.Context, key string, order *VenueOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return domain.WrapErr(domain.KindExecutor, "encode idempotency record", err)
	}
	if err := r.client.SetNX(ctx, r.prefix+key, payload, r.ttl).Err(); err != nil {
		return domain.WrapErr(domain.KindTransient, "reserve idempotency key", err)
	}
	return nil
}

// Lookup returns the order recorded under the key, if any.
func (r *IdempotencyRegistry) Lookup(ctx context.Context, key string) (*VenueOrder, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, domain.WrapErr(domain.KindTransient, "lookup idempotency key", err)
	}

	var order VenueOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, false, domain.WrapErr(domain.KindDataShape, "decode idempotency record", err)
	}
	return &order, true, nil
}
