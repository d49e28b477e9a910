package exec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
)

func registryOrder() *VenueOrder {
	return &VenueOrder{
		OrderID:        "o-1",
		IdempotencyKey: "snp_v1_p1_limit",
		Symbol:         "BTC/USDT",
		Side:           domain.Buy,
		Type:           domain.OrderLimit,
		Price:          43250.5,
		Quantity:       0.25,
		Status:         domain.StatusWorking,
	}
}

func TestIdempotencyRegistry_Reserve_SetsOnce(t *testing.T) {
	db, mock := redismock.NewClientMock()
	registry := NewIdempotencyRegistry(db, "snipetrade:idem:", time.Hour)

	order := registryOrder()
	payload, err := json.Marshal(order)
	require.NoError(t, err)

	mock.ExpectSetNX("snipetrade:idem:snp_v1_p1_limit", payload, time.Hour).SetVal(true)
	require.NoError(t, registry.Reserve(context.Background(), "snp_v1_p1_limit", order))

	// Losing the race is silent: the first writer's record stands.
	mock.ExpectSetNX("snipetrade:idem:snp_v1_p1_limit", payload, time.Hour).SetVal(false)
	require.NoError(t, registry.Reserve(context.Background(), "snp_v1_p1_limit", order))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRegistry_Lookup_HitAndMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	registry := NewIdempotencyRegistry(db, "", 0)

	order := registryOrder()
	payload, err := json.Marshal(order)
	require.NoError(t, err)

	mock.ExpectGet("snipetrade:idem:snp_v1_p1_limit").SetVal(string(payload))
	got, ok, err := registry.Lookup(context.Background(), "snp_v1_p1_limit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.OrderID, got.OrderID)
	assert.Equal(t, order.Status, got.Status)

	mock.ExpectGet("snipetrade:idem:snp_v1_p1_fallback").RedisNil()
	_, ok, err = registry.Lookup(context.Background(), "snp_v1_p1_fallback")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRegistry_Lookup_CorruptRecord(t *testing.T) {
	db, mock := redismock.NewClientMock()
	registry := NewIdempotencyRegistry(db, "", 0)

	mock.ExpectGet("snipetrade:idem:bad").SetVal("not-json")
	_, _, err := registry.Lookup(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, domain.KindDataShape, domain.KindOf(err))
}
