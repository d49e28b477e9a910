package cache

import (
	"context"
	"time"
)

// Manager is the byte-oriented cache surface shared by the in-memory and
// Redis backends. Values are opaque serialized payloads; a miss is
// (nil, false, nil), never an error.
type Manager interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	Stats() ManagerStats
}

// ManagerStats summarizes cache effectiveness for ops surfaces.
type ManagerStats struct {
	Backend string  `json:"backend"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
}

// InMemory adapts the TTL map to the Manager interface. It is the default
// backend; Redis is opted into via configuration.
type InMemory struct {
	ttl *TTL[[]byte]
}

// NewInMemory creates an in-memory manager with the given default TTL.
func NewInMemory(defaultTTL time.Duration) (*InMemory, error) {
	ttl, err := NewTTL[[]byte](defaultTTL)
	if err != nil {
		return nil, err
	}
	return &InMemory{ttl: ttl}, nil
}

func (m *InMemory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok := m.ttl.Get(key)
	return value, ok, nil
}

func (m *InMemory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.ttl.SetTTL(key, value, ttl)
	return nil
}

func (m *InMemory) Delete(ctx context.Context, key string) error {
	m.ttl.Pop(key)
	return nil
}

func (m *InMemory) Ping(ctx context.Context) error { return nil }

func (m *InMemory) Close() error {
	m.ttl.Stop()
	return nil
}

func (m *InMemory) Stats() ManagerStats {
	hits, misses := m.ttl.Stats()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return ManagerStats{
		Backend: "memory",
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Entries: m.ttl.Len(),
	}
}
