package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "snipetrade:"

// redisEnvelope wraps cached payloads with provenance so stale entries can
// be inspected from redis-cli during incidents.
type redisEnvelope struct {
	Data       json.RawMessage `json:"data"`
	CachedAt   time.Time       `json:"cached_at"`
	TTLSeconds int             `json:"ttl_seconds"`
}

// Redis is the shared-cache backend. Multiple scanner processes pointed at
// the same instance reuse each other's candle fetches.
type Redis struct {
	client *redis.Client
	hits   int64
	misses int64
}

// NewRedis connects to the instance at addr and verifies the connection.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client; used by tests with redismock.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			atomic.AddInt64(&r.misses, 1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var envelope redisEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		// Treat undecodable entries as misses so a format change never
		// wedges the scanner.
		atomic.AddInt64(&r.misses, 1)
		return nil, false, nil
	}

	atomic.AddInt64(&r.hits, 1)
	return envelope.Data, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	envelope := redisEnvelope{
		Data:       value,
		CachedAt:   time.Now().UTC(),
		TTLSeconds: int(ttl.Seconds()),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode cache envelope: %w", err)
	}

	if err := r.client.Set(ctx, redisKeyPrefix+key, string(payload), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Stats() ManagerStats {
	hits := atomic.LoadInt64(&r.hits)
	misses := atomic.LoadInt64(&r.misses)
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return ManagerStats{
		Backend: "redis",
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}
