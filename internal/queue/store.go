package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the thin capability surface over the KV store that every
// other queue component depends on, per spec.md §4.1. It is the sole
// place in the core that speaks the store's wire protocol; every other
// operation is expressed in terms of these primitives.
type Store interface {
	// PushFront pushes blob onto the head of list.
	PushFront(ctx context.Context, list string, blob []byte) error
	// AtomicMove atomically pops the oldest element of fromList and
	// appends it to toList, returning it. Blocks up to timeout; returns
	// (nil, nil) on timeout with nothing to move.
	AtomicMove(ctx context.Context, fromList, toList string, timeout time.Duration) ([]byte, error)
	// ListLen returns the number of elements in list.
	ListLen(ctx context.Context, list string) (int64, error)
	// ListRange returns elements [start, stop] of list (inclusive, Redis
	// LRANGE semantics; -1 means "to the end").
	ListRange(ctx context.Context, list string, start, stop int64) ([][]byte, error)
	// ListRemoveValue removes up to count occurrences of blob from list.
	ListRemoveValue(ctx context.Context, list string, count int64, blob []byte) error

	// SetWithTTL stores blob at key with an expiry of ttl.
	SetWithTTL(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	// Get retrieves the blob at key. Returns (nil, nil) if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// ScanKeys returns all keys matching prefix+"*".
	ScanKeys(ctx context.Context, prefix string) ([]string, error)

	// ZSetAdd adds blob to the sorted set at key with the given score.
	ZSetAdd(ctx context.Context, key string, blob []byte, score float64) error
	// ZSetRangeByScore returns members of the sorted set at key whose
	// score is in [lo, hi].
	ZSetRangeByScore(ctx context.Context, key string, lo, hi float64) ([][]byte, error)
	// ZSetRemove removes blob from the sorted set at key.
	ZSetRemove(ctx context.Context, key string, blob []byte) error
	// ZSetCard returns the cardinality of the sorted set at key.
	ZSetCard(ctx context.Context, key string) (int64, error)

	// Ping is a liveness probe against the store.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store connection.
	Close() error
}

// RedisStore is the production Store implementation, grounded on the
// teacher's internal/cache/redis.go client shape and on the Bananas
// reference queue's pipeline/BRPopLPush usage, over go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

// RedisStoreConfig configures the underlying go-redis client.
type RedisStoreConfig struct {
	Host     string
	Port     string
	DB       int
	Password string
	PoolSize int
	Timeout  time.Duration
}

// NewRedisStore builds a RedisStore from cfg. It does not verify
// connectivity; callers should Ping after construction if they want a
// fail-fast startup check.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DB:           cfg.DB,
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return &RedisStore{client: client}
}

// NewRedisStoreFromClient wraps an already-constructed go-redis client,
// used in tests to point a RedisStore at a miniredis instance.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PushFront(ctx context.Context, list string, blob []byte) error {
	if err := s.client.LPush(ctx, list, blob).Err(); err != nil {
		return wrapStoreErr("PushFront", err)
	}
	return nil
}

func (s *RedisStore) AtomicMove(ctx context.Context, fromList, toList string, timeout time.Duration) ([]byte, error) {
	result, err := s.client.BRPopLPush(ctx, fromList, toList, timeout).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrapStoreErr("AtomicMove", err)
	}
	return result, nil
}

func (s *RedisStore) ListLen(ctx context.Context, list string) (int64, error) {
	n, err := s.client.LLen(ctx, list).Result()
	if err != nil {
		return 0, wrapStoreErr("ListLen", err)
	}
	return n, nil
}

func (s *RedisStore) ListRange(ctx context.Context, list string, start, stop int64) ([][]byte, error) {
	items, err := s.client.LRange(ctx, list, start, stop).Result()
	if err != nil {
		return nil, wrapStoreErr("ListRange", err)
	}
	blobs := make([][]byte, len(items))
	for i, item := range items {
		blobs[i] = []byte(item)
	}
	return blobs, nil
}

func (s *RedisStore) ListRemoveValue(ctx context.Context, list string, count int64, blob []byte) error {
	if err := s.client.LRem(ctx, list, count, blob).Err(); err != nil {
		return wrapStoreErr("ListRemoveValue", err)
	}
	return nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, blob, ttl).Err(); err != nil {
		return wrapStoreErr("SetWithTTL", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("Get", err)
	}
	return result, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return wrapStoreErr("Delete", err)
	}
	return nil
}

func (s *RedisStore) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStoreErr("ScanKeys", err)
	}
	return keys, nil
}

func (s *RedisStore) ZSetAdd(ctx context.Context, key string, blob []byte, score float64) error {
	err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: blob}).Err()
	if err != nil {
		return wrapStoreErr("ZSetAdd", err)
	}
	return nil
}

func (s *RedisStore) ZSetRangeByScore(ctx context.Context, key string, lo, hi float64) ([][]byte, error) {
	items, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", lo),
		Max: fmt.Sprintf("%f", hi),
	}).Result()
	if err != nil {
		return nil, wrapStoreErr("ZSetRangeByScore", err)
	}
	blobs := make([][]byte, len(items))
	for i, item := range items {
		blobs[i] = []byte(item)
	}
	return blobs, nil
}

func (s *RedisStore) ZSetRemove(ctx context.Context, key string, blob []byte) error {
	if err := s.client.ZRem(ctx, key, blob).Err(); err != nil {
		return wrapStoreErr("ZSetRemove", err)
	}
	return nil
}

func (s *RedisStore) ZSetCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrapStoreErr("ZSetCard", err)
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapStoreErr("Ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
