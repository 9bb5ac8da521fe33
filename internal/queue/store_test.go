package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	}))

	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})

	return mr, store
}

func TestRedisStore_ListOps(t *testing.T) {
	ctx := context.Background()

	t.Run("PushFront then ListRange preserves insertion at head", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)

		require.NoError(t, store.PushFront(ctx, "q", []byte("a")))
		require.NoError(t, store.PushFront(ctx, "q", []byte("b")))

		items, err := store.ListRange(ctx, "q", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("b"), []byte("a")}, items)
	})

	t.Run("ListLen reports depth", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.PushFront(ctx, "q", []byte("a")))
		n, err := store.ListLen(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("ListRemoveValue removes a matching entry", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.PushFront(ctx, "q", []byte("a")))
		require.NoError(t, store.ListRemoveValue(ctx, "q", 1, []byte("a")))
		n, err := store.ListLen(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("ListRemoveValue on absent value is a no-op", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		err := store.ListRemoveValue(ctx, "q", 1, []byte("missing"))
		assert.NoError(t, err)
	})
}

func TestRedisStore_AtomicMove(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the oldest element between lists", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.PushFront(ctx, "from", []byte("x")))

		moved, err := store.AtomicMove(ctx, "from", "to", time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), moved)

		n, err := store.ListLen(ctx, "to")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("returns nil on empty source after timeout", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		moved, err := store.AtomicMove(ctx, "empty", "to", 50*time.Millisecond)
		require.NoError(t, err)
		assert.Nil(t, moved)
	})
}

func TestRedisStore_KeyTTLOps(t *testing.T) {
	ctx := context.Background()

	t.Run("SetWithTTL then Get round-trips the value", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.SetWithTTL(ctx, "k", []byte("v"), time.Minute))

		val, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), val)
	})

	t.Run("Get on absent key returns nil, nil", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		val, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("Delete removes the key", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.SetWithTTL(ctx, "k", []byte("v"), time.Minute))
		require.NoError(t, store.Delete(ctx, "k"))

		val, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("ScanKeys finds keys by prefix", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.SetWithTTL(ctx, "processing:abc", []byte("1"), time.Minute))
		require.NoError(t, store.SetWithTTL(ctx, "processing:def", []byte("2"), time.Minute))
		require.NoError(t, store.SetWithTTL(ctx, "other:ghi", []byte("3"), time.Minute))

		keys, err := store.ScanKeys(ctx, "processing:")
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})
}

func TestRedisStore_ZSetOps(t *testing.T) {
	ctx := context.Background()

	t.Run("ZSetAdd then ZSetRangeByScore returns due members", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.ZSetAdd(ctx, "retry", []byte("a"), 100))
		require.NoError(t, store.ZSetAdd(ctx, "retry", []byte("b"), 200))

		due, err := store.ZSetRangeByScore(ctx, "retry", 0, 150)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("a")}, due)
	})

	t.Run("ZSetRemove and ZSetCard", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		require.NoError(t, store.ZSetAdd(ctx, "retry", []byte("a"), 100))
		require.NoError(t, store.ZSetRemove(ctx, "retry", []byte("a")))

		n, err := store.ZSetCard(ctx, "retry")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestRedisStore_Ping(t *testing.T) {
	t.Run("succeeds against a live server", func(t *testing.T) {
		_, store := setupMiniRedisStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("fails against a closed server", func(t *testing.T) {
		mr, store := setupMiniRedisStore(t)
		mr.Close()
		assert.Error(t, store.Ping(context.Background()))
	})
}
