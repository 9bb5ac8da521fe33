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

type testReview struct {
	ReviewID string `json:"review_id"`
	Text     string `json:"text"`
}

func setupTestQueue(t *testing.T, maxRetries int, visibilityTimeout time.Duration) (*miniredis.Miniredis, *ReliableQueue) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	names := Names{
		Main:              "main",
		Processing:        "processing",
		Retry:             "main:retry",
		Failed:            "failed",
		VisibilityTimeout: visibilityTimeout,
		MaxRetries:        maxRetries,
		BlockingTimeout:   100 * time.Millisecond,
	}
	q := New(store, names, nil)

	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})

	return mr, q
}

func TestReliableQueue_HappyPath(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 3, 300*time.Second)

	env, err := q.Enqueue(ctx, testReview{ReviewID: "R1", Text: "Good"})
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, env.ID, claimed.ID)

	var payload testReview
	require.NoError(t, claimed.UnmarshalPayload(&payload))
	assert.Equal(t, "R1", payload.ReviewID)

	require.NoError(t, q.Ack(ctx, claimed))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestReliableQueue_ClaimOnEmptyMainReturnsNilWithinTimeout(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 3, 300*time.Second)

	start := time.Now()
	env, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, env)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReliableQueue_QueueLevelRetryThenSuccess(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 3, 300*time.Second)

	_, err := q.Enqueue(ctx, testReview{ReviewID: "R3"})
	require.NoError(t, err)

	env, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, env)

	outcome, err := q.Nack(ctx, env, "transient failure")
	require.NoError(t, err)
	assert.Equal(t, NackScheduledRetry, outcome)
	assert.Equal(t, 1, env.RetryCount)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Retry)
	assert.Equal(t, int64(0), stats.Main)

	promoted, err := q.PromoteRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, promoted, "not yet due")

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Retry)

	// Simulate due time by re-adding with a due-in-the-past score.
	due, err := q.store.ZSetRangeByScore(ctx, q.names.Retry, 0, float64(time.Now().Add(time.Hour).Unix()))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, q.store.ZSetAdd(ctx, q.names.Retry, due[0], float64(time.Now().Add(-time.Second).Unix())))

	promoted, err = q.PromoteRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	reclaimed, err := q.Claim(ctx, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, 1, reclaimed.RetryCount)
	require.NoError(t, q.Ack(ctx, reclaimed))

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestReliableQueue_PromoteRetries_MovesDueEnvelopesToMain(t *testing.T) {
	ctx := context.Background()
	mr, q := setupTestQueue(t, 3, 300*time.Second)
	_ = mr

	env, err := NewEnvelope(testReview{ReviewID: "R3"})
	require.NoError(t, err)
	blob, err := env.Marshal()
	require.NoError(t, err)

	past := float64(time.Now().Add(-time.Second).Unix())
	require.NoError(t, q.store.ZSetAdd(ctx, q.names.Retry, blob, past))

	promoted, err := q.PromoteRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Main)
	assert.Equal(t, int64(0), stats.Retry)
}

func TestReliableQueue_DeadLetterAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 3, 300*time.Second)

	_, err := q.Enqueue(ctx, testReview{ReviewID: "R4"})
	require.NoError(t, err)

	var env *Envelope
	for i := 0; i < 3; i++ {
		env, err = q.Claim(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, env)

		outcome, err := q.Nack(ctx, env, "permanent failure")
		require.NoError(t, err)
		if env.RetryCount < 3 {
			assert.Equal(t, NackScheduledRetry, outcome)
		} else {
			assert.Equal(t, NackDeadLettered, outcome)
		}

		if env.RetryCount < 3 {
			promoted, err := q.PromoteRetries(ctx)
			require.NoError(t, err)
			if promoted == 0 {
				// Not due yet; force-promote for test determinism by
				// removing the retry entry and pushing it onto main.
				due, err := q.store.ZSetRangeByScore(ctx, q.names.Retry, 0, float64(time.Now().Add(time.Hour).Unix()))
				require.NoError(t, err)
				require.Len(t, due, 1)
				require.NoError(t, q.store.ZSetRemove(ctx, q.names.Retry, due[0]))
				require.NoError(t, q.store.PushFront(ctx, q.names.Main, due[0]))
			}
		}
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Main)
	assert.Equal(t, int64(0), stats.Retry)
	assert.Equal(t, 3, env.RetryCount)
}

func TestReliableQueue_NackAfterReapReturnsAlreadyReaped(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 3, 50*time.Millisecond)

	_, err := q.Enqueue(ctx, testReview{ReviewID: "R5"})
	require.NoError(t, err)

	env, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, env)

	time.Sleep(100 * time.Millisecond)

	reaped, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	outcome, err := q.Nack(ctx, env, "too late")
	require.NoError(t, err)
	assert.Equal(t, NackAlreadyReaped, outcome, "already reaped, nack is a no-op")
}

func TestReliableQueue_ReapExpired_RequeuesUnderMaxRetries(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 3, 50*time.Millisecond)

	_, err := q.Enqueue(ctx, testReview{ReviewID: "R5"})
	require.NoError(t, err)

	_, err = q.Claim(ctx, "worker-1")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	reaped, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Main)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(0), stats.LiveVisibilityKeys)

	reclaimed, err := q.Claim(ctx, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, 1, reclaimed.RetryCount)
	assert.Equal(t, "Processing timeout", reclaimed.LastError)
}

func TestReliableQueue_ReapExpired_DeadLettersAtMaxRetries(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 1, 50*time.Millisecond)

	_, err := q.Enqueue(ctx, testReview{ReviewID: "R5"})
	require.NoError(t, err)

	_, err = q.Claim(ctx, "worker-1")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	reaped, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Main)
}

func TestReliableQueue_Clear(t *testing.T) {
	ctx := context.Background()
	_, q := setupTestQueue(t, 3, 300*time.Second)

	_, err := q.Enqueue(ctx, testReview{ReviewID: "R6"})
	require.NoError(t, err)
	_, err = q.Claim(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, q.Clear(ctx))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	// Round-trip after Clear succeeds.
	env, err := q.Enqueue(ctx, testReview{ReviewID: "R7"})
	require.NoError(t, err)
	claimed, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, env.ID, claimed.ID)
	require.NoError(t, q.Ack(ctx, claimed))
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{3, 480 * time.Second},
		{10, 3600 * time.Second},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, backoffDelay(c.retryCount))
	}
}
