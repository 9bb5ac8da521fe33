// Package queue implements the reliable at-least-once work queue of
// spec.md §4.1-§4.2: a thin Store adapter over Redis primitives, and
// the ReliableQueue state machine built on top of it (main, processing,
// retry, failed, plus per-claim visibility records).
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	retryBaseSeconds    = 60
	retryCeilingSeconds = 3600
)

// Names bundles the four logical queue names plus the derived retry
// sorted-set name and the blocking/visibility timeouts, per spec.md §6.
type Names struct {
	Main              string
	Processing        string
	Retry             string
	Failed            string
	VisibilityTimeout time.Duration
	MaxRetries        int
	BlockingTimeout   time.Duration
}

// ReliableQueue implements the Enqueue/Claim/Ack/Nack/PromoteRetries/
// ReapExpired/Stats/Clear contract of spec.md §4.2.
type ReliableQueue struct {
	store  Store
	names  Names
	log    *logrus.Entry
}

// New constructs a ReliableQueue over store using names.
func New(store Store, names Names, log *logrus.Logger) *ReliableQueue {
	if log == nil {
		log = logrus.New()
	}
	return &ReliableQueue{
		store: store,
		names: names,
		log:   log.WithField("component", "reliable_queue"),
	}
}

func (q *ReliableQueue) visibilityKey(envelopeID string) string {
	return fmt.Sprintf("%s:%s", q.names.Processing, envelopeID)
}

// Enqueue wraps payload in a fresh envelope and pushes it onto main.
// Idempotence is the caller's responsibility: enqueuing the same
// review_id twice produces two independent envelopes (spec.md §4.2).
func (q *ReliableQueue) Enqueue(ctx context.Context, payload interface{}) (*Envelope, error) {
	env, err := NewEnvelope(payload)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	blob, err := env.Marshal()
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	if err := q.store.PushFront(ctx, q.names.Main, blob); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	q.log.WithField("envelope_id", env.ID).Debug("enqueued")
	return env, nil
}

// Claim atomically moves the oldest envelope from main to processing
// and writes its visibility record. Returns (nil, nil) if main was
// empty within the blocking timeout.
func (q *ReliableQueue) Claim(ctx context.Context, workerID string) (*Envelope, error) {
	blob, err := q.store.AtomicMove(ctx, q.names.Main, q.names.Processing, q.names.BlockingTimeout)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if blob == nil {
		return nil, nil
	}

	env, err := UnmarshalEnvelope(blob)
	if err != nil {
		// Corrupted entry landed in processing; it cannot be claimed
		// sensibly. Remove it from processing and surface the error so
		// the caller can log and move on (spec.md §7 PayloadCorrupted).
		_ = q.store.ListRemoveValue(ctx, q.names.Processing, 1, blob)
		return nil, err
	}

	now := time.Now().UTC()
	vis := &VisibilityRecord{
		Envelope:  env,
		WorkerID:  workerID,
		StartedAt: now,
		ExpiresAt: now.Add(q.names.VisibilityTimeout),
	}
	visBlob, err := vis.Marshal()
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if err := q.store.SetWithTTL(ctx, q.visibilityKey(env.ID), visBlob, q.names.VisibilityTimeout); err != nil {
		// The envelope is already in processing; if this write fails the
		// entry is left without a visibility key and will be reclassified
		// by ReapExpired as timed out, per spec.md §4.2 Claim contract.
		return nil, fmt.Errorf("claim: %w", err)
	}

	q.log.WithFields(logrus.Fields{"envelope_id": env.ID, "worker_id": workerID}).Debug("claimed")
	return env, nil
}

// Ack acknowledges successful processing of envelopeID. The visibility
// key is deleted before the processing-list entry is removed so that a
// crash after ack-commit never resurrects a completed message (spec.md
// §4.2 Ack contract).
func (q *ReliableQueue) Ack(ctx context.Context, env *Envelope) error {
	if err := q.store.Delete(ctx, q.visibilityKey(env.ID)); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	blob, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if err := q.store.ListRemoveValue(ctx, q.names.Processing, 1, blob); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	q.log.WithField("envelope_id", env.ID).Debug("acked")
	return nil
}

// NackOutcome reports what Nack actually did with the envelope, so
// callers can tell a scheduled retry apart from a permanent,
// MAX_RETRIES-exhausted give-up (spec.md §7's PipelinePermanent case)
// without re-deriving it from env.RetryCount themselves.
type NackOutcome int

const (
	// NackAlreadyReaped means the claim's visibility record was gone
	// (ReapExpired already handled it); the envelope was left untouched.
	NackAlreadyReaped NackOutcome = iota
	// NackScheduledRetry means the envelope was moved to the retry
	// sorted set to run again after its backoff delay.
	NackScheduledRetry
	// NackDeadLettered means MAX_RETRIES was exhausted and the envelope
	// was moved to the failed queue.
	NackDeadLettered
)

// Nack negatively acknowledges env with reason. If the visibility
// record is already gone (the message was reaped by maintenance) it
// returns (NackAlreadyReaped, nil) — not an error — per the "exception
// for control flow" redesign note in spec.md §9.
func (q *ReliableQueue) Nack(ctx context.Context, env *Envelope, reason string) (NackOutcome, error) {
	visBlob, err := q.store.Get(ctx, q.visibilityKey(env.ID))
	if err != nil {
		return NackAlreadyReaped, fmt.Errorf("nack: %w", err)
	}
	if visBlob == nil {
		return NackAlreadyReaped, nil
	}

	oldBlob, err := env.Marshal()
	if err != nil {
		return NackAlreadyReaped, fmt.Errorf("nack: %w", err)
	}

	env.RetryCount++
	env.LastError = reason
	now := time.Now().UTC()
	env.FailedAt = &now

	if err := q.store.Delete(ctx, q.visibilityKey(env.ID)); err != nil {
		return NackAlreadyReaped, fmt.Errorf("nack: %w", err)
	}
	if err := q.store.ListRemoveValue(ctx, q.names.Processing, 1, oldBlob); err != nil {
		return NackAlreadyReaped, fmt.Errorf("nack: %w", err)
	}

	newBlob, err := env.Marshal()
	if err != nil {
		return NackAlreadyReaped, fmt.Errorf("nack: %w", err)
	}

	if env.RetryCount < q.names.MaxRetries {
		// backoffDelay is 0-indexed by retry attempt number: the first
		// nack (RetryCount==1 after increment) gets the base delay, per
		// the worked example in spec.md §8 (R3: first nack due now+60s).
		delay := backoffDelay(env.RetryCount - 1)
		due := float64(now.Add(delay).Unix())
		if err := q.store.ZSetAdd(ctx, q.names.Retry, newBlob, due); err != nil {
			return NackAlreadyReaped, fmt.Errorf("nack: %w", err)
		}
		q.log.WithFields(logrus.Fields{
			"envelope_id": env.ID, "retry_count": env.RetryCount, "delay": delay,
		}).Warn("nacked, scheduled for retry")
		return NackScheduledRetry, nil
	}

	if err := q.store.PushFront(ctx, q.names.Failed, newBlob); err != nil {
		return NackAlreadyReaped, fmt.Errorf("nack: %w", err)
	}
	q.log.WithFields(logrus.Fields{
		"envelope_id": env.ID, "retry_count": env.RetryCount, "error": reason,
	}).Error("nacked, retries exhausted, dead-lettered")
	return NackDeadLettered, nil
}

// backoffDelay computes the exponential backoff min(60 * 2^n, 3600)
// seconds, where n is the number of retries before the current one:
// Nack passes retry_count-1 (the count after increment, minus one), so
// the first retry waits 60s, the second 120s, and so on.
func backoffDelay(retryCount int) time.Duration {
	seconds := retryBaseSeconds
	for i := 0; i < retryCount; i++ {
		seconds *= 2
		if seconds >= retryCeilingSeconds {
			seconds = retryCeilingSeconds
			break
		}
	}
	if seconds > retryCeilingSeconds {
		seconds = retryCeilingSeconds
	}
	return time.Duration(seconds) * time.Second
}

// PromoteRetries moves every due envelope from the retry sorted set
// back onto main. Non-atomic per envelope; a crash between the push and
// the ZSet removal produces a tolerated duplicate (spec.md §4.2).
func (q *ReliableQueue) PromoteRetries(ctx context.Context) (int, error) {
	now := float64(time.Now().UTC().Unix())
	due, err := q.store.ZSetRangeByScore(ctx, q.names.Retry, 0, now)
	if err != nil {
		return 0, fmt.Errorf("promote retries: %w", err)
	}

	promoted := 0
	for _, blob := range due {
		if err := q.store.PushFront(ctx, q.names.Main, blob); err != nil {
			return promoted, fmt.Errorf("promote retries: %w", err)
		}
		if err := q.store.ZSetRemove(ctx, q.names.Retry, blob); err != nil {
			return promoted, fmt.Errorf("promote retries: %w", err)
		}
		promoted++
	}
	if promoted > 0 {
		q.log.WithField("count", promoted).Info("promoted retries")
	}
	return promoted, nil
}

// ReapExpired walks every entry of the processing list, looks up its
// "<processing>:<envelope_id>" visibility key, and reclaims any envelope
// whose claim has expired or whose visibility key is absent (or
// undecodable). Visibility keys with no matching processing-list entry
// are not examined; they disappear when their TTL runs out.
func (q *ReliableQueue) ReapExpired(ctx context.Context) (int, error) {
	entries, err := q.store.ListRange(ctx, q.names.Processing, 0, -1)
	if err != nil {
		return 0, fmt.Errorf("reap expired: %w", err)
	}

	reaped := 0
	now := time.Now().UTC()
	for _, blob := range entries {
		env, err := UnmarshalEnvelope(blob)
		if err != nil {
			q.log.WithError(err).Warn("dropping corrupted processing entry")
			_ = q.store.ListRemoveValue(ctx, q.names.Processing, 1, blob)
			continue
		}

		visBlob, err := q.store.Get(ctx, q.visibilityKey(env.ID))
		if err != nil {
			return reaped, fmt.Errorf("reap expired: %w", err)
		}

		expired := visBlob == nil
		if !expired {
			vis, err := UnmarshalVisibilityRecord(visBlob)
			if err != nil {
				q.log.WithError(err).Warn("dropping corrupted visibility record")
				expired = true
			} else if now.After(vis.ExpiresAt) {
				expired = true
			}
		}
		if !expired {
			continue
		}

		env.RetryCount++
		env.LastError = "Processing timeout"
		timedOutAt := now
		env.TimedOutAt = &timedOutAt

		_ = q.store.Delete(ctx, q.visibilityKey(env.ID))
		if err := q.store.ListRemoveValue(ctx, q.names.Processing, 1, blob); err != nil {
			return reaped, fmt.Errorf("reap expired: %w", err)
		}

		newBlob, err := env.Marshal()
		if err != nil {
			return reaped, fmt.Errorf("reap expired: %w", err)
		}

		if env.RetryCount < q.names.MaxRetries {
			if err := q.store.PushFront(ctx, q.names.Main, newBlob); err != nil {
				return reaped, fmt.Errorf("reap expired: %w", err)
			}
			q.log.WithFields(logrus.Fields{"envelope_id": env.ID, "retry_count": env.RetryCount}).Warn("reaped expired claim, requeued")
		} else {
			if err := q.store.PushFront(ctx, q.names.Failed, newBlob); err != nil {
				return reaped, fmt.Errorf("reap expired: %w", err)
			}
			q.log.WithFields(logrus.Fields{"envelope_id": env.ID, "retry_count": env.RetryCount}).Error("reaped expired claim, dead-lettered")
		}
		reaped++
	}
	return reaped, nil
}

// Stats is the cheap count query consumed by the maintenance loop.
type Stats struct {
	Main               int64
	Processing         int64
	Retry              int64
	Failed             int64
	LiveVisibilityKeys int64
}

// Stats reports the current depth of every logical queue plus the
// number of live visibility keys.
func (q *ReliableQueue) Stats(ctx context.Context) (Stats, error) {
	main, err := q.store.ListLen(ctx, q.names.Main)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	processing, err := q.store.ListLen(ctx, q.names.Processing)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	retry, err := q.store.ZSetCard(ctx, q.names.Retry)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	failed, err := q.store.ListLen(ctx, q.names.Failed)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	visKeys, err := q.store.ScanKeys(ctx, q.names.Processing+":")
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return Stats{
		Main:               main,
		Processing:         processing,
		Retry:              retry,
		Failed:             failed,
		LiveVisibilityKeys: int64(len(visKeys)),
	}, nil
}

// Clear deletes all four queues plus every visibility key. Administrative
// only; neither the queue nor the operator CLI's clear-queue command asks
// for a confirmation token (YES_DELETE_IT gates only clear-database).
func (q *ReliableQueue) Clear(ctx context.Context) error {
	visKeys, err := q.store.ScanKeys(ctx, q.names.Processing+":")
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	keys := append([]string{q.names.Main, q.names.Processing, q.names.Retry, q.names.Failed}, visKeys...)
	if err := q.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	q.log.Warn("cleared all queues")
	return nil
}

// Ping proxies to the underlying store's liveness probe.
func (q *ReliableQueue) Ping(ctx context.Context) error {
	return q.store.Ping(ctx)
}
