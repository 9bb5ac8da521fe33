package queue

import "errors"

// Error taxonomy per spec.md §7. Store errors, undecodable blobs and
// analyzer failures wrap one of these four sentinels so the outer loop
// (worker, maintenance, CLI) can branch on kind with errors.Is rather
// than on string matching. Other errors (JSON marshalling, context
// cancellation, record-store writes) are returned without a sentinel.
var (
	// ErrStoreUnavailable marks a connectivity or protocol error against
	// the queue store. Always retryable; never fatal to a running loop.
	ErrStoreUnavailable = errors.New("queue: store unavailable")

	// ErrPayloadCorrupted marks a blob in the store that failed to
	// deserialize. The offending entry should be logged and dropped,
	// never retried as-is.
	ErrPayloadCorrupted = errors.New("queue: payload corrupted")

	// ErrPipelineTransient marks a processing failure the worker will
	// retry, either via its inner retry or the queue's own backoff.
	ErrPipelineTransient = errors.New("queue: pipeline transient failure")

	// ErrPipelinePermanent marks a processing failure surfaced after
	// MAX_RETRIES is exhausted.
	ErrPipelinePermanent = errors.New("queue: pipeline permanent failure")
)

// QueueError carries a taxonomy kind plus context, following the
// teacher's fmt.Errorf("...: %w", err) wrapping idiom throughout the
// core rather than ad-hoc string errors.
type QueueError struct {
	Kind error
	Op   string
	Err  error
}

func (e *QueueError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *QueueError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is lets errors.Is(err, ErrStoreUnavailable) match a *QueueError whose
// Kind is ErrStoreUnavailable, without requiring callers to unwrap twice.
func (e *QueueError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &QueueError{Kind: ErrStoreUnavailable, Op: op, Err: err}
}
