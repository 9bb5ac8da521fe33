package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a Review payload with the queue metadata described in
// spec.md §3. It is serialized to JSON before it ever touches the store,
// which treats it as an opaque blob.
type Envelope struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	RetryCount  int             `json:"retry_count"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
	TimedOutAt  *time.Time      `json:"timed_out_at,omitempty"`
}

// NewEnvelope wraps payload in a fresh envelope with retry_count=0.
func NewEnvelope(payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope payload: %w", err)
	}
	return &Envelope{
		ID:         uuid.New().String(),
		Payload:    raw,
		RetryCount: 0,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Marshal serializes the envelope to its wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// UnmarshalEnvelope deserializes the wire form back into an Envelope. A
// failure here is always a PayloadCorrupted condition to the caller.
func UnmarshalEnvelope(blob []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(blob, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadCorrupted, err)
	}
	return &e, nil
}

// UnmarshalPayload decodes the envelope's payload into dest.
func (e *Envelope) UnmarshalPayload(dest interface{}) error {
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadCorrupted, err)
	}
	return nil
}

// VisibilityRecord is the authoritative record that a claim is still
// alive, stored at key "<processing_queue>:<envelope_id>" with a TTL
// equal to the visibility timeout.
type VisibilityRecord struct {
	Envelope  *Envelope `json:"envelope"`
	WorkerID  string    `json:"worker_id"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Marshal serializes the visibility record to its wire form.
func (v *VisibilityRecord) Marshal() ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal visibility record: %w", err)
	}
	return data, nil
}

// UnmarshalVisibilityRecord deserializes the wire form of a visibility
// record. A failure here is always PayloadCorrupted.
func UnmarshalVisibilityRecord(blob []byte) (*VisibilityRecord, error) {
	var v VisibilityRecord
	if err := json.Unmarshal(blob, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadCorrupted, err)
	}
	return &v, nil
}
