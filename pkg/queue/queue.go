package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService is the producer-side surface of the queue, what API
// handlers enqueue through.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Job processes messages of one type.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// QueueConfig tunes the worker pool and retry policy.
type QueueConfig struct {
	Workers    int
	QueueSize  int // soft cap on pending messages, 0 means unbounded
	RetryLimit int
	RetryDelay time.Duration
}

// Message is the stored envelope. Payload stays raw JSON until a job binds
// it to a concrete type.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ParsePayload binds a queued payload to T. Payloads enqueued in process
// arrive as T or *T; payloads read back from storage arrive as raw JSON or
// generically decoded maps and slices.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		return decodeInto[T](p)
	case []byte:
		return decodeInto[T](p)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		return decodeInto[T](data)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}

func decodeInto[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &v, nil
}
