package domain

import (
	"context"
	"io"
	"time"
)

// Topic names for the change notifier. Every committed mutation publishes
// the full serialized entity to one of these.
const (
	// TopicPositions receives every position state change.
	TopicPositions = "positions"
)

// PositionTopic is the per-position topic carrying that position's exit
// events.
func PositionTopic(positionID string) string {
	return "position:" + positionID
}

// Signal is one message delivered to a subscriber. Topic is the concrete
// topic the message was published on, which matters for pattern
// subscriptions such as "position:*".
type Signal struct {
	Topic   string
	Payload []byte
}

// SignalBus is the change-notifier transport. Publish is best-effort: a
// failed publish is logged by the caller and never rolls back the mutation
// it announces.
type SignalBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan Signal, error)
}

// LockManager provides distributed locking, used to serialize mutations of
// the same position across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to blob storage, used to archive closed
// positions.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
