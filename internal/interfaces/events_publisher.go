package interfaces

import "context"

// EventPublisher publishes an event to a stream, keyed for partitioning.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
