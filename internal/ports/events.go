package ports

import "context"

// EventPublisher delivers outbox payloads to the broker adapter.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}
