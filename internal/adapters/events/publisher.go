package events

import (
	"context"
	"log/slog"
)

// LoggingPublisher is the development broker stand-in. Deployments swap in a
// real broker adapter behind the same port; attribution events carry account
// ids as partition keys either way.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger.With(
		"module", "events.publisher",
		"layer", "adapter",
	)}
}

// Publish records the event instead of sending it. Payload contents stay out
// of the log line; conversion payloads carry visitor emails.
func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	p.logger.InfoContext(ctx, "event published",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
		"payload_bytes", len(payload),
	)
	return nil
}
