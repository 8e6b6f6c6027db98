package events

import (
	"context"

	"github.com/keyfold/keyfold/internal/logging"
)

// LogChannel writes events to the structured logger. It is always registered
// so every lifecycle event leaves at least one trace.
type LogChannel struct {
	logger *logging.Logger
}

// NewLogChannel creates a log delivery channel.
func NewLogChannel(logger *logging.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Name returns the channel name.
func (c *LogChannel) Name() string {
	return "log"
}

// Supports reports true for every event type.
func (c *LogChannel) Supports(Type) bool {
	return true
}

// Send logs one event. Never returns an error.
func (c *LogChannel) Send(_ context.Context, event Event) error {
	switch event.Type {
	case TypeRotationFailed:
		c.logger.Warn("event %s: secret=%s project=%s actor=%s error=%v",
			event.Type, event.SecretKey, event.ProjectID, event.Actor, event.Error)
	default:
		c.logger.Info("event %s: secret=%s project=%s actor=%s",
			event.Type, event.SecretKey, event.ProjectID, event.Actor)
	}
	return nil
}
