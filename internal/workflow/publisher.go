package workflow

import (
	"context"

	"github.com/proposalbot/proposal-assistant/internal/state"
	"github.com/proposalbot/proposal-assistant/pkg/logging"
)

// Publisher enqueues workflow events for the worker. The Slack adapter
// translates user actions into events and hands them here; it never
// touches the state machine directly.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher wraps a queue client.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("workflow: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish enqueues one event for the given thread and returns the
// payload id for correlation.
func (p *Publisher) Publish(ctx context.Context, key state.ThreadKey, event state.Event, up *state.Updates) (string, error) {
	payload, body, err := encodePayload(eventPayload{Key: key, Event: event, Updates: up})
	if err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return "", err
	}
	p.logger.Debug("event published",
		"payload_id", payload.ID,
		"thread", key.String(),
		"event", string(event),
	)
	return payload.ID, nil
}
