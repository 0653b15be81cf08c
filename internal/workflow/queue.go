package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/proposalbot/proposal-assistant/internal/state"
)

// Queue is the transport carrying workflow events from publishers to
// the worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// eventPayload is the wire form of one workflow event.
type eventPayload struct {
	ID      string          `json:"id"`
	Key     state.ThreadKey `json:"key"`
	Event   state.Event     `json:"event"`
	Updates *state.Updates  `json:"updates,omitempty"`
}

func encodePayload(payload eventPayload) (eventPayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eventPayload{}, "", fmt.Errorf("workflow: encode payload: %w", err)
	}
	return payload, string(body), nil
}
