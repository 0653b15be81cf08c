package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/proposalbot/proposal-assistant/internal/state"
	"github.com/proposalbot/proposal-assistant/internal/status"
	"github.com/proposalbot/proposal-assistant/pkg/logging"
)

// Worker consumes workflow events from the queue and applies them to the
// state machine. A single consumer goroutine keeps event processing
// strictly sequential; the machine's per-key locks make this robust if
// the worker count ever grows.
type Worker struct {
	machine *state.Machine
	queue   Queue
	tracker *status.Tracker
	logger  *logging.Logger

	receiveWaitSecs  int
	receiveBatchSize int

	wg sync.WaitGroup
}

// Option customizes Worker construction.
type Option func(*Worker)

// WithReceiveWait sets the long-poll wait in seconds.
func WithReceiveWait(seconds int) Option {
	return func(w *Worker) { w.receiveWaitSecs = seconds }
}

// WithReceiveBatchSize sets how many messages one receive may return.
func WithReceiveBatchSize(size int) Option {
	return func(w *Worker) { w.receiveBatchSize = size }
}

// WithStatusTracker records request counters on the given tracker.
func WithStatusTracker(tracker *status.Tracker) Option {
	return func(w *Worker) { w.tracker = tracker }
}

// NewWorker builds a worker over the machine and queue.
func NewWorker(machine *state.Machine, queue Queue, logger *logging.Logger, opts ...Option) *Worker {
	if machine == nil {
		panic("workflow: machine cannot be nil")
	}
	if queue == nil {
		panic("workflow: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		machine:          machine,
		queue:            queue,
		logger:           logger,
		receiveWaitSecs:  10,
		receiveBatchSize: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the consumer loop. It returns immediately; call Stop
// (after cancelling ctx) to wait for drain.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop blocks until the consumer loop has exited.
func (w *Worker) Stop() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.queue.Receive(ctx, w.receiveBatchSize, w.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("receive failed", "error", err)
			continue
		}
		for _, msg := range messages {
			w.process(ctx, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg queueMessage) {
	w.tracker.RecordRequest()

	var payload eventPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("discarding malformed payload", "message_id", msg.ID, "error", err)
		w.deleteMessage(ctx, msg)
		return
	}

	_, err := w.machine.Transition(ctx, payload.Key, payload.Event, payload.Updates)
	if err != nil {
		var invalid *state.InvalidTransitionError
		if errors.As(err, &invalid) {
			// Illegal events are the caller's problem to surface; the
			// record is untouched and the message is consumed.
			w.logger.Warn("event rejected",
				"payload_id", payload.ID,
				"thread", payload.Key.String(),
				"state", string(invalid.State),
				"event", string(invalid.Event),
			)
			w.deleteMessage(ctx, msg)
			return
		}
		// Storage faults leave the message on the queue for redelivery.
		w.logger.Error("transition failed",
			"payload_id", payload.ID,
			"thread", payload.Key.String(),
			"event", string(payload.Event),
			"error", err,
		)
		return
	}

	w.deleteMessage(ctx, msg)
}

func (w *Worker) deleteMessage(ctx context.Context, msg queueMessage) {
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("delete message failed", "message_id", msg.ID, "error", err)
	}
}
