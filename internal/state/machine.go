package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/proposalbot/proposal-assistant/internal/observability/metrics"
	"github.com/proposalbot/proposal-assistant/pkg/logging"
)

// transitionKey pairs the current state with an incoming event.
type transitionKey struct {
	state State
	event Event
}

// transitions is the closed table of legal workflow moves. Any pair not
// listed is rejected without mutating stored state. Deck generation is
// reachable only from WAITING_FOR_APPROVAL via APPROVED or
// UPDATED_ANALYSIS_PROVIDED; the approval gate lives in this table, not
// in caller convention.
var transitions = map[transitionKey]State{
	{StateIdle, EventAnalysisRequested}:                     StateGeneratingAnalysis,
	{StateIdle, EventInputsMissing}:                         StateWaitingForInputs,
	{StateWaitingForInputs, EventAnalysisRequested}:         StateGeneratingAnalysis,
	{StateGeneratingAnalysis, EventAnalysisCreated}:         StateWaitingForApproval,
	{StateGeneratingAnalysis, EventFailed}:                  StateError,
	{StateWaitingForApproval, EventApproved}:                StateGeneratingDeck,
	{StateWaitingForApproval, EventUpdatedAnalysisProvided}: StateGeneratingDeck,
	{StateWaitingForApproval, EventRejected}:                StateDone,
	{StateWaitingForApproval, EventRegenerateRequested}:     StateGeneratingAnalysis,
	{StateGeneratingDeck, EventDeckCreated}:                 StateDone,
	{StateGeneratingDeck, EventFailed}:                      StateError,
	{StateError, EventAnalysisRequested}:                    StateGeneratingAnalysis,
}

// InvalidTransitionError reports an event that is not legal for the
// thread's current state. The stored record is left untouched.
type InvalidTransitionError struct {
	State State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("state: cannot apply %s in state %s", e.Event, e.State)
}

// Machine enforces the legal ordering of the two-step proposal workflow.
// All mutation of thread records goes through Transition; concurrent
// calls for the same key are serialized with a per-key mutex.
type Machine struct {
	storage Storage
	metrics *metrics.WorkflowMetrics
	logger  *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine builds a Machine over the given storage backend. Metrics
// may be nil.
func NewMachine(storage Storage, m *metrics.WorkflowMetrics, logger *logging.Logger) *Machine {
	if storage == nil {
		panic("state: storage cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{
		storage: storage,
		metrics: m,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CanTransition reports whether event is legal in the given state. Pure
// table lookup, no side effects.
func (m *Machine) CanTransition(current State, event Event) bool {
	_, ok := transitions[transitionKey{current, event}]
	return ok
}

// GetOrCreate returns the existing record for key or creates one in
// IDLE. It never fires a transition.
func (m *Machine) GetOrCreate(ctx context.Context, key ThreadKey, userID string) (*ThreadState, error) {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return m.loadOrCreate(ctx, key, userID)
}

// Transition validates (current state, event), applies the new state,
// merges field updates, persists, and returns the updated record. An
// unknown key starts from a fresh IDLE record, matching the lost-state
// recovery policy. Illegal events return *InvalidTransitionError and
// leave persisted state unchanged.
func (m *Machine) Transition(ctx context.Context, key ThreadKey, event Event, up *Updates) (*ThreadState, error) {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	userID := ""
	if up != nil {
		userID = up.UserID
	}
	ts, err := m.loadOrCreate(ctx, key, userID)
	if err != nil {
		return nil, err
	}

	next, ok := transitions[transitionKey{ts.Current, event}]
	if !ok {
		m.metrics.ObserveInvalidTransition(string(ts.Current), string(event))
		m.logger.Warn("rejected transition",
			"thread", key.String(),
			"state", string(ts.Current),
			"event", string(event),
		)
		return nil, &InvalidTransitionError{State: ts.Current, Event: event}
	}

	started := time.Now()
	prior := ts.Current
	ts.Previous = prior
	ts.Current = next
	ts.UpdatedAt = time.Now().UTC()

	// Leaving ERROR on a successful transition resets the retry counter.
	if prior == StateError && next != StateError {
		ts.RetryCount = 0
	}

	applyUpdates(ts, up)

	if err := m.storage.Save(ctx, ts); err != nil {
		return nil, fmt.Errorf("state: persist transition: %w", err)
	}

	m.metrics.ObserveTransition(string(prior), string(event), string(next), time.Since(started).Seconds())
	m.logger.Info("transition applied",
		"thread", key.String(),
		"from", string(prior),
		"event", string(event),
		"to", string(next),
	)
	return ts, nil
}

func (m *Machine) loadOrCreate(ctx context.Context, key ThreadKey, userID string) (*ThreadState, error) {
	ts, err := m.storage.Load(ctx, key)
	if err == nil {
		return ts, nil
	}
	if !errors.Is(err, ErrThreadNotFound) {
		return nil, fmt.Errorf("state: load thread %s: %w", key, err)
	}

	ts = NewThreadState(key, userID)
	if err := m.storage.Save(ctx, ts); err != nil {
		return nil, fmt.Errorf("state: create thread %s: %w", key, err)
	}
	m.metrics.ObserveThreadCreated()
	m.logger.Info("thread state created", "thread", key.String())
	return ts, nil
}

func (m *Machine) keyLock(key ThreadKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key.String()]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key.String()] = lock
	}
	return lock
}

// applyUpdates merges caller-supplied fields. Analysis doc references
// version instead of overwriting: replacing a different existing doc id
// records the old one in PriorAnalysisDocIDs and bumps the version.
func applyUpdates(ts *ThreadState, up *Updates) {
	if up == nil {
		return
	}

	if up.UserID != "" {
		ts.UserID = up.UserID
	}
	if up.ChannelType != "" {
		ts.ChannelType = up.ChannelType
	}
	if up.UserEmail != "" {
		ts.UserEmail = up.UserEmail
	}
	if up.ClientName != "" {
		ts.ClientName = up.ClientName
	}

	if up.AnalysisDocID != "" {
		if ts.AnalysisDocID != "" && ts.AnalysisDocID != up.AnalysisDocID {
			ts.PriorAnalysisDocIDs = append(ts.PriorAnalysisDocIDs, ts.AnalysisDocID)
			ts.AnalysisVersion++
		}
		ts.AnalysisDocID = up.AnalysisDocID
	}
	if up.AnalysisDocLink != "" {
		ts.AnalysisDocLink = up.AnalysisDocLink
	}
	if up.DeckID != "" {
		ts.DeckID = up.DeckID
	}
	if up.DeckLink != "" {
		ts.DeckLink = up.DeckLink
	}

	if up.TranscriptFileIDs != nil {
		ts.TranscriptFileIDs = up.TranscriptFileIDs
	}
	if up.ReferenceFileIDs != nil {
		ts.ReferenceFileIDs = up.ReferenceFileIDs
	}
	if up.InputURLs != nil {
		ts.InputURLs = up.InputURLs
	}
	if up.MissingInfo != nil {
		ts.MissingInfo = up.MissingInfo
	}

	if up.ErrorType != "" {
		ts.ErrorType = up.ErrorType
	}
	if up.ErrorMessage != "" {
		ts.ErrorMessage = up.ErrorMessage
	}
	if up.RetryCount != nil {
		ts.RetryCount = *up.RetryCount
	}

	if len(up.Extra) > 0 {
		if ts.Extra == nil {
			ts.Extra = make(map[string]string, len(up.Extra))
		}
		for k, v := range up.Extra {
			ts.Extra[k] = v
		}
	}
}
