package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proposalbot/proposal-assistant/pkg/logging"
)

// memStorage is an in-memory Storage for machine tests.
type memStorage struct {
	mu       sync.Mutex
	records  map[string]*ThreadState
	saves    int
	failSave error
}

func newMemStorage() *memStorage {
	return &memStorage{records: make(map[string]*ThreadState)}
}

func (s *memStorage) Load(_ context.Context, key ThreadKey) (*ThreadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.records[key.String()]
	if !ok {
		return nil, ErrThreadNotFound
	}
	clone := *ts
	return &clone, nil
}

func (s *memStorage) Save(_ context.Context, ts *ThreadState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.saves++
	clone := *ts
	s.records[ts.Key().String()] = &clone
	return nil
}

func (s *memStorage) Delete(_ context.Context, key ThreadKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key.String())
	return nil
}

func newTestMachine(t *testing.T) (*Machine, *memStorage) {
	t.Helper()
	storage := newMemStorage()
	return NewMachine(storage, nil, logging.Default()), storage
}

func testKey(thread string) ThreadKey {
	return ThreadKey{ChannelID: "C123", ThreadTS: thread}
}

func TestTransitionTableCoversLegalMoves(t *testing.T) {
	tests := []struct {
		from  State
		event Event
		to    State
	}{
		{StateIdle, EventAnalysisRequested, StateGeneratingAnalysis},
		{StateIdle, EventInputsMissing, StateWaitingForInputs},
		{StateWaitingForInputs, EventAnalysisRequested, StateGeneratingAnalysis},
		{StateGeneratingAnalysis, EventAnalysisCreated, StateWaitingForApproval},
		{StateGeneratingAnalysis, EventFailed, StateError},
		{StateWaitingForApproval, EventApproved, StateGeneratingDeck},
		{StateWaitingForApproval, EventUpdatedAnalysisProvided, StateGeneratingDeck},
		{StateWaitingForApproval, EventRejected, StateDone},
		{StateWaitingForApproval, EventRegenerateRequested, StateGeneratingAnalysis},
		{StateGeneratingDeck, EventDeckCreated, StateDone},
		{StateGeneratingDeck, EventFailed, StateError},
		{StateError, EventAnalysisRequested, StateGeneratingAnalysis},
	}

	m, _ := newTestMachine(t)
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.event), func(t *testing.T) {
			assert.True(t, m.CanTransition(tt.from, tt.event))
			assert.Equal(t, tt.to, transitions[transitionKey{tt.from, tt.event}])
		})
	}
	assert.Len(t, transitions, len(tests), "table must hold exactly the declared moves")
}

func TestIllegalPairsRejectedWithoutMutation(t *testing.T) {
	allStates := []State{
		StateIdle, StateWaitingForInputs, StateGeneratingAnalysis,
		StateWaitingForApproval, StateGeneratingDeck, StateDone, StateError,
	}
	allEvents := []Event{
		EventAnalysisRequested, EventInputsMissing, EventAnalysisCreated,
		EventApproved, EventRejected, EventUpdatedAnalysisProvided,
		EventDeckCreated, EventFailed, EventRegenerateRequested,
	}

	m, storage := newTestMachine(t)
	ctx := context.Background()

	for _, from := range allStates {
		for _, event := range allEvents {
			if m.CanTransition(from, event) {
				continue
			}
			key := testKey("t-" + string(from) + "-" + string(event))
			seed := NewThreadState(key, "U1")
			seed.Current = from
			require.NoError(t, storage.Save(ctx, seed))

			_, err := m.Transition(ctx, key, event, nil)

			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, from, invalid.State)
			assert.Equal(t, event, invalid.Event)

			stored, loadErr := storage.Load(ctx, key)
			require.NoError(t, loadErr)
			assert.Equal(t, from, stored.Current, "rejected event must not mutate state")
		}
	}
}

func TestApprovalGate(t *testing.T) {
	// No (state, event) pair outside WAITING_FOR_APPROVAL may reach
	// GENERATING_DECK.
	for key, to := range transitions {
		if to != StateGeneratingDeck {
			continue
		}
		assert.Equal(t, StateWaitingForApproval, key.state)
		assert.Contains(t, []Event{EventApproved, EventUpdatedAnalysisProvided}, key.event)
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m, storage := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000000.000100")

	first, err := m.GetOrCreate(ctx, key, "U42")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, first.Current)
	assert.Equal(t, "U42", first.UserID)
	assert.Equal(t, 1, first.AnalysisVersion)

	second, err := m.GetOrCreate(ctx, key, "U42")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Len(t, storage.records, 1, "second call must not create a second record")
}

func TestScenarioAnalysisFlow(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000001.000200")

	ts, err := m.Transition(ctx, key, EventAnalysisRequested, &Updates{UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, StateGeneratingAnalysis, ts.Current)
	assert.Equal(t, StateIdle, ts.Previous)

	ts, err = m.Transition(ctx, key, EventAnalysisCreated, &Updates{AnalysisDocID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, StateWaitingForApproval, ts.Current)
	assert.Equal(t, "doc-1", ts.AnalysisDocID)
}

func TestScenarioRejectionLeavesDeckUnset(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000002.000300")

	_, err := m.Transition(ctx, key, EventAnalysisRequested, nil)
	require.NoError(t, err)
	_, err = m.Transition(ctx, key, EventAnalysisCreated, &Updates{AnalysisDocID: "doc-1"})
	require.NoError(t, err)

	ts, err := m.Transition(ctx, key, EventRejected, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, ts.Current)
	assert.Empty(t, ts.DeckID)
}

func TestScenarioApprovedDeckFlow(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000003.000400")

	_, err := m.Transition(ctx, key, EventAnalysisRequested, nil)
	require.NoError(t, err)
	_, err = m.Transition(ctx, key, EventAnalysisCreated, &Updates{AnalysisDocID: "doc-1"})
	require.NoError(t, err)

	ts, err := m.Transition(ctx, key, EventApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, StateGeneratingDeck, ts.Current)

	ts, err = m.Transition(ctx, key, EventDeckCreated, &Updates{DeckID: "deck-1"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, ts.Current)
	assert.Equal(t, "deck-1", ts.DeckID)
}

func TestScenarioIllegalDeckCreatedFromIdle(t *testing.T) {
	m, storage := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000004.000500")

	_, err := m.GetOrCreate(ctx, key, "U1")
	require.NoError(t, err)

	_, err = m.Transition(ctx, key, EventDeckCreated, &Updates{DeckID: "deck-1"})
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	stored, err := storage.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, stored.Current)
	assert.Empty(t, stored.DeckID)
}

func TestScenarioFailureAndRecovery(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000005.000600")

	_, err := m.Transition(ctx, key, EventAnalysisRequested, nil)
	require.NoError(t, err)

	retries := 3
	ts, err := m.Transition(ctx, key, EventFailed, &Updates{
		ErrorType:    "LLM_ERROR",
		ErrorMessage: "model timed out",
		RetryCount:   &retries,
	})
	require.NoError(t, err)
	assert.Equal(t, StateError, ts.Current)
	assert.Equal(t, "LLM_ERROR", ts.ErrorType)
	assert.Equal(t, 3, ts.RetryCount)

	// Only ANALYSIS_REQUESTED recovers from ERROR.
	for _, event := range []Event{EventApproved, EventDeckCreated, EventRegenerateRequested, EventRejected} {
		_, err := m.Transition(ctx, key, event, nil)
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid, "event %s must be rejected in ERROR", event)
	}

	ts, err = m.Transition(ctx, key, EventAnalysisRequested, nil)
	require.NoError(t, err)
	assert.Equal(t, StateGeneratingAnalysis, ts.Current)
	assert.Equal(t, 0, ts.RetryCount, "retry counter resets on recovery")
}

func TestRegenerationKeepsPriorAnalysisReference(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000006.000700")

	_, err := m.Transition(ctx, key, EventAnalysisRequested, nil)
	require.NoError(t, err)
	_, err = m.Transition(ctx, key, EventAnalysisCreated, &Updates{AnalysisDocID: "doc-1"})
	require.NoError(t, err)

	ts, err := m.Transition(ctx, key, EventRegenerateRequested, nil)
	require.NoError(t, err)
	assert.Equal(t, StateGeneratingAnalysis, ts.Current)
	assert.Equal(t, "doc-1", ts.AnalysisDocID, "regeneration must not clear the stored reference")

	ts, err = m.Transition(ctx, key, EventAnalysisCreated, &Updates{AnalysisDocID: "doc-2"})
	require.NoError(t, err)
	assert.Equal(t, "doc-2", ts.AnalysisDocID)
	assert.Equal(t, []string{"doc-1"}, ts.PriorAnalysisDocIDs)
	assert.Equal(t, 2, ts.AnalysisVersion)
}

func TestTransitionMergesExtraFieldsVerbatim(t *testing.T) {
	m, _ := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000007.000800")

	ts, err := m.Transition(ctx, key, EventAnalysisRequested, &Updates{
		ClientName:        "acme",
		TranscriptFileIDs: []string{"F1", "F2"},
		InputURLs:         []string{"https://acme.example"},
		Extra:             map[string]string{"crm_opportunity": "OPP-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", ts.ClientName)
	assert.Equal(t, []string{"F1", "F2"}, ts.TranscriptFileIDs)
	assert.Equal(t, "OPP-9", ts.Extra["crm_opportunity"])
}

func TestTransitionPropagatesStorageFailure(t *testing.T) {
	storage := newMemStorage()
	m := NewMachine(storage, nil, logging.Default())
	ctx := context.Background()
	key := testKey("1700000008.000900")

	_, err := m.GetOrCreate(ctx, key, "U1")
	require.NoError(t, err)

	storage.failSave = errors.New("disk full")
	_, err = m.Transition(ctx, key, EventAnalysisRequested, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}

func TestConcurrentTransitionsSameKeyStaySerialized(t *testing.T) {
	m, storage := newTestMachine(t)
	ctx := context.Background()
	key := testKey("1700000009.001000")

	_, err := m.GetOrCreate(ctx, key, "U1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	successes := make(chan State, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts, err := m.Transition(ctx, key, EventAnalysisRequested, nil)
			if err == nil {
				successes <- ts.Current
			}
		}()
	}
	wg.Wait()
	close(successes)

	// Only the first attempt is legal from IDLE; the rest see
	// GENERATING_ANALYSIS and are rejected.
	count := 0
	for st := range successes {
		assert.Equal(t, StateGeneratingAnalysis, st)
		count++
	}
	assert.Equal(t, 1, count)

	stored, err := storage.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StateGeneratingAnalysis, stored.Current)
}
