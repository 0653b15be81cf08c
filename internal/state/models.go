package state

import (
	"fmt"
	"time"
)

// State is the workflow position of a single conversation thread.
type State string

const (
	StateIdle               State = "IDLE"
	StateWaitingForInputs   State = "WAITING_FOR_INPUTS"
	StateGeneratingAnalysis State = "GENERATING_ANALYSIS"
	StateWaitingForApproval State = "WAITING_FOR_APPROVAL"
	StateGeneratingDeck     State = "GENERATING_DECK"
	StateDone               State = "DONE"
	StateError              State = "ERROR"
)

// Event triggers a state transition.
type Event string

const (
	EventAnalysisRequested       Event = "ANALYSIS_REQUESTED"
	EventInputsMissing           Event = "INPUTS_MISSING"
	EventAnalysisCreated         Event = "ANALYSIS_CREATED"
	EventApproved                Event = "APPROVED"
	EventRejected                Event = "REJECTED"
	EventUpdatedAnalysisProvided Event = "UPDATED_ANALYSIS_PROVIDED"
	EventDeckCreated             Event = "DECK_CREATED"
	EventFailed                  Event = "FAILED"
	EventRegenerateRequested     Event = "REGENERATE_REQUESTED"
)

// ThreadKey identifies one tracked conversation thread.
type ThreadKey struct {
	ChannelID string `json:"channel_id"`
	ThreadTS  string `json:"thread_ts"`
}

func (k ThreadKey) String() string {
	return fmt.Sprintf("%s_%s", k.ChannelID, k.ThreadTS)
}

// ThreadState tracks the state and accumulated data for a single thread
// conversation. Identity fields are immutable once created; everything
// else is mutated only through Machine.Transition.
type ThreadState struct {
	ChannelID   string `json:"channel_id"`
	ThreadTS    string `json:"thread_ts"`
	UserID      string `json:"user_id"`
	ChannelType string `json:"channel_type,omitempty"`
	UserEmail   string `json:"user_email,omitempty"`

	ClientName string `json:"client_name,omitempty"`

	// Document references. Analysis references accumulate: regeneration
	// appends the superseded doc id to PriorAnalysisDocIDs instead of
	// overwriting it.
	AnalysisDocID       string   `json:"analysis_doc_id,omitempty"`
	AnalysisDocLink     string   `json:"analysis_doc_link,omitempty"`
	AnalysisVersion     int      `json:"analysis_version"`
	PriorAnalysisDocIDs []string `json:"prior_analysis_doc_ids,omitempty"`
	DeckID              string   `json:"deck_id,omitempty"`
	DeckLink            string   `json:"deck_link,omitempty"`

	Current  State `json:"state"`
	Previous State `json:"previous_state,omitempty"`

	TranscriptFileIDs []string `json:"transcript_file_ids,omitempty"`
	ReferenceFileIDs  []string `json:"reference_file_ids,omitempty"`
	InputURLs         []string `json:"input_urls,omitempty"`
	MissingInfo       []string `json:"missing_info,omitempty"`

	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	// Extra holds caller-supplied fields the machine does not interpret.
	Extra map[string]string `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the thread's identity.
func (s *ThreadState) Key() ThreadKey {
	return ThreadKey{ChannelID: s.ChannelID, ThreadTS: s.ThreadTS}
}

// NewThreadState creates a fresh idle record for the given thread.
func NewThreadState(key ThreadKey, userID string) *ThreadState {
	now := time.Now().UTC()
	return &ThreadState{
		ChannelID:       key.ChannelID,
		ThreadTS:        key.ThreadTS,
		UserID:          userID,
		Current:         StateIdle,
		AnalysisVersion: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Updates carries caller-supplied fields merged into the record during a
// transition. Zero values leave the stored field untouched; slices
// replace wholesale when non-nil.
type Updates struct {
	UserID      string
	ChannelType string
	UserEmail   string
	ClientName  string

	AnalysisDocID   string
	AnalysisDocLink string
	DeckID          string
	DeckLink        string

	TranscriptFileIDs []string
	ReferenceFileIDs  []string
	InputURLs         []string
	MissingInfo       []string

	ErrorType    string
	ErrorMessage string
	RetryCount   *int

	Extra map[string]string
}
