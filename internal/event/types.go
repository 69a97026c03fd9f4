package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier such as "trialrun.started".
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeRunStarted      = "trialrun.started"
	TypeRunStatus       = "trialrun.status"
	TypeRunCompleted    = "trialrun.completed"
	TypeRunFailed       = "trialrun.failed"
	TypeRunSkipped      = "trialrun.skipped"
	TypeCancelRequested = "trialrun.cancel_requested"
	TypeStaleOutcome    = "trialrun.stale"
	TypeStateChanged    = "trialrun.state"
	TypeCatalogReloaded = "workspace.reloaded"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted when the coordinator starts tracking a new run.
type RunStartedEvent struct {
	baseEvent
	EntityID   string
	RunID      string
	Generation uint64
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(entityID, runID string, generation uint64) RunStartedEvent {
	return RunStartedEvent{
		baseEvent:  newBaseEvent(TypeRunStarted),
		EntityID:   entityID,
		RunID:      runID,
		Generation: generation,
	}
}

// RunStatusEvent is emitted for each intermediate status of the tracked run.
type RunStatusEvent struct {
	baseEvent
	EntityID string
	RunID    string
	Status   string
}

// NewRunStatusEvent creates a RunStatusEvent.
func NewRunStatusEvent(entityID, runID, status string) RunStatusEvent {
	return RunStatusEvent{
		baseEvent: newBaseEvent(TypeRunStatus),
		EntityID:  entityID,
		RunID:     runID,
		Status:    status,
	}
}

// RunCompletedEvent is emitted when the tracked run resolves successfully.
type RunCompletedEvent struct {
	baseEvent
	EntityID string
	RunID    string
	ResultID string
	Attached bool // result was attached to the entity
	Duration time.Duration
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(entityID, runID, resultID string, attached bool, duration time.Duration) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent: newBaseEvent(TypeRunCompleted),
		EntityID:  entityID,
		RunID:     runID,
		ResultID:  resultID,
		Attached:  attached,
		Duration:  duration,
	}
}

// RunFailedEvent is emitted when the tracked run resolves with an error.
type RunFailedEvent struct {
	baseEvent
	EntityID string
	RunID    string
	Reason   string
	Canceled bool
	Duration time.Duration
}

// NewRunFailedEvent creates a RunFailedEvent.
func NewRunFailedEvent(entityID, runID, reason string, canceled bool, duration time.Duration) RunFailedEvent {
	return RunFailedEvent{
		baseEvent: newBaseEvent(TypeRunFailed),
		EntityID:  entityID,
		RunID:     runID,
		Reason:    reason,
		Canceled:  canceled,
		Duration:  duration,
	}
}

// RunSkippedEvent is emitted when the auto-trigger policy decides not to run.
type RunSkippedEvent struct {
	baseEvent
	EntityID string
}

// NewRunSkippedEvent creates a RunSkippedEvent.
func NewRunSkippedEvent(entityID string) RunSkippedEvent {
	return RunSkippedEvent{
		baseEvent: newBaseEvent(TypeRunSkipped),
		EntityID:  entityID,
	}
}

// CancelRequestedEvent is emitted when the consumer asks to cancel the tracked run.
type CancelRequestedEvent struct {
	baseEvent
	EntityID string
	RunID    string
}

// NewCancelRequestedEvent creates a CancelRequestedEvent.
func NewCancelRequestedEvent(entityID, runID string) CancelRequestedEvent {
	return CancelRequestedEvent{
		baseEvent: newBaseEvent(TypeCancelRequested),
		EntityID:  entityID,
		RunID:     runID,
	}
}

// StaleOutcomeEvent is emitted when a superseded run (or one finishing after
// teardown) delivers its outcome and the outcome is dropped.
type StaleOutcomeEvent struct {
	baseEvent
	RunID      string
	Generation uint64
	Current    uint64
}

// NewStaleOutcomeEvent creates a StaleOutcomeEvent.
func NewStaleOutcomeEvent(runID string, generation, current uint64) StaleOutcomeEvent {
	return StaleOutcomeEvent{
		baseEvent:  newBaseEvent(TypeStaleOutcome),
		RunID:      runID,
		Generation: generation,
		Current:    current,
	}
}

// StateChangedEvent carries a flattened copy of the coordinator state after
// every replacement.
type StateChangedEvent struct {
	baseEvent
	EntityID               string
	IsRunning              bool
	IsCancelling           bool
	HasLoadedInitialResult bool
	Status                 string
	ResultID               string
	Error                  string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(entityID string, running, cancelling, loaded bool, status, resultID, errMsg string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent:              newBaseEvent(TypeStateChanged),
		EntityID:               entityID,
		IsRunning:              running,
		IsCancelling:           cancelling,
		HasLoadedInitialResult: loaded,
		Status:                 status,
		ResultID:               resultID,
		Error:                  errMsg,
	}
}

// -----------------------------------------------------------------------------
// Workspace Events
// -----------------------------------------------------------------------------

// CatalogReloadedEvent is emitted after the workspace file is re-read.
type CatalogReloadedEvent struct {
	baseEvent
	Path    string
	Queries int
	Err     error
}

// NewCatalogReloadedEvent creates a CatalogReloadedEvent.
func NewCatalogReloadedEvent(path string, queries int, err error) CatalogReloadedEvent {
	return CatalogReloadedEvent{
		baseEvent: newBaseEvent(TypeCatalogReloaded),
		Path:      path,
		Queries:   queries,
		Err:       err,
	}
}
