package trialrun

import (
	"context"
	"time"
)

// Status is the progress status reported by a run.
type Status string

// Run statuses. Only waiting and processing are ever observed in State;
// the terminal ones describe how a RunHandle finished.
const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Result is the outcome of a trial run.
type Result struct {
	ID             string
	Query          string // query text the run was produced from
	Executed       string // text actually executed after parameters and limits
	DataSourceID   string
	BytesProcessed int64
	RetrievedAt    time.Time
}

// RunOptions is passed to Entity.ProduceRun on every run.
type RunOptions struct {
	// MaxAge allows reuse of a cached result younger than MaxAge.
	// Zero or negative always executes.
	MaxAge time.Duration
}

// Entity is the query-like object a trial run is produced from.
// Entities are compared by identity, so implementations should be pointers.
type Entity interface {
	ID() string
	Name() string
	QueryText() string
	HasResult() bool
	RequiresParameters() bool
	// ProduceRun starts a run and returns its handle. It must not block and
	// must not call back into the Coordinator.
	ProduceRun(opts RunOptions) RunHandle
	// AttachResult records the latest result on the entity. Like ProduceRun
	// it is called with the coordinator locked.
	AttachResult(latestDataID string, r *Result)
}

// RunHandle is an in-flight trial run.
type RunHandle interface {
	ID() string
	UpdatedAt() time.Time
	Status() Status
	// Cancel requests cancellation. The run may still succeed.
	Cancel()
	// Await blocks until the run resolves or ctx is done. onStatus receives
	// every intermediate status in order.
	Await(ctx context.Context, onStatus func(Status)) (*Result, error)
}

// Notifier delivers user-visible notifications.
type Notifier interface {
	CheckPermission() bool
	Notify(title, body string)
}

// State is an immutable snapshot of the coordinator.
type State struct {
	Result                 *Result
	IsRunning              bool
	HasLoadedInitialResult bool
	Status                 Status
	UpdatedAt              time.Time
	IsCancelling           bool
	// Cancel requests cancellation of the tracked run; nil when idle.
	Cancel func()
	Err    error
}

type nopNotifier struct{}

func (nopNotifier) CheckPermission() bool { return false }
func (nopNotifier) Notify(string, string) {}
