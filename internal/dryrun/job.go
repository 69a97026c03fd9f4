package dryrun

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/trialrun/internal/trialrun"
)

// Job is a submitted trial run. It implements trialrun.RunHandle.
// A Job supports a single Await caller.
type Job struct {
	id          string
	queryID     string
	cancel      context.CancelFunc
	transitions chan trialrun.Status
	done        chan struct{}
	finishOnce  sync.Once

	mu        sync.Mutex
	status    trialrun.Status
	updatedAt time.Time
	result    *trialrun.Result
	err       error
}

var _ trialrun.RunHandle = (*Job)(nil)

func newJob(id, queryID string, cancel context.CancelFunc, now time.Time) *Job {
	return &Job{
		id:          id,
		queryID:     queryID,
		cancel:      cancel,
		transitions: make(chan trialrun.Status, 8),
		done:        make(chan struct{}),
		status:      trialrun.StatusWaiting,
		updatedAt:   now,
	}
}

func (j *Job) ID() string { return j.id }

// QueryID returns the ID of the query the job was submitted for.
func (j *Job) QueryID() string { return j.queryID }

func (j *Job) Status() trialrun.Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) UpdatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

// Cancel requests cancellation. A job that already finished is unaffected.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed once the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the job's outcome. It is only meaningful after Done.
func (j *Job) Result() (*trialrun.Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Await implements trialrun.RunHandle. Intermediate statuses are delivered
// in order, including any still buffered when the job finishes.
func (j *Job) Await(ctx context.Context, onStatus func(trialrun.Status)) (*trialrun.Result, error) {
	deliver := func(s trialrun.Status) {
		if onStatus != nil {
			onStatus(s)
		}
	}

	for {
		select {
		case s := <-j.transitions:
			deliver(s)
		case <-j.done:
			for {
				select {
				case s := <-j.transitions:
					deliver(s)
				default:
					return j.Result()
				}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// advance moves the job to an intermediate status.
func (j *Job) advance(s trialrun.Status, now time.Time) {
	j.mu.Lock()
	j.status = s
	j.updatedAt = now
	j.mu.Unlock()

	select {
	case j.transitions <- s:
	default:
	}
}

func (j *Job) finish(s trialrun.Status, result *trialrun.Result, err error, now time.Time) {
	j.finishOnce.Do(func() {
		j.mu.Lock()
		j.status = s
		j.updatedAt = now
		j.result = result
		j.err = err
		j.mu.Unlock()

		j.cancel()
		close(j.done)
	})
}
