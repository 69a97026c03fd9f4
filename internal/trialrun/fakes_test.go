package trialrun

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type outcome struct {
	result *Result
	err    error
}

// fakeRun is a RunHandle driven by the test through channels.
type fakeRun struct {
	id       string
	statuses chan Status
	outcomes chan outcome
	cancels  atomic.Int32

	mu      sync.Mutex
	status  Status
	updated time.Time
}

func newFakeRun(id string) *fakeRun {
	return &fakeRun{
		id:       id,
		statuses: make(chan Status),
		outcomes: make(chan outcome),
		status:   StatusWaiting,
		updated:  time.Unix(1000, 0),
	}
}

func (r *fakeRun) ID() string { return r.id }

func (r *fakeRun) UpdatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updated
}

func (r *fakeRun) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *fakeRun) Cancel() { r.cancels.Add(1) }

func (r *fakeRun) Await(ctx context.Context, onStatus func(Status)) (*Result, error) {
	for {
		select {
		case s := <-r.statuses:
			r.mu.Lock()
			r.status = s
			r.updated = r.updated.Add(time.Second)
			r.mu.Unlock()
			onStatus(s)
		case o := <-r.outcomes:
			return o.result, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// sendStatus blocks until Await has picked up s.
func (r *fakeRun) sendStatus(t *testing.T, s Status) {
	t.Helper()
	select {
	case r.statuses <- s:
	case <-time.After(2 * time.Second):
		t.Fatalf("run %s: status %q not consumed", r.id, s)
	}
}

// finish blocks until Await has returned the outcome.
func (r *fakeRun) finish(t *testing.T, result *Result, err error) {
	t.Helper()
	select {
	case r.outcomes <- outcome{result: result, err: err}:
	case <-time.After(2 * time.Second):
		t.Fatalf("run %s: outcome not consumed", r.id)
	}
}

// fakeEntity records every run it produces and every attachment.
type fakeEntity struct {
	id          string
	name        string
	text        string
	hasResult   bool
	needsParams bool

	mu         sync.Mutex
	runs       []*fakeRun
	options    []RunOptions
	attachedID string
	attached   *Result
}

func newFakeEntity(id, text string) *fakeEntity {
	return &fakeEntity{id: id, name: "Query " + id, text: text}
}

func (e *fakeEntity) ID() string               { return e.id }
func (e *fakeEntity) Name() string             { return e.name }
func (e *fakeEntity) QueryText() string        { return e.text }
func (e *fakeEntity) HasResult() bool          { return e.hasResult }
func (e *fakeEntity) RequiresParameters() bool { return e.needsParams }

func (e *fakeEntity) ProduceRun(opts RunOptions) RunHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	run := newFakeRun(fmt.Sprintf("%s-run-%d", e.id, len(e.runs)+1))
	e.runs = append(e.runs, run)
	e.options = append(e.options, opts)
	return run
}

func (e *fakeEntity) AttachResult(latestDataID string, r *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attachedID = latestDataID
	e.attached = r
}

func (e *fakeEntity) run(t *testing.T, i int) *fakeRun {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= len(e.runs) {
		t.Fatalf("entity %s produced %d runs, want index %d", e.id, len(e.runs), i)
	}
	return e.runs[i]
}

func (e *fakeEntity) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

func (e *fakeEntity) attachment() (string, *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attachedID, e.attached
}

// waitForState polls until pred holds or fails the test.
func waitForState(t *testing.T, c *Coordinator, what string, pred func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := c.State()
		if pred(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state %+v", what, s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
