// Package internal contains integration tests that verify the workspace,
// runner, coordinator, metrics and notification packages work together.
package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/Iron-Ham/trialrun/internal/config"
	"github.com/Iron-Ham/trialrun/internal/dryrun"
	"github.com/Iron-Ham/trialrun/internal/event"
	"github.com/Iron-Ham/trialrun/internal/metrics"
	"github.com/Iron-Ham/trialrun/internal/notify"
	"github.com/Iron-Ham/trialrun/internal/trialrun"
	"github.com/Iron-Ham/trialrun/internal/workspace"
)

const integrationWorkspace = `
data_sources:
  - id: bq
    name: Warehouse
    tables:
      events: 1000
      users: 24
queries:
  - id: "7"
    name: daily-events
    text: SELECT * FROM events e JOIN users u ON e.uid = u.id WHERE day = {{ day }}
    data_source: bq
    apply_auto_limit: true
    parameters:
      - name: day
        value: "'2026-10-18'"
`

type harness struct {
	catalog  *workspace.Catalog
	runner   *dryrun.Runner
	bus      *event.Bus
	recorder *notify.Recorder
	registry *prometheus.Registry
	coord    *trialrun.Coordinator

	mu     sync.Mutex
	events []string

	outcomes chan event.Event
	stale    chan event.Event
}

func newHarness(t *testing.T, latency time.Duration) *harness {
	t.Helper()

	cat, err := workspace.Parse([]byte(integrationWorkspace))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg := config.Default().Runner
	cfg.LatencyMs = int(latency / time.Millisecond)
	runner, err := dryrun.NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	h := &harness{
		catalog:  cat,
		runner:   runner,
		bus:      event.NewBus(nil),
		recorder: notify.NewRecorder(true, nil),
		registry: prometheus.NewRegistry(),
		outcomes: make(chan event.Event, 8),
		stale:    make(chan event.Event, 8),
	}

	// Wildcard handlers run after type-specific ones, so outcomes are
	// forwarded from here to keep them ordered after their recording.
	h.bus.SubscribeAll(func(e event.Event) {
		if e.EventType() == event.TypeStateChanged {
			return
		}
		h.mu.Lock()
		h.events = append(h.events, e.EventType())
		h.mu.Unlock()

		switch e.EventType() {
		case event.TypeRunCompleted, event.TypeRunFailed:
			h.outcomes <- e
		case event.TypeStaleOutcome:
			h.stale <- e
		}
	})

	h.coord = trialrun.NewCoordinator(context.Background(), trialrun.Config{
		Notifier: h.recorder,
		Bus:      h.bus,
		Metrics:  metrics.MustNewMetrics(h.registry),
		Title:    "Redash",
	})
	t.Cleanup(func() {
		h.coord.Close()
		h.coord.Wait()
		h.runner.Wait()
	})
	return h
}

func (h *harness) query(t *testing.T) *dryrun.Query {
	t.Helper()
	def, err := h.catalog.Query("daily-events")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return h.catalog.NewQuery(def, h.runner, "")
}

func (h *harness) wait(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (h *harness) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

// counter returns the value of a counter family, summed over its series.
func (h *harness) counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += counterValue(m)
		}
	}
	return total
}

func counterValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

// TestWorkspaceToResultIntegration loads a query from a workspace, lets the
// auto-trigger run it and checks the result, the events and the metrics.
func TestWorkspaceToResultIntegration(t *testing.T) {
	h := newHarness(t, 0)
	q := h.query(t)

	h.coord.SetEntity(q)
	completed, ok := h.wait(t, h.outcomes).(event.RunCompletedEvent)
	if !ok {
		t.Fatal("expected a completed run")
	}
	if !completed.Attached {
		t.Error("result should be attached to the query")
	}

	state := h.coord.State()
	if state.Result == nil {
		t.Fatal("state has no result")
	}
	if want := "SELECT * FROM events e JOIN users u ON e.uid = u.id WHERE day = '2026-10-18' LIMIT 1000"; state.Result.Executed != want {
		t.Errorf("Executed = %q, want %q", state.Result.Executed, want)
	}
	if state.Result.BytesProcessed != 1024 {
		t.Errorf("BytesProcessed = %d, want 1024", state.Result.BytesProcessed)
	}
	if q.LatestDataID() != state.Result.ID {
		t.Errorf("LatestDataID = %q, want %q", q.LatestDataID(), state.Result.ID)
	}
	if n := len(h.recorder.Notifications()); n != 0 {
		t.Errorf("initial load sent %d notifications", n)
	}

	want := []string{event.TypeRunStarted, event.TypeRunStatus, event.TypeRunCompleted}
	got := h.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}

	if v := h.counter(t, "trialrun_coordinator_runs_started_total"); v != 1 {
		t.Errorf("runs_started_total = %v, want 1", v)
	}
	if v := h.counter(t, "trialrun_coordinator_runs_completed_total"); v != 1 {
		t.Errorf("runs_completed_total = %v, want 1", v)
	}

	// A second run notifies now that the initial result is loaded.
	h.coord.StartRun()
	h.wait(t, h.outcomes)
	notes := h.recorder.Notifications()
	if len(notes) != 1 || notes[0].Body != "daily-events updated." || notes[0].Title != "Redash" {
		t.Errorf("notifications = %+v, want one \"daily-events updated.\"", notes)
	}
}

// TestSupersededRunIntegration starts two runs back to back; the first one
// finishes as a stale outcome and only the second is reported.
func TestSupersededRunIntegration(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	q := h.query(t)

	h.coord.SetEntity(q)
	second := h.coord.StartRun()

	h.wait(t, h.stale)
	completed, ok := h.wait(t, h.outcomes).(event.RunCompletedEvent)
	if !ok {
		t.Fatal("expected the second run to complete")
	}
	if completed.RunID != second.ID() {
		t.Errorf("completed run = %q, want %q", completed.RunID, second.ID())
	}

	if v := h.counter(t, "trialrun_coordinator_stale_outcomes_total"); v != 1 {
		t.Errorf("stale_outcomes_total = %v, want 1", v)
	}
	if v := h.counter(t, "trialrun_coordinator_runs_started_total"); v != 2 {
		t.Errorf("runs_started_total = %v, want 2", v)
	}
}

// TestCancelIntegration cancels a slow run through the state's cancel action.
func TestCancelIntegration(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.coord.SetEntity(h.query(t))

	cancel := h.coord.State().Cancel
	if cancel == nil {
		t.Fatal("running state should offer a cancel action")
	}
	cancel()

	failed, ok := h.wait(t, h.outcomes).(event.RunFailedEvent)
	if !ok || !failed.Canceled {
		t.Fatalf("expected a canceled run, got %+v", failed)
	}
	if failed.Reason != "Query execution was canceled." {
		t.Errorf("Reason = %q", failed.Reason)
	}

	state := h.coord.State()
	if state.IsRunning || state.IsCancelling || state.Cancel != nil {
		t.Errorf("state after cancel = %+v, want idle", state)
	}
	if v := h.counter(t, "trialrun_coordinator_cancel_requests_total"); v != 1 {
		t.Errorf("cancel_requests_total = %v, want 1", v)
	}
}

// TestTeardownIntegration closes the coordinator while a run is in flight.
func TestTeardownIntegration(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	h.coord.SetEntity(h.query(t))
	h.coord.Close()

	h.wait(t, h.stale)
	if n := len(h.recorder.Notifications()); n != 0 {
		t.Errorf("closed coordinator sent %d notifications", n)
	}
	select {
	case e := <-h.outcomes:
		t.Errorf("closed coordinator reported %s", e.EventType())
	default:
	}
}
