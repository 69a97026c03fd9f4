package event

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Iron-Ham/trialrun/internal/logging"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	id := bus.Subscribe(TypeRunStarted, func(e Event) {
		received = e
	})
	if id == "" {
		t.Error("Subscribe() should return a non-empty ID")
	}

	bus.Publish(NewRunStartedEvent("7", "run-1", 1))

	if received == nil {
		t.Fatal("handler was not called")
	}
	started, ok := received.(RunStartedEvent)
	if !ok {
		t.Fatalf("received %T, want RunStartedEvent", received)
	}
	if started.EntityID != "7" || started.RunID != "run-1" || started.Generation != 1 {
		t.Errorf("unexpected event payload: %+v", started)
	}
}

func TestBus_PublishOnlyMatchingType(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	bus.Subscribe(TypeRunCompleted, func(Event) { calls++ })

	bus.Publish(NewRunStartedEvent("7", "run-1", 1))
	bus.Publish(NewRunStatusEvent("7", "run-1", "processing"))
	if calls != 0 {
		t.Errorf("handler called %d times for non-matching events", calls)
	}

	bus.Publish(NewRunCompletedEvent("7", "run-1", "res-1", true, 0))
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestBus_MultipleHandlersRunInOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.Subscribe(TypeRunFailed, func(Event) { order = append(order, "first") })
	bus.Subscribe(TypeRunFailed, func(Event) { order = append(order, "second") })
	bus.SubscribeAll(func(Event) { order = append(order, "wildcard") })

	bus.Publish(NewRunFailedEvent("7", "run-1", "boom", false, 0))

	want := []string{"first", "second", "wildcard"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(nil)

	var types []string
	bus.SubscribeAll(func(e Event) { types = append(types, e.EventType()) })

	bus.Publish(NewRunSkippedEvent("7"))
	bus.Publish(NewCancelRequestedEvent("7", "run-1"))
	bus.Publish(NewStaleOutcomeEvent("run-0", 1, 2))

	want := []string{TypeRunSkipped, TypeCancelRequested, TypeStaleOutcome}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("types = %v, want %v", types, want)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	id := bus.Subscribe(TypeStateChanged, func(Event) { calls++ })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe() should report success for a known ID")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe() should report false")
	}

	bus.Publish(NewStateChangedEvent("7", false, false, true, "", "res-1", ""))
	if calls != 0 {
		t.Errorf("unsubscribed handler was called %d times", calls)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TypeRunStarted, func(Event) {})
	bus.Subscribe(TypeRunStatus, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if bus.SubscriptionCount() != 3 {
		t.Fatalf("SubscriptionCount() = %d, want 3", bus.SubscriptionCount())
	}
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() after Clear = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logging.NewWriterLogger(&buf, logging.LevelDebug))

	var reached bool
	bus.Subscribe(TypeRunStarted, func(Event) { panic("handler exploded") })
	bus.Subscribe(TypeRunStarted, func(Event) { reached = true })

	bus.Publish(NewRunStartedEvent("7", "run-1", 1))

	if !reached {
		t.Error("handler after a panicking one should still run")
	}
	if !strings.Contains(buf.String(), "handler exploded") {
		t.Errorf("panic was not logged: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"component":"event-bus"`) {
		t.Errorf("panic log missing component: %s", buf.String())
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var count atomic.Int64
	bus.SubscribeAll(func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			bus.Publish(NewRunStatusEvent("7", "run-1", "processing"))
		})
	}
	wg.Wait()

	if count.Load() != 50 {
		t.Errorf("handler called %d times, want 50", count.Load())
	}
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			id := bus.Subscribe(TypeRunStatus, func(Event) {})
			bus.Publish(NewRunStatusEvent("7", "run-1", "waiting"))
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus(nil)

	seen := make(map[string]bool)
	for range 100 {
		id := bus.Subscribe(TypeRunStarted, func(Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription ID %q", id)
		}
		seen[id] = true
	}
}

func TestEventTimestamps(t *testing.T) {
	events := []Event{
		NewRunStartedEvent("7", "r", 1),
		NewRunStatusEvent("7", "r", "done"),
		NewRunCompletedEvent("7", "r", "res", false, 0),
		NewRunFailedEvent("7", "r", "x", true, 0),
		NewRunSkippedEvent("7"),
		NewCancelRequestedEvent("7", "r"),
		NewStaleOutcomeEvent("r", 1, 0),
		NewStateChangedEvent("7", true, false, false, "waiting", "", ""),
		NewCatalogReloadedEvent("/tmp/ws.yaml", 3, nil),
	}
	for _, e := range events {
		if e.Timestamp().IsZero() {
			t.Errorf("%s has zero timestamp", e.EventType())
		}
		if !strings.Contains(e.EventType(), ".") {
			t.Errorf("event type %q should be category.action", e.EventType())
		}
	}
}
