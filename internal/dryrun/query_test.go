package dryrun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/trialrun/internal/event"
	"github.com/Iron-Ham/trialrun/internal/notify"
	"github.com/Iron-Ham/trialrun/internal/trialrun"
)

func TestQuery_Accessors(t *testing.T) {
	ds := warehouse()
	params := []Parameter{{Name: "a", Value: "1"}, {Name: "b"}}
	q := NewQuery(QuerySpec{
		ID:             "7",
		Name:           "Events",
		Text:           "SELECT 1",
		DataSource:     ds,
		Parameters:     params,
		ApplyAutoLimit: true,
	}, nil)

	assert.Equal(t, "7", q.ID())
	assert.Equal(t, "Events", q.Name())
	assert.Equal(t, "SELECT 1", q.QueryText())
	assert.True(t, q.ApplyAutoLimit())
	assert.True(t, q.RequiresParameters())
	assert.Equal(t, []string{"b"}, q.MissingParameters())
	assert.False(t, q.HasResult())

	// The query keeps its own copies.
	params[0].Value = "changed"
	ds.Tables["events"] = 1
	assert.Equal(t, "1", q.Parameters()[0].Value)
	assert.Equal(t, int64(4096), q.DataSource().Tables["events"])
}

func TestQuery_NoParameters(t *testing.T) {
	q := NewQuery(QuerySpec{ID: "1", Text: "SELECT 1"}, nil)
	assert.False(t, q.RequiresParameters())
	assert.Empty(t, q.MissingParameters())
}

func TestQuery_AttachResult(t *testing.T) {
	q := NewQuery(QuerySpec{ID: "7", LatestDataID: "old"}, nil)
	assert.True(t, q.HasResult())
	assert.Equal(t, "old", q.LatestDataID())
	assert.Nil(t, q.DryRunResult())

	res := &trialrun.Result{ID: "new"}
	q.AttachResult("new", res)
	assert.Equal(t, "new", q.LatestDataID())
	assert.Same(t, res, q.DryRunResult())
}

// Drives the coordinator with real queries and jobs end to end.
func TestCoordinatorWithRunner(t *testing.T) {
	r := newTestRunner(t, 0)
	recorder := notify.NewRecorder(true, nil)
	bus := event.NewBus(nil)

	done := make(chan event.Event, 8)
	bus.Subscribe(event.TypeRunCompleted, func(e event.Event) { done <- e })
	bus.Subscribe(event.TypeRunFailed, func(e event.Event) { done <- e })
	waitDone := func() event.Event {
		select {
		case e := <-done:
			return e
		case <-time.After(5 * time.Second):
			t.Fatal("run never finished")
			return nil
		}
	}

	c := trialrun.NewCoordinator(context.Background(), trialrun.Config{Notifier: recorder, Bus: bus})
	defer c.Wait()
	defer c.Close()

	q := NewQuery(QuerySpec{
		ID:           "7",
		Name:         "Daily events",
		Text:         "SELECT * FROM events",
		DataSource:   warehouse(),
		LatestDataID: "previous",
	}, r)
	c.SetEntity(q)

	completed, ok := waitDone().(event.RunCompletedEvent)
	require.True(t, ok)
	assert.True(t, completed.Attached)

	s := c.State()
	require.NotNil(t, s.Result)
	assert.Equal(t, s.Result.ID, q.LatestDataID())
	assert.Same(t, s.Result, q.DryRunResult())
	assert.Empty(t, recorder.Notifications(), "initial load is silent")

	c.StartRun()
	waitDone()
	notes := recorder.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Daily events updated.", notes[0].Body)

	broken := NewQuery(QuerySpec{ID: "8", Name: "Broken", Text: "SELECT 1", Parameters: []Parameter{{Name: "x"}}}, r)
	c.SetEntity(broken)
	failed, ok := waitDone().(event.RunFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "Target data source not available.", failed.Reason)

	notes = recorder.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, "Broken failed to run: Target data source not available.", notes[1].Body)
}
