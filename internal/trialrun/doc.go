// Package trialrun coordinates speculative "trial" executions of a query.
//
// A [Coordinator] tracks at most one in-flight [RunHandle] for its current
// [Entity]. Every StartRun mints a new generation; status updates, outcomes
// and cancel actions carry the generation they were created for and are
// ignored once a newer run has been started or the coordinator has been
// closed. This keeps [State] consistent when runs overlap or finish out of
// order.
//
// # Lifecycle
//
//	idle ──StartRun──▶ running ──status──▶ running
//	                      │
//	                   Cancel()
//	                      ▼
//	                  cancelling ──outcome──▶ idle (Result or Err set)
//
// SetEntity applies the auto-trigger policy: an entity that already has a
// result, or that takes parameters, is run immediately; any other entity
// only marks the initial result as loaded.
//
// Notifications are sent only after the initial result has loaded, so the
// first run after opening a query stays quiet.
//
// # Usage
//
//	c := trialrun.NewCoordinator(ctx, trialrun.Config{
//	    Notifier: notify.NewTerminal(cfg.Notifications, nil),
//	    Bus:      bus,
//	    Logger:   logger,
//	})
//	defer c.Wait()
//	defer c.Close()
//
//	c.OnChange(func(s trialrun.State) { render(s) })
//	c.SetEntity(query)
package trialrun
