// Package event provides a synchronous pub-sub bus that decouples the trial
// run coordinator from whoever is watching it (TUI, headless printer,
// metrics, logs).
//
// # Main Types
//
//   - [Event]: EventType() and Timestamp()
//   - [Bus]: thread-safe dispatcher; handler panics are recovered and logged
//   - [Handler]: func(Event)
//
// # Event Types
//
// Run lifecycle:
//   - [RunStartedEvent] (trialrun.started)
//   - [RunStatusEvent] (trialrun.status)
//   - [RunCompletedEvent] (trialrun.completed)
//   - [RunFailedEvent] (trialrun.failed)
//   - [RunSkippedEvent] (trialrun.skipped)
//   - [CancelRequestedEvent] (trialrun.cancel_requested)
//   - [StaleOutcomeEvent] (trialrun.stale)
//   - [StateChangedEvent] (trialrun.state)
//
// Workspace:
//   - [CatalogReloadedEvent] (workspace.reloaded)
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeRunCompleted, func(e event.Event) {
//	    done := e.(event.RunCompletedEvent)
//	    fmt.Println("result", done.ResultID)
//	})
//	bus.SubscribeAll(func(e event.Event) { logger.Debug("event", "type", e.EventType()) })
package event
