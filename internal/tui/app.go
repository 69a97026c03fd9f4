package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/trialrun/internal/event"
	"github.com/Iron-Ham/trialrun/internal/logging"
	"github.com/Iron-Ham/trialrun/internal/trialrun"
)

// App wraps the bubbletea program and feeds it coordinator changes.
type App struct {
	coord  *trialrun.Coordinator
	bus    *event.Bus
	model  Model
	logger *logging.Logger

	changed  chan struct{}
	outcomes chan OutcomeMsg
}

// New creates an App. bus may be nil, in which case the run history stays
// empty.
func New(coord *trialrun.Coordinator, bus *event.Bus, selectQuery SelectFunc, showHelp bool, logger *logging.Logger) *App {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &App{
		coord:    coord,
		bus:      bus,
		model:    NewModel(coord, selectQuery, showHelp),
		logger:   logger.WithComponent("tui"),
		changed:  make(chan struct{}, 1),
		outcomes: make(chan OutcomeMsg, 32),
	}
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	p := tea.NewProgram(a.model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Program.Send blocks while Update runs, and coordinator listeners can
	// fire from inside Update, so everything goes through buffered channels.
	a.coord.OnChange(func(trialrun.State) {
		select {
		case a.changed <- struct{}{}:
		default:
		}
	})

	var subs []string
	if a.bus != nil {
		onOutcome := func(e event.Event) {
			msg, ok := outcomeFromEvent(e)
			if !ok {
				return
			}
			select {
			case a.outcomes <- msg:
			default:
				a.logger.Warn("dropping run outcome", "event_type", e.EventType())
			}
		}
		subs = append(subs,
			a.bus.Subscribe(event.TypeRunCompleted, onOutcome),
			a.bus.Subscribe(event.TypeRunFailed, onOutcome),
		)
	}
	defer func() {
		for _, id := range subs {
			a.bus.Unsubscribe(id)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go a.forward(p, done)

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func (a *App) forward(p *tea.Program, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-a.changed:
			p.Send(StateChangedMsg{})
		case o := <-a.outcomes:
			p.Send(o)
		}
	}
}

func outcomeFromEvent(e event.Event) (OutcomeMsg, bool) {
	switch ev := e.(type) {
	case event.RunCompletedEvent:
		return OutcomeMsg{
			Text: fmt.Sprintf("query %s finished in %s (result %s)", ev.EntityID, ev.Duration.Round(time.Millisecond), ev.ResultID),
			At:   ev.Timestamp(),
		}, true
	case event.RunFailedEvent:
		text := fmt.Sprintf("query %s failed: %s", ev.EntityID, ev.Reason)
		if ev.Canceled {
			text = fmt.Sprintf("query %s canceled", ev.EntityID)
		}
		return OutcomeMsg{Text: text, Failed: true, At: ev.Timestamp()}, true
	}
	return OutcomeMsg{}, false
}
