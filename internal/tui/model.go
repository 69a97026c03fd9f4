// Package tui is an interactive terminal view of a single query's trial runs.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/Iron-Ham/trialrun/internal/trialrun"
)

const maxHistory = 8

// Controller is the part of the coordinator the view drives.
type Controller interface {
	State() trialrun.State
	Entity() trialrun.Entity
	StartRun() trialrun.RunHandle
}

// SelectFunc switches the view to the named query.
type SelectFunc func(name string) error

// StateChangedMsg tells the model to re-read the controller's state.
type StateChangedMsg struct{}

// OutcomeMsg is a finished run, already formatted for the history list.
type OutcomeMsg struct {
	Text   string
	Failed bool
	At     time.Time
}

// Model is the bubbletea model.
type Model struct {
	ctrl        Controller
	selectQuery SelectFunc

	spinner   spinner.Model
	input     textinput.Model
	selecting bool

	state    trialrun.State
	history  []OutcomeMsg
	width    int
	showHelp bool
	quitting bool
}

// NewModel creates a model over ctrl. selectQuery may be nil, which disables
// query switching.
func NewModel(ctrl Controller, selectQuery SelectFunc, showHelp bool) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	ti := textinput.New()
	ti.Placeholder = "query name or id"
	ti.Prompt = "/ "
	ti.CharLimit = 256

	return Model{
		ctrl:        ctrl,
		selectQuery: selectQuery,
		spinner:     sp,
		input:       ti,
		state:       ctrl.State(),
		showHelp:    showHelp,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StateChangedMsg:
		m.state = m.ctrl.State()
		return m, nil

	case OutcomeMsg:
		m.pushHistory(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.selecting {
			return m.handleSelectKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "r":
		if m.ctrl.Entity() != nil {
			m.ctrl.StartRun()
		}
		m.state = m.ctrl.State()

	case "c":
		if m.state.Cancel != nil && !m.state.IsCancelling {
			m.state.Cancel()
		}
		m.state = m.ctrl.State()

	case "/":
		if m.selectQuery != nil {
			m.selecting = true
			m.input.SetValue("")
			cmd := m.input.Focus()
			return m, cmd
		}

	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m Model) handleSelectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.selecting = false
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		m.selecting = false
		m.input.Blur()
		name := strings.TrimSpace(m.input.Value())
		if name == "" {
			return m, nil
		}
		if err := m.selectQuery(name); err != nil {
			m.pushHistory(OutcomeMsg{Text: err.Error(), Failed: true, At: time.Now()})
		}
		m.state = m.ctrl.State()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) pushHistory(o OutcomeMsg) {
	m.history = append(m.history, o)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// View renders the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	name := "no query"
	if e := m.ctrl.Entity(); e != nil {
		name = e.Name()
	}
	b.WriteString(titleStyle.Render("trialrun") + mutedStyle.Render(" · ") + m.truncate(name, 20))
	b.WriteString("\n")

	var body strings.Builder
	body.WriteString(m.row("Status", m.statusText()))
	if r := m.state.Result; r != nil {
		body.WriteString(m.row("Bytes processed", humanize.IBytes(uint64(max(r.BytesProcessed, 0)))))
		body.WriteString(m.row("Result", r.ID))
		body.WriteString(m.row("Retrieved", r.RetrievedAt.Local().Format(time.TimeOnly)))
		body.WriteString(m.row("Executed", m.truncate(oneLine(r.Executed), 20)))
	}
	if m.state.Err != nil {
		body.WriteString(m.row("Error", errorStyle.Render(m.truncate(m.state.Err.Error(), 20))))
	}
	b.WriteString(contentBox.Render(strings.TrimRight(body.String(), "\n")))
	b.WriteString("\n")

	if len(m.history) > 0 {
		b.WriteString(mutedStyle.Render("Recent runs"))
		b.WriteString("\n")
		for i := len(m.history) - 1; i >= 0; i-- {
			h := m.history[i]
			mark := successStyle.Render("✓")
			if h.Failed {
				mark = errorStyle.Render("✗")
			}
			line := fmt.Sprintf("%s %s %s", mark, mutedStyle.Render(h.At.Format(time.TimeOnly)), h.Text)
			b.WriteString(m.truncate(line, 0))
			b.WriteString("\n")
		}
	}

	if m.selecting {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(helpStyle.Render(m.helpText()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) statusText() string {
	switch {
	case m.state.IsCancelling:
		return warningStyle.Render(m.spinner.View() + " cancelling")
	case m.state.IsRunning:
		status := string(m.state.Status)
		if status == "" {
			status = "starting"
		}
		return m.spinner.View() + " " + status
	case m.state.Err != nil:
		return errorStyle.Render("failed")
	case m.state.Result != nil:
		return successStyle.Render(string(trialrun.StatusDone))
	case m.state.HasLoadedInitialResult:
		return mutedStyle.Render("idle")
	default:
		return mutedStyle.Render("not loaded")
	}
}

func (m Model) helpText() string {
	keys := []string{"r run", "c cancel"}
	if m.selectQuery != nil {
		keys = append(keys, "/ switch query")
	}
	keys = append(keys, "? help", "q quit")
	return strings.Join(keys, " · ")
}

func (m Model) row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

// truncate fits s to the terminal width less reserve columns. Before the
// first WindowSizeMsg the width is unknown and s is returned as is.
func (m Model) truncate(s string, reserve int) string {
	width := m.width - reserve
	if m.width == 0 {
		return s
	}
	if width <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
