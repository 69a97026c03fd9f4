// Package notify delivers trial run notifications to the user.
package notify

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/Iron-Ham/trialrun/internal/config"
)

// Terminal rings the terminal bell, prints a status line and optionally
// plays a system sound on macOS.
type Terminal struct {
	cfg config.NotificationConfig
	out *os.File

	// Seams for tests.
	goos       string
	isTerminal func(fd int) bool
	startCmd   func(name string, args ...string) error

	mu sync.Mutex
}

// NewTerminal creates a Terminal notifier writing to out (os.Stdout when nil).
func NewTerminal(cfg config.NotificationConfig, out *os.File) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{
		cfg:        cfg,
		out:        out,
		goos:       runtime.GOOS,
		isTerminal: term.IsTerminal,
		startCmd: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
	}
}

// CheckPermission reports whether notifications can be shown: they must be
// enabled and the output must be an interactive terminal.
func (n *Terminal) CheckPermission() bool {
	return n.cfg.Enabled && n.isTerminal(int(n.out.Fd()))
}

// Notify rings the bell and writes "title: body" on its own line.
func (n *Terminal) Notify(title, body string) {
	if !n.CheckPermission() {
		return
	}

	n.mu.Lock()
	_, _ = fmt.Fprintf(n.out, "\a%s: %s\n", title, body)
	n.mu.Unlock()

	if n.goos == "darwin" && n.cfg.UseSound {
		if n.cfg.SoundPath == "" {
			// User's configured alert sound
			_ = n.startCmd("osascript", "-e", "beep")
		} else {
			_ = n.startCmd("afplay", n.cfg.SoundPath)
		}
	}
}

// Notification is a delivered notification.
type Notification struct {
	Title string
	Body  string
	At    time.Time
}

// Recorder keeps notifications in memory and optionally echoes them to a
// writer. Used by headless runs and tests.
type Recorder struct {
	permitted bool
	echo      io.Writer

	mu     sync.Mutex
	checks int
	notes  []Notification
}

// NewRecorder creates a Recorder. echo may be nil.
func NewRecorder(permitted bool, echo io.Writer) *Recorder {
	return &Recorder{permitted: permitted, echo: echo}
}

// CheckPermission returns the configured permission and counts the call.
func (r *Recorder) CheckPermission() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks++
	return r.permitted
}

// Notify records the notification when permitted.
func (r *Recorder) Notify(title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.permitted {
		return
	}
	r.notes = append(r.notes, Notification{Title: title, Body: body, At: time.Now()})
	if r.echo != nil {
		_, _ = fmt.Fprintf(r.echo, "%s: %s\n", title, body)
	}
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// PermissionChecks returns how many times CheckPermission was called.
func (r *Recorder) PermissionChecks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checks
}
