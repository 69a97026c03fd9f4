package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// RunError Tests
// -----------------------------------------------------------------------------

func TestNewRunError(t *testing.T) {
	err := NewRunError("Target data source not available.", ErrDataSourceUnavailable)

	if err.Message() != "Target data source not available." {
		t.Errorf("Message() = %q", err.Message())
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestRunError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RunError
		want string
	}{
		{
			name: "no context",
			err:  NewRunError("boom", nil),
			want: "run error: boom",
		},
		{
			name: "entity and run",
			err:  NewRunError("boom", nil).WithEntity("7").WithRun("r1"),
			want: "run error [entity=7, run=r1]: boom",
		},
		{
			name: "with cause",
			err:  NewRunError("paused", ErrDataSourcePaused).WithEntity("7"),
			want: "run error [entity=7]: paused: data source paused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunError_Is(t *testing.T) {
	err := NewRunError("canceled", ErrRunCanceled)

	if !errors.Is(err, ErrRunFailed) {
		t.Error("RunError should match ErrRunFailed")
	}
	if !errors.Is(err, ErrRunCanceled) {
		t.Error("RunError should match its cause")
	}
	if errors.Is(err, ErrMissingParameters) {
		t.Error("RunError should not match an unrelated sentinel")
	}

	wrapped := fmt.Errorf("await: %w", err)
	var runErr *RunError
	if !errors.As(wrapped, &runErr) {
		t.Fatal("errors.As should find RunError through wrapping")
	}
	if runErr.Message() != "canceled" {
		t.Errorf("Message() = %q", runErr.Message())
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("query", "daily-sales").WithCause(ErrQueryNotFound)

	if !strings.Contains(err.Error(), `query "daily-sales" not found`) {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrQueryNotFound) {
		t.Error("should match cause")
	}
	if !IsUserFacing(err) {
		t.Error("NotFoundError should be user facing")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("must be positive").WithField("runner.latency_ms").WithValue(-1)

	want := "validation error [field=runner.latency_ms, value=-1]: must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", New("x"), false},
		{"paused data source", NewRunError("paused", ErrDataSourcePaused), true},
		{"canceled", fmt.Errorf("wrap: %w", ErrRunCanceled), true},
		{"missing params", NewRunError("missing", ErrMissingParameters), false},
		{"explicitly retryable", NewRunError("flaky", nil).WithRetryable(true), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"run error", NewRunError("Missing parameter value for: a", ErrMissingParameters).WithRun("r"), "Missing parameter value for: a"},
		{"wrapped run error", Wrap(NewRunError("reason", nil), "context"), "reason"},
		{"bare cancel", ErrRunCanceled, "Query execution was canceled."},
		{"internal", New("segfault"), "An internal error occurred."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetSeverity(t *testing.T) {
	if GetSeverity(nil) != SeverityDebug {
		t.Error("nil should map to SeverityDebug")
	}
	if GetSeverity(New("x")) != SeverityError {
		t.Error("unknown errors should map to SeverityError")
	}
	if GetSeverity(NewRunError("x", nil).WithSeverity(SeverityWarning)) != SeverityWarning {
		t.Error("RunError severity should be honored")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrQueryNotFound, "loading %s", "q1")
	if err.Error() != "loading q1: query not found" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrQueryNotFound) {
		t.Error("Wrapf should preserve the chain")
	}
}
