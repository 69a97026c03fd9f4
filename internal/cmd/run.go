package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/trialrun/internal/config"
	"github.com/Iron-Ham/trialrun/internal/errors"
	"github.com/Iron-Ham/trialrun/internal/event"
	"github.com/Iron-Ham/trialrun/internal/metrics"
	"github.com/Iron-Ham/trialrun/internal/notify"
	"github.com/Iron-Ham/trialrun/internal/trialrun"
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Dry run a saved query",
	Long: `Dry run a saved query from the workspace file and print how much data it
would process.

The query is looked up by name, then by id. With --watch the command keeps
running and re-runs the query whenever its definition changes on disk.

Examples:
  # Run once
  trialrun run daily-events

  # Reuse a result computed in the last ten minutes
  trialrun run daily-events --max-age 10m

  # Re-run on every save and expose Prometheus metrics
  trialrun run daily-events --watch --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runMaxAge      time.Duration
	runWatch       bool
	runMetricsAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runMaxAge, "max-age", 0, "reuse a cached result younger than this (overrides trial.max_age)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "re-run when the workspace file changes")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics at this address (e.g. :9090)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cmd.Flags().Changed("max-age") {
		cfg.Trial.MaxAge = runMaxAge
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if runMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.MustNewMetrics(reg)
		srv, err := serveMetrics(runMetricsAddr, reg)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	s, err := newSession(ctx, cfg, sessionOptions{
		workspace: viper.GetString("workspace"),
		notifier:  notify.NewTerminal(cfg.Notifications, os.Stderr),
		metrics:   m,
		watch:     runWatch,
	})
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	events := make(chan event.Event, 16)
	forward := func(e event.Event) {
		select {
		case events <- e:
		default:
			s.logger.Warn("dropping run event", "event_type", e.EventType())
		}
	}
	s.bus.Subscribe(event.TypeRunStatus, forward)
	s.bus.Subscribe(event.TypeRunCompleted, forward)
	s.bus.Subscribe(event.TypeRunFailed, forward)

	if err := s.selectQuery(args[0]); err != nil {
		return err
	}
	// The auto-trigger policy may have skipped; this command always runs.
	if !s.coord.State().IsRunning {
		s.coord.StartRun()
	}

	for {
		select {
		case <-ctx.Done():
			if runWatch {
				return nil
			}
			return ctx.Err()

		case e := <-events:
			done, err := printEvent(out, s.queryName(), s.coord.State(), e)
			if !done || runWatch {
				continue
			}
			return err
		}
	}
}

// printEvent writes one line for e. done is true for terminal outcomes; err
// is the run's error for failures.
func printEvent(w io.Writer, name string, state trialrun.State, e event.Event) (done bool, err error) {
	switch ev := e.(type) {
	case event.RunStatusEvent:
		fmt.Fprintf(w, "%s: %s\n", name, ev.Status)
		return false, nil

	case event.RunCompletedEvent:
		bytes := "unknown size"
		executed := ""
		if r := state.Result; r != nil && r.ID == ev.ResultID {
			bytes = humanize.IBytes(uint64(max(r.BytesProcessed, 0)))
			executed = r.Executed
		}
		fmt.Fprintf(w, "%s: %s processed (result %s, %s)\n", name, bytes, ev.ResultID, ev.Duration.Round(time.Millisecond))
		if executed != "" {
			fmt.Fprintf(w, "  %s\n", executed)
		}
		return true, nil

	case event.RunFailedEvent:
		if ev.Canceled {
			fmt.Fprintf(w, "%s: canceled\n", name)
			return true, errors.ErrRunCanceled
		}
		fmt.Fprintf(w, "%s: failed: %s\n", name, ev.Reason)
		return true, errors.New(ev.Reason)
	}
	return false, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv, nil
}
