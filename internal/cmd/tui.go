package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/trialrun/internal/config"
	"github.com/Iron-Ham/trialrun/internal/notify"
	"github.com/Iron-Ham/trialrun/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [query]",
	Short: "Interactive trial runs",
	Long: `Open an interactive view of a query's trial runs.

The workspace file is watched while the view is open, so edits to the
selected query are picked up and re-run automatically.

Keys:
  r  start a run (supersedes the current one)
  c  cancel the current run
  /  switch to another query
  ?  toggle help
  q  quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	s, err := newSession(ctx, cfg, sessionOptions{
		workspace: viper.GetString("workspace"),
		notifier:  notify.NewTerminal(cfg.Notifications, os.Stdout),
		watch:     true,
	})
	if err != nil {
		return err
	}
	defer s.close()

	if len(args) == 1 {
		if err := s.selectQuery(args[0]); err != nil {
			return err
		}
	}

	app := tui.New(s.coord, s.bus, s.selectQuery, cfg.TUI.ShowHelp, s.logger)
	return app.Run(ctx)
}
