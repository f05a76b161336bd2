package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/pomotrack/internal/interactive"
	"github.com/fakeyudi/pomotrack/internal/store"
	"github.com/fakeyudi/pomotrack/internal/tui"
)

var runSubject string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the full-screen timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(os.Stdout.Fd()) {
			return errors.New("run needs a terminal; use 'pomotrack shell' or the one-shot commands")
		}
		return runFrontEnd(cmd, appOptions{manualTick: true, subject: runSubject}, func(ctx context.Context, a *app) error {
			return tui.Run(ctx, tui.Options{
				Engine:   a.engine,
				Journal:  a.recent,
				Interval: cfg.TickInterval,
			})
		})
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Drive the timer from an interactive prompt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFrontEnd(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			sh, err := interactive.New(a.engine)
			if err != nil {
				return err
			}
			sh.Run(ctx)
			return nil
		})
	},
}

// runFrontEnd runs a long-lived front end next to a watcher that reloads
// state written by other pomotrack processes. Logs go to a file for the
// duration.
func runFrontEnd(cmd *cobra.Command, opts appOptions, front func(ctx context.Context, a *app) error) error {
	dir, err := scopeDir()
	if err != nil {
		return err
	}
	fl, closeLog, err := fileLogger(dir)
	if err != nil {
		return err
	}
	defer closeLog()
	prev := logger
	logger = fl
	defer func() { logger = prev }()

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.close()
	a.engine.Restore()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return store.Watch(gctx, a.slot, store.StateKey, func() {
			a.engine.Reload()
		})
	})
	g.Go(func() error {
		defer cancel()
		return front(gctx, a)
	})
	return g.Wait()
}

func init() {
	runCmd.Flags().StringVar(&runSubject, "subject", "", "subject for registered sessions")
	rootCmd.AddCommand(runCmd, shellCmd)
}
