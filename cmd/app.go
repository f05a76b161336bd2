package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/pomotrack/internal/guard"
	"github.com/fakeyudi/pomotrack/internal/journal"
	"github.com/fakeyudi/pomotrack/internal/registration"
	"github.com/fakeyudi/pomotrack/internal/store"
	"github.com/fakeyudi/pomotrack/internal/timer"
)

// app is the timer stack for one invocation, scoped to the current user and
// backend.
type app struct {
	dir     string
	slot    *store.DiskSlot
	catalog timer.Catalog
	states  *store.TimerStore
	guard   *guard.Guard
	journal *journal.File
	engine  *timer.Engine
}

type appOptions struct {
	manualTick bool
	subject    string
}

// scopeDir returns the data directory for the active user and backend.
func scopeDir() (string, error) {
	base := cfg.DataDir
	if base == "" {
		var err error
		if base, err = store.DataDir(); err != nil {
			return "", err
		}
	}
	var user string
	if activeProfile != nil {
		user = activeProfile.Name
	}
	return filepath.Join(base, store.Scope(user, cfg.APIBaseURL)), nil
}

func catalogFromConfig() (timer.Catalog, error) {
	return timer.NewCatalog(cfg.StudyDuration, cfg.ShortBreakDuration, cfg.LongBreakDuration)
}

func openApp(opts appOptions) (*app, error) {
	dir, err := scopeDir()
	if err != nil {
		return nil, err
	}
	slot, err := store.OpenDiskSlot(dir)
	if err != nil {
		return nil, err
	}
	catalog, err := catalogFromConfig()
	if err != nil {
		return nil, err
	}
	j, err := journal.OpenFile(filepath.Join(dir, journal.FileName))
	if err != nil {
		return nil, err
	}

	var token string
	if activeProfile != nil {
		token = activeProfile.APIToken
	}
	client := registration.New(registration.Options{
		BaseURL: cfg.APIBaseURL,
		Token:   token,
		Timeout: cfg.RequestTimeout,
		Logger:  logger.With("component", "registration"),
	})
	g := guard.New(slot, client, guard.Options{
		Window:          cfg.SuppressionWindow,
		InFlightCeiling: cfg.InFlightCeiling,
		Logger:          logger.With("component", "guard"),
	})
	states := store.NewTimerStore(slot, catalog, nil, logger.With("component", "store"))

	subject := opts.subject
	if subject == "" {
		subject = cfg.Subject
	}
	engine := timer.New(timer.Options{
		Catalog:      catalog,
		Store:        states,
		Reporter:     g,
		Journal:      j,
		Logger:       logger.With("component", "timer"),
		TickInterval: cfg.TickInterval,
		Subject:      subject,
		ManualTick:   opts.manualTick,
	})
	return &app{
		dir:     dir,
		slot:    slot,
		catalog: catalog,
		states:  states,
		guard:   g,
		journal: j,
		engine:  engine,
	}, nil
}

// close waits for in-flight registrations, bounded by the request timeout.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+time.Second)
	defer cancel()
	err := a.engine.Close(ctx)
	return errors.Join(err, a.journal.Close())
}

func (a *app) journalPath() string {
	return filepath.Join(a.dir, journal.FileName)
}

// recent returns the newest journal entries, oldest first.
func (a *app) recent() ([]journal.Entry, error) {
	entries, err := journal.ReadAll(a.journalPath(), journal.Filter{})
	if len(entries) > 50 {
		entries = entries[len(entries)-50:]
	}
	return entries, err
}

// withApp opens the stack, restores persisted state, reports any completion
// that happened while nothing was running, runs fn and closes the stack. A
// failed registration of that completion is only a warning; it stays
// pending for 'pomotrack retry' and never blocks fn.
func withApp(cmd *cobra.Command, opts appOptions, fn func(a *app) error) (err error) {
	opts.manualTick = true
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if r := a.engine.Restore(); r != nil {
		if err := printReport(cmd, r); err != nil {
			logger.Warn("registering completed interval", "err", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
	}
	return fn(a)
}

// printReport waits for r and describes its outcome. A failed registration
// is returned as an error.
func printReport(cmd *cobra.Command, r *timer.Report) error {
	if r == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout+time.Second)
	defer cancel()
	session, err := r.Wait(ctx)
	c := r.Completion
	out := cmd.OutOrStdout()

	switch {
	case !r.Registers():
		fmt.Fprintf(out, "%s complete.\n", label(timer.Kind(c.Kind)))
	case errors.Is(err, guard.ErrNothingToReport):
		fmt.Fprintln(out, "Nothing to register.")
	case errors.Is(err, guard.ErrInFlight):
		fmt.Fprintln(out, "Registration already in progress elsewhere.")
	case err != nil:
		return fmt.Errorf("registering %d min: %w (run 'pomotrack retry')", c.StudiedMinutes, err)
	case session == nil:
		fmt.Fprintln(out, "Duplicate completion ignored.")
	default:
		fmt.Fprintf(out, "Registered %d min (session #%d, %d min today).\n", c.StudiedMinutes, session.ID, session.Minutes)
	}
	return nil
}

func label(k timer.Kind) string {
	if conf, ok := timer.DefaultCatalog().Lookup(k); ok {
		return conf.Label
	}
	return string(k)
}

// fileLogger sends logs to <dir>/pomotrack.log while a full-screen front
// end owns the terminal.
func fileLogger(dir string) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "pomotrack.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return newLogger(f), f.Close, nil
}
