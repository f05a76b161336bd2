package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/pomotrack/internal/config"
	"github.com/fakeyudi/pomotrack/internal/profile"
)

// cfg holds the resolved configuration, populated in PersistentPreRunE.
var cfg config.Settings

// activeProfile holds the loaded user profile.
var activeProfile *profile.Profile

// logger is rebuilt for every invocation from the configured level.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

var verbose bool

var rootCmd = &cobra.Command{
	Use:          "pomotrack",
	Short:        "Focus timer that registers each study session exactly once",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// First-run: profile missing → run setup wizard automatically.
		// Only do this when stdin is an interactive terminal.
		activeProfile = nil
		if !profile.Exists() && term.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "  Welcome to pomotrack! Looks like this is your first time.")
			if err := runSetup(cmd, true); err != nil {
				return err
			}
		}
		if profile.Exists() {
			p, err := profile.Load()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			activeProfile = p
		}

		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		settings, err := config.Merge(global, project).Resolve()
		if err != nil {
			return err
		}
		// A subject chosen during setup beats the config default.
		if activeProfile != nil && activeProfile.Subject != "" && (project == nil || project.Subject == "") {
			settings.Subject = activeProfile.Subject
		}
		cfg = settings

		logger = newLogger(cmd.ErrOrStderr())
		return nil
	},
}

func newLogger(w io.Writer) *slog.Logger {
	level := cfg.LogLevel
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the resolved configuration for use by subcommands.
func GetConfig() config.Settings {
	return cfg
}

// GetProfile returns the active user profile.
func GetProfile() *profile.Profile {
	return activeProfile
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
