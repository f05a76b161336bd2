package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/pomotrack/internal/journal"
	"github.com/fakeyudi/pomotrack/internal/timer"
)

var (
	logFormat  string
	logOutcome string
	logKind    string
	logSince   time.Duration
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the completion journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		renderer, err := journal.NewRenderer(logFormat)
		if err != nil {
			return err
		}
		var filter journal.Filter
		if logOutcome != "" {
			if filter.Outcome, err = journal.ParseOutcome(logOutcome); err != nil {
				return err
			}
		}
		if logKind != "" {
			k, err := timer.ParseKind(logKind)
			if err != nil {
				return err
			}
			filter.Kind = string(k)
		}
		if logSince > 0 {
			filter.Since = time.Now().Add(-logSince)
		}

		dir, err := scopeDir()
		if err != nil {
			return err
		}
		entries, err := journal.ReadAll(filepath.Join(dir, journal.FileName), filter)
		if err != nil {
			return err
		}
		data, err := renderer.Render(entries)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	logCmd.Flags().StringVarP(&logFormat, "format", "f", "text", "output format: text, json or markdown")
	logCmd.Flags().StringVar(&logOutcome, "outcome", "", "only show one outcome (registered, suppressed, failed, nothing, break)")
	logCmd.Flags().StringVar(&logKind, "kind", "", "only show one interval kind")
	logCmd.Flags().DurationVar(&logSince, "since", 0, "only show entries newer than this (e.g. 24h)")
	rootCmd.AddCommand(logCmd)
}
