package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/pomotrack/internal/timer"
)

var finishSubject string

var finishCmd = &cobra.Command{
	Use:   "finish",
	Short: "End the running study interval early and register the time studied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{subject: finishSubject}, func(a *app) error {
			r, err := a.engine.FinishEarly(cmd.Context())
			if errors.Is(err, timer.ErrTooSoon) {
				return fmt.Errorf("study at least a minute before finishing: %w", err)
			}
			if err != nil {
				return err
			}
			return printReport(cmd, r)
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-send the last study completion that failed to register",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(a *app) error {
			r, err := a.engine.RetryReport(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd, r)
		})
	},
}

func init() {
	finishCmd.Flags().StringVar(&finishSubject, "subject", "", "subject for the registered session")
	rootCmd.AddCommand(finishCmd, retryCmd)
}
