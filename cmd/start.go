package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/pomotrack/internal/timer"
)

// controlCommand builds a one-shot command that applies op to the restored
// engine and prints the resulting timer line.
func controlCommand(use, short string, args cobra.PositionalArgs, op func(e *timer.Engine, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			return withApp(cmd, appOptions{}, func(a *app) error {
				if err := op(a.engine, argv); err != nil {
					return err
				}
				printLine(cmd, a.engine.Snapshot())
				return nil
			})
		},
	}
}

func printLine(cmd *cobra.Command, v timer.View) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", v.Label, v.Clock(), v.Phase)
}

var startCmd = controlCommand("start", "Start or resume the current interval", cobra.NoArgs,
	func(e *timer.Engine, _ []string) error { return e.Start() })

var pauseCmd = controlCommand("pause", "Pause the running interval", cobra.NoArgs,
	func(e *timer.Engine, _ []string) error { return e.Pause() })

var toggleCmd = controlCommand("toggle", "Pause if running, start otherwise", cobra.NoArgs,
	func(e *timer.Engine, _ []string) error { return e.Toggle() })

var resetCmd = controlCommand("reset", "Return the interval to its full duration", cobra.NoArgs,
	func(e *timer.Engine, _ []string) error { return e.Reset() })

var kindCmd = controlCommand("kind <study|short|long>", "Switch interval kind (not while running)", cobra.ExactArgs(1),
	func(e *timer.Engine, args []string) error {
		k, err := timer.ParseKind(args[0])
		if err != nil {
			return err
		}
		return e.SelectKind(k)
	})

func init() {
	rootCmd.AddCommand(startCmd, pauseCmd, toggleCmd, resetCmd, kindCmd)
}
