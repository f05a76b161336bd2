package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/pomotrack/internal/clock"
	"github.com/fakeyudi/pomotrack/internal/shell"
	"github.com/fakeyudi/pomotrack/internal/store"
	"github.com/fakeyudi/pomotrack/internal/timer"
)

var statusShort bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusShort {
			return printSegment(cmd)
		}
		return withApp(cmd, appOptions{}, func(a *app) error {
			v := a.engine.Snapshot()
			printLine(cmd, v)
			out := cmd.OutOrStdout()
			if v.Studied > 0 && v.Kind == timer.KindStudy {
				fmt.Fprintf(out, "Studied: %s\n", (time.Duration(v.Studied) * time.Second).String())
			}
			if c, ok := a.states.LoadPending(); ok {
				fmt.Fprintf(out, "Unregistered completion: %d min (run 'pomotrack retry')\n", c.StudiedMinutes)
			}
			return nil
		})
	},
}

// printSegment prints the prompt segment without touching the backend. An
// interval that ran out shows as complete; the next full command reports it.
func printSegment(cmd *cobra.Command) error {
	dir, err := scopeDir()
	if err != nil {
		return err
	}
	catalog, err := catalogFromConfig()
	if err != nil {
		return err
	}
	slot, err := store.OpenDiskSlot(dir)
	if err != nil {
		return err
	}
	restored, ok := store.NewTimerStore(slot, catalog, nil, logger).Load()
	if !ok {
		return nil
	}
	if s := shell.Segment(viewOf(catalog, restored)); s != "" {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}

func viewOf(catalog timer.Catalog, r timer.Restored) timer.View {
	conf, _ := catalog.Lookup(r.State.Kind)
	v := timer.View{
		Kind:      r.State.Kind,
		Label:     conf.Label,
		Phase:     r.State.Phase,
		Duration:  conf.Duration,
		Remaining: r.State.RemainingSeconds,
	}
	switch {
	case r.Expired:
		v.Phase, v.Remaining = timer.PhaseComplete, 0
	case v.Phase == timer.PhaseRunning && r.State.AnchorMillis != nil:
		v.Remaining = clock.Remaining(conf.Duration, *r.State.AnchorMillis, clock.NowMillis(clock.System{}))
	}
	v.Studied = clock.StudiedPaused(conf.Duration, v.Remaining)
	return v
}

func init() {
	statusCmd.Flags().BoolVar(&statusShort, "short", false, "one-line prompt segment, empty when idle")
	rootCmd.AddCommand(statusCmd)
}
