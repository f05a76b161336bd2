package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/pomotrack/internal/profile"
	"github.com/fakeyudi/pomotrack/internal/shell"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure pomotrack (re-run anytime to edit settings)",
	// Bypass the normal PersistentPreRunE so setup works before profile exists.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, false)
	},
}

// runSetup runs the interactive setup wizard.
// If firstRun is true, a welcome message is shown.
func runSetup(cmd *cobra.Command, firstRun bool) error {
	out := cmd.OutOrStdout()
	if firstRun {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Let's get you set up.")
	}

	// Load existing profile as defaults if present.
	var existing *profile.Profile
	if profile.Exists() {
		if p, err := profile.Load(); err == nil {
			existing = p
		}
	}

	prof, err := profile.RunSetup(cmd.InOrStdin(), out, existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if err := profile.Save(prof); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	fmt.Fprintln(out, "  ✓ Profile saved.")

	if prof.PromptSegment && prof.PromptShell != "" {
		if err := shell.Install(prof.PromptShell, out); err != nil {
			fmt.Fprintf(out, "  ⚠ Prompt segment install failed: %v\n", err)
			fmt.Fprintln(out, "    You can retry with: pomotrack setup")
		}
	}

	fmt.Fprintln(out, "  Setup complete. Run 'pomotrack start' to begin a focus interval.")
	fmt.Fprintln(out)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
