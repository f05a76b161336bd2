// Package profile manages the user's persistent pomotrack profile.
// The profile is stored at ~/.config/pomotrack/profile.json and is created
// once via the interactive setup flow, then referenced on every command.
// It holds the API token, so the file is written owner-only.
package profile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Profile holds user-level preferences set during first-run setup.
type Profile struct {
	Name          string `json:"name"`
	Subject       string `json:"subject"`        // subject attached to registered sessions
	APIToken      string `json:"api_token"`      // bearer token for the session API
	PromptSegment bool   `json:"prompt_segment"` // install shell prompt segment
	PromptShell   string `json:"prompt_shell"`   // "zsh" | "bash" | ""
}

// ConfigDir returns the pomotrack config directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pomotrack"), nil
}

func profilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := profilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk. Returns an error if the file is missing or malformed.
func Load() (*Profile, error) {
	p, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("profile not found, run 'pomotrack setup' to configure: %w", err)
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return &prof, nil
}

// Save writes the profile to disk, creating the config directory if needed.
func Save(prof *Profile) error {
	p, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(p, 0o600)
}

// RunSetup runs the interactive setup wizard over in/out and returns the
// resulting profile. If existing is non-nil, it is used as the default for
// each prompt (edit mode).
func RunSetup(in io.Reader, out io.Writer, existing *Profile) (*Profile, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		ans = strings.ToLower(ans)
		return ans == "y" || ans == "yes", nil
	}

	prof := &Profile{Subject: "Pomodoro"}
	if existing != nil {
		*prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │  pomotrack · first-time setup   │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	if prof.Name, err = ask("  Your name", prof.Name); err != nil {
		return nil, err
	}
	if prof.Subject, err = ask("  Subject for registered sessions", prof.Subject); err != nil {
		return nil, err
	}

	tokenHint := ""
	if prof.APIToken != "" {
		tokenHint = "keep current"
	}
	token, err := ask("  Session API token (empty for none)", tokenHint)
	if err != nil {
		return nil, err
	}
	if token != "keep current" {
		prof.APIToken = token
	}

	if prof.PromptSegment, err = askBool("  Show the timer in your shell prompt", prof.PromptSegment); err != nil {
		return nil, err
	}
	if prof.PromptSegment {
		def := prof.PromptShell
		if def == "" {
			def = DetectShell()
		}
		shell, err := ask("  Shell (zsh/bash)", def)
		if err != nil {
			return nil, err
		}
		if shell != "zsh" && shell != "bash" {
			return nil, fmt.Errorf("unsupported shell %q: want zsh or bash", shell)
		}
		prof.PromptShell = shell
	} else {
		prof.PromptShell = ""
	}

	fmt.Fprintln(out)
	return prof, nil
}

// DetectShell returns the base name of the current shell.
func DetectShell() string {
	shell := filepath.Base(os.Getenv("SHELL"))
	if shell == "zsh" || shell == "bash" {
		return shell
	}
	return "zsh"
}
