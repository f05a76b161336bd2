package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: pomotrack, Property 7: Config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.:-]{1,20}`)

	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasStudyDuration") {
			cfg.StudyDuration = nonEmptyString.Draw(t, "studyDuration")
		}
		if rapid.Bool().Draw(t, "hasAPIBaseURL") {
			cfg.APIBaseURL = nonEmptyString.Draw(t, "apiBaseURL")
		}
		if rapid.Bool().Draw(t, "hasDataDir") {
			cfg.DataDir = nonEmptyString.Draw(t, "dataDir")
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkStringField(t, "StudyDuration",
			global.StudyDuration, project.StudyDuration, defaults.StudyDuration,
			merged.StudyDuration)
		checkStringField(t, "APIBaseURL",
			global.APIBaseURL, project.APIBaseURL, defaults.APIBaseURL,
			merged.APIBaseURL)
		checkStringField(t, "DataDir",
			global.DataDir, project.DataDir, defaults.DataDir,
			merged.DataDir)
	})
}

// checkStringField asserts the merge precedence rule for a single string field:
// project over global over default.
func checkStringField(t *rapid.T, name, globalVal, projectVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case projectVal != "":
		if mergedVal != projectVal {
			t.Fatalf("%s: expected project value %q, got %q", name, projectVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

func TestDefaultsResolve(t *testing.T) {
	s, err := Defaults().Resolve()
	if err != nil {
		t.Fatalf("defaults must resolve: %v", err)
	}
	if s.StudyDuration != 45*time.Minute {
		t.Errorf("StudyDuration: want 45m, got %s", s.StudyDuration)
	}
	if s.ShortBreakDuration != 10*time.Minute || s.LongBreakDuration != 15*time.Minute {
		t.Errorf("breaks: want 10m/15m, got %s/%s", s.ShortBreakDuration, s.LongBreakDuration)
	}
	if s.SuppressionWindow != 5*time.Second {
		t.Errorf("SuppressionWindow: want 5s, got %s", s.SuppressionWindow)
	}
	if s.TickInterval != 250*time.Millisecond {
		t.Errorf("TickInterval: want 250ms, got %s", s.TickInterval)
	}
	if s.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: want info, got %s", s.LogLevel)
	}
	if s.Subject != "Pomodoro" {
		t.Errorf("Subject: want Pomodoro, got %q", s.Subject)
	}
}

func TestResolveRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
	}{
		{"not a duration", Config{StudyDuration: "forever"}, "study_duration"},
		{"sub-second interval", Config{ShortBreakDuration: "500ms"}, "short_break_duration"},
		{"zero window", Config{SuppressionWindow: "0s"}, "suppression_window"},
		{"bad url", Config{APIBaseURL: "localhost:5000"}, "api_base_url"},
		{"bad level", Config{LogLevel: "loud"}, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Resolve()
			var valErr *ValueError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected *ValueError, got %T: %v", err, err)
			}
			if valErr.Key != tt.key {
				t.Errorf("Key: want %q, got %q", tt.key, valErr.Key)
			}
		})
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if *cfg != Defaults() {
		t.Errorf("want defaults, got %+v", *cfg)
	}
}

func TestLoadGlobalYAML(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	dir := filepath.Join(tmp, ".config", "pomotrack")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	yml := "study_duration: 25m\nsubject: Algebra\nlog_level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := Merge(cfg, nil).Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if s.StudyDuration != 25*time.Minute || s.Subject != "Algebra" || s.LogLevel != slog.LevelDebug {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestLoadGlobalPrefersJSON(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	dir := filepath.Join(tmp, ".config", "pomotrack")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"subject":"json"}`), 0o644)
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("subject: yaml\n"), 0o644)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Subject != "json" {
		t.Errorf("Subject: want json, got %q", cfg.Subject)
	}
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadProjectYAML(t *testing.T) {
	chdir(t, t.TempDir())
	if err := os.WriteFile(".pomotrackrc.yaml", []byte("long_break_duration: 20m\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadProject()
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil || cfg.LongBreakDuration != "20m" {
		t.Errorf("unexpected project config %+v", cfg)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfgDir := filepath.Join(tmp, ".config", "pomotrack")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
