package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configurable pomotrack settings as they appear on disk.
// Durations are Go duration strings ("45m", "250ms").
type Config struct {
	StudyDuration      string `json:"study_duration" yaml:"study_duration"`
	ShortBreakDuration string `json:"short_break_duration" yaml:"short_break_duration"`
	LongBreakDuration  string `json:"long_break_duration" yaml:"long_break_duration"`
	TickInterval       string `json:"tick_interval" yaml:"tick_interval"`
	SuppressionWindow  string `json:"suppression_window" yaml:"suppression_window"`
	InFlightCeiling    string `json:"inflight_ceiling" yaml:"inflight_ceiling"`
	RequestTimeout     string `json:"request_timeout" yaml:"request_timeout"`
	APIBaseURL         string `json:"api_base_url" yaml:"api_base_url"`
	ListenAddr         string `json:"listen_addr" yaml:"listen_addr"` // for `pomotrack serve`
	Subject            string `json:"subject" yaml:"subject"`
	LogLevel           string `json:"log_level" yaml:"log_level"` // debug | info | warn | error
	DataDir            string `json:"data_dir" yaml:"data_dir"`   // override XDG data dir
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		StudyDuration:      "45m",
		ShortBreakDuration: "10m",
		LongBreakDuration:  "15m",
		TickInterval:       "250ms",
		SuppressionWindow:  "5s",
		InFlightCeiling:    "30s",
		RequestTimeout:     "10s",
		APIBaseURL:         "http://localhost:5000",
		ListenAddr:         "localhost:5000",
		Subject:            "Pomodoro",
		LogLevel:           "info",
	}
}

// Dir returns ~/.config/pomotrack.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pomotrack"), nil
}

// LoadGlobal reads ~/.config/pomotrack/config.json, or config.yaml when no
// JSON file exists. Returns defaults if neither is present.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg, err := loadFirst(filepath.Join(dir, "config.json"), filepath.Join(dir, "config.yaml"))
	if err != nil || cfg != nil {
		return cfg, err
	}
	d := Defaults()
	return &d, nil
}

// LoadProject reads .pomotrackrc (JSON) or .pomotrackrc.yaml in the current
// working directory. Returns nil (no error) if neither is present.
func LoadProject() (*Config, error) {
	return loadFirst(".pomotrackrc", ".pomotrackrc.yaml")
}

func loadFirst(paths ...string) (*Config, error) {
	for _, p := range paths {
		cfg, err := loadFile(p)
		if err != nil || cfg != nil {
			return cfg, err
		}
	}
	return nil, nil
}

// loadFile parses path as YAML when its extension says so and as JSON
// otherwise. A missing file yields nil, nil.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer == nil {
			continue
		}
		set(&result.StudyDuration, layer.StudyDuration)
		set(&result.ShortBreakDuration, layer.ShortBreakDuration)
		set(&result.LongBreakDuration, layer.LongBreakDuration)
		set(&result.TickInterval, layer.TickInterval)
		set(&result.SuppressionWindow, layer.SuppressionWindow)
		set(&result.InFlightCeiling, layer.InFlightCeiling)
		set(&result.RequestTimeout, layer.RequestTimeout)
		set(&result.APIBaseURL, layer.APIBaseURL)
		set(&result.ListenAddr, layer.ListenAddr)
		set(&result.Subject, layer.Subject)
		set(&result.LogLevel, layer.LogLevel)
		set(&result.DataDir, layer.DataDir)
	}
	return result
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Settings is a validated Config.
type Settings struct {
	StudyDuration      time.Duration
	ShortBreakDuration time.Duration
	LongBreakDuration  time.Duration
	TickInterval       time.Duration
	SuppressionWindow  time.Duration
	InFlightCeiling    time.Duration
	RequestTimeout     time.Duration
	APIBaseURL         string
	ListenAddr         string
	Subject            string
	LogLevel           slog.Level
	DataDir            string
}

// Resolve validates c and converts it to Settings. Empty fields take their
// defaults.
func (c Config) Resolve() (Settings, error) {
	c = Merge(&c, nil)
	s := Settings{
		APIBaseURL: c.APIBaseURL,
		ListenAddr: c.ListenAddr,
		Subject:    c.Subject,
		DataDir:    c.DataDir,
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
		min time.Duration
	}{
		{"study_duration", c.StudyDuration, &s.StudyDuration, time.Second},
		{"short_break_duration", c.ShortBreakDuration, &s.ShortBreakDuration, time.Second},
		{"long_break_duration", c.LongBreakDuration, &s.LongBreakDuration, time.Second},
		{"tick_interval", c.TickInterval, &s.TickInterval, time.Millisecond},
		{"suppression_window", c.SuppressionWindow, &s.SuppressionWindow, time.Millisecond},
		{"inflight_ceiling", c.InFlightCeiling, &s.InFlightCeiling, time.Second},
		{"request_timeout", c.RequestTimeout, &s.RequestTimeout, time.Millisecond},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Settings{}, &ValueError{Key: d.key, Value: d.raw, Reason: "not a duration"}
		}
		if v < d.min {
			return Settings{}, &ValueError{Key: d.key, Value: d.raw, Reason: "must be at least " + d.min.String()}
		}
		*d.dst = v
	}
	if !strings.HasPrefix(s.APIBaseURL, "http://") && !strings.HasPrefix(s.APIBaseURL, "https://") {
		return Settings{}, &ValueError{Key: "api_base_url", Value: s.APIBaseURL, Reason: "must be an http(s) URL"}
	}
	if err := s.LogLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return Settings{}, &ValueError{Key: "log_level", Value: c.LogLevel, Reason: "want debug, info, warn or error"}
	}
	return s, nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValueError is returned by Resolve for a field with an unusable value.
type ValueError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("config %s=%q: %s", e.Key, e.Value, e.Reason)
}
