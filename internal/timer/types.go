package timer

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current phase.
	ErrInvalidTransition = errors.New("invalid timer transition")
	// ErrTooSoon is returned when finishing early before a minute of study.
	ErrTooSoon = errors.New("too soon to finish")
	// ErrUnknownKind is returned for a kind outside the catalog.
	ErrUnknownKind = errors.New("unknown interval kind")
)

// MinFinishSeconds is the least studied time FinishEarly accepts.
const MinFinishSeconds = 60

// Kind names an interval type.
type Kind string

const (
	KindStudy      Kind = "study"
	KindShortBreak Kind = "short_break"
	KindLongBreak  Kind = "long_break"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindStudy, KindShortBreak, KindLongBreak}

// ParseKind accepts a kind name or one of its short aliases.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "study", "focus", "pomodoro":
		return KindStudy, nil
	case "short_break", "short", "shortbreak", "short-break":
		return KindShortBreak, nil
	case "long_break", "long", "longbreak", "long-break":
		return KindLongBreak, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Phase is the lifecycle position of the current interval.
type Phase string

const (
	PhaseReady    Phase = "ready"
	PhaseRunning  Phase = "running"
	PhasePaused   Phase = "paused"
	PhaseComplete Phase = "complete"
)

// Valid reports whether p is one of the four phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseReady, PhaseRunning, PhasePaused, PhaseComplete:
		return true
	}
	return false
}

// Configuration describes one kind of interval.
type Configuration struct {
	Kind     Kind
	Duration int // whole seconds, > 0
	Label    string
}

// Catalog maps each kind to its configuration. It is read-only once built.
type Catalog struct {
	entries map[Kind]Configuration
}

// DefaultCatalog returns 45/10/15 minute study, short and long break intervals.
func DefaultCatalog() Catalog {
	c, _ := NewCatalog(45*time.Minute, 10*time.Minute, 15*time.Minute)
	return c
}

// NewCatalog builds a Catalog. Each duration must be at least one second and
// is truncated to whole seconds.
func NewCatalog(study, shortBreak, longBreak time.Duration) (Catalog, error) {
	entries := map[Kind]Configuration{
		KindStudy:      {Kind: KindStudy, Duration: int(study / time.Second), Label: "Focus"},
		KindShortBreak: {Kind: KindShortBreak, Duration: int(shortBreak / time.Second), Label: "Short break"},
		KindLongBreak:  {Kind: KindLongBreak, Duration: int(longBreak / time.Second), Label: "Long break"},
	}
	for _, k := range Kinds {
		if entries[k].Duration < 1 {
			return Catalog{}, fmt.Errorf("%s duration must be at least 1s", k)
		}
	}
	return Catalog{entries: entries}, nil
}

// Lookup returns the configuration for k.
func (c Catalog) Lookup(k Kind) (Configuration, bool) {
	cfg, ok := c.entries[k]
	return cfg, ok
}

// Duration returns the interval length of k in seconds, or 0 if unknown.
func (c Catalog) Duration(k Kind) int {
	return c.entries[k].Duration
}

// State is the persisted timer state.
//
// AnchorMillis is set exactly while Running. RemainingSeconds is the pause
// snapshot, the full duration when Ready, zero when Complete and the last
// evaluated value while Running. PausedElapsedMillis keeps the sub-second
// part of the elapsed time while Paused so resuming loses nothing.
type State struct {
	Kind                Kind
	Phase               Phase
	AnchorMillis        *int64
	RemainingSeconds    int
	PausedElapsedMillis int64
	PersistedAtMillis   int64
}

// Restored is a State read back from durable storage. Expired is set when a
// Running snapshot ran out while no process was evaluating it; the state has
// already been moved to Complete and the completion still needs reporting.
type Restored struct {
	State   State
	Expired bool
}

// View is a read-only snapshot for display.
type View struct {
	Kind      Kind
	Label     string
	Phase     Phase
	Duration  int
	Remaining int
	Studied   int
}

// Clock renders v.Remaining as MM:SS.
func (v View) Clock() string {
	return fmt.Sprintf("%02d:%02d", v.Remaining/60, v.Remaining%60)
}

// Progress returns the fraction of the interval elapsed, in [0, 1].
func (v View) Progress() float64 {
	if v.Duration <= 0 {
		return 0
	}
	return float64(v.Studied) / float64(v.Duration)
}
