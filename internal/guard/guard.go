// Package guard ensures a completed study interval is registered at most once,
// no matter how many triggers observe the completion.
//
// A completion is identified by its content (kind, studied minutes and the
// time it was observed) rather than by an ID, so two independent observers of
// the same interval end collapse into one registration. Markers are persisted
// in a durable slot: an in-flight marker is written before the registration
// call and a completed marker after it resolves, so a restart in the middle
// of the window still suppresses duplicates.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/fakeyudi/pomotrack/internal/clock"
	"github.com/fakeyudi/pomotrack/internal/registration"
)

// SlotKey is the durable slot key holding the marker set.
const SlotKey = "completion_guard"

const (
	// DefaultWindow is how close two observations must be to count as the
	// same completion.
	DefaultWindow = 5 * time.Second
	// DefaultInFlightCeiling is how long an unresolved in-flight marker keeps
	// suppressing before it is treated as abandoned.
	DefaultInFlightCeiling = 30 * time.Second
)

var (
	// ErrNothingToReport is returned for completions with no studied minutes.
	ErrNothingToReport = errors.New("nothing to report")
	// ErrRegistrationFailed matches every *RegistrationError.
	ErrRegistrationFailed = errors.New("registration failed")
	// ErrInFlight is returned when this completion ID is already being
	// registered. The outcome of that attempt is not known yet.
	ErrInFlight = errors.New("registration already in flight")
)

// RegistrationError wraps the registrar's failure for one completion.
type RegistrationError struct {
	CompletionID string
	Err          error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed for completion %s: %v", e.CompletionID, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Is reports ErrRegistrationFailed as a match.
func (e *RegistrationError) Is(target error) bool { return target == ErrRegistrationFailed }

// Completion is one observation of an interval reaching its end (or being
// finished early).
type Completion struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	StudiedMinutes   int    `json:"studiedMinutes"`
	ObservedAtMillis int64  `json:"observedAtEpochMillis"`
	Subject          string `json:"subject,omitempty"`
}

// Slot is the durable key/value storage the guard keeps its markers in.
// A missing key must be reported with an error matching fs.ErrNotExist.
type Slot interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

// Options configures a Guard. Zero values select the defaults.
type Options struct {
	Window          time.Duration
	InFlightCeiling time.Duration
	Clock           clock.Clock
	Logger          *slog.Logger
}

// Stats counts guard outcomes since construction.
type Stats struct {
	Registered int
	Suppressed int
	Failed     int
}

type markerState string

const (
	stateInFlight  markerState = "inflight"
	stateCompleted markerState = "completed"
)

type marker struct {
	CompletionID     string      `json:"completionId"`
	Kind             string      `json:"kind"`
	Minutes          int         `json:"minutes"`
	ObservedAtMillis int64       `json:"observedAtEpochMillis"`
	State            markerState `json:"state"`
	UpdatedAtMillis  int64       `json:"updatedAtEpochMillis"`
}

// Guard deduplicates completions in front of a registration.Registrar.
type Guard struct {
	slot      Slot
	registrar registration.Registrar
	window    int64
	ceiling   int64
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	markers []marker // last known marker set, used if the slot is unreadable
	stats   Stats
}

// New returns a Guard persisting its markers in slot.
func New(slot Slot, registrar registration.Registrar, opts Options) *Guard {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.InFlightCeiling <= 0 {
		opts.InFlightCeiling = DefaultInFlightCeiling
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Guard{
		slot:      slot,
		registrar: registrar,
		window:    opts.Window.Milliseconds(),
		ceiling:   opts.InFlightCeiling.Milliseconds(),
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
}

// ReportCompletion registers c unless an equivalent completion is already in
// flight or was registered within the window. A suppressed attempt returns
// (nil, nil). A retry of a completion whose earlier attempt has not resolved
// returns ErrInFlight. Registrar failures come back as *RegistrationError.
func (g *Guard) ReportCompletion(ctx context.Context, c Completion) (*registration.StudySession, error) {
	if c.StudiedMinutes <= 0 {
		return nil, ErrNothingToReport
	}

	g.mu.Lock()
	now := clock.NowMillis(g.clock)
	markers := g.prune(g.load(), now)
	for _, m := range markers {
		if m.CompletionID == c.ID && m.State == stateInFlight {
			g.mu.Unlock()
			g.logger.Info("completion already in flight", "completion", c.ID)
			return nil, ErrInFlight
		}
		if g.equivalent(m, c) {
			g.stats.Suppressed++
			g.mu.Unlock()
			g.logger.Info("completion suppressed",
				"completion", c.ID,
				"duplicate_of", m.CompletionID,
				"marker", string(m.State))
			return nil, nil
		}
	}
	markers = append(markers, marker{
		CompletionID:     c.ID,
		Kind:             c.Kind,
		Minutes:          c.StudiedMinutes,
		ObservedAtMillis: c.ObservedAtMillis,
		State:            stateInFlight,
		UpdatedAtMillis:  now,
	})
	g.save(markers)
	g.mu.Unlock()

	session, err := g.registrar.Register(ctx, registration.Request{
		Date:           time.UnixMilli(c.ObservedAtMillis).Format(registration.DateLayout),
		Minutes:        c.StudiedMinutes,
		Subject:        c.Subject,
		IdempotencyKey: c.ID,
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	now = clock.NowMillis(g.clock)
	markers = g.prune(g.load(), now)
	if err != nil {
		g.stats.Failed++
		g.save(without(markers, c.ID))
		return nil, &RegistrationError{CompletionID: c.ID, Err: err}
	}

	g.stats.Registered++
	done := marker{
		CompletionID:     c.ID,
		Kind:             c.Kind,
		Minutes:          c.StudiedMinutes,
		ObservedAtMillis: c.ObservedAtMillis,
		State:            stateCompleted,
		UpdatedAtMillis:  now,
	}
	g.save(append(without(markers, c.ID), done))
	return session, nil
}

// Clear drops every marker, in memory and in the slot.
func (g *Guard) Clear() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markers = nil
	data, _ := json.Marshal([]marker{})
	if err := g.slot.Put(SlotKey, data); err != nil {
		return fmt.Errorf("clearing completion guard: %w", err)
	}
	return nil
}

// Stats returns the outcome counters.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *Guard) equivalent(m marker, c Completion) bool {
	if m.Kind != c.Kind || m.Minutes != c.StudiedMinutes {
		return false
	}
	d := m.ObservedAtMillis - c.ObservedAtMillis
	if d < 0 {
		d = -d
	}
	return d <= g.window
}

// prune drops completed markers older than the window and in-flight markers
// older than the ceiling.
func (g *Guard) prune(markers []marker, now int64) []marker {
	kept := markers[:0:0]
	for _, m := range markers {
		age := now - m.UpdatedAtMillis
		switch m.State {
		case stateCompleted:
			if age > g.window {
				continue
			}
		case stateInFlight:
			if age > g.ceiling {
				g.logger.Warn("abandoning stale in-flight completion", "completion", m.CompletionID)
				continue
			}
		default:
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func (g *Guard) load() []marker {
	data, err := g.slot.Get(SlotKey)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		g.logger.Warn("reading completion guard", "err", err)
		return append([]marker(nil), g.markers...)
	}
	var markers []marker
	if err := json.Unmarshal(data, &markers); err != nil {
		g.logger.Warn("discarding corrupt completion guard", "err", err)
		return nil
	}
	return markers
}

func (g *Guard) save(markers []marker) {
	g.markers = append([]marker(nil), markers...)
	data, err := json.Marshal(markers)
	if err != nil {
		g.logger.Warn("encoding completion guard", "err", err)
		return
	}
	if err := g.slot.Put(SlotKey, data); err != nil {
		g.logger.Warn("persisting completion guard", "err", err)
	}
}

func without(markers []marker, id string) []marker {
	kept := markers[:0:0]
	for _, m := range markers {
		if m.CompletionID != id {
			kept = append(kept, m)
		}
	}
	return kept
}
