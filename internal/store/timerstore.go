package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fakeyudi/pomotrack/internal/clock"
	"github.com/fakeyudi/pomotrack/internal/guard"
	"github.com/fakeyudi/pomotrack/internal/timer"
)

const (
	// StateKey holds the timer snapshot.
	StateKey = "timer_state"
	// PendingKey holds the last completion that has not been confirmed by
	// the backend.
	PendingKey = "pending_completion"
)

// StaleAfter is the age past which a snapshot is discarded on load.
const StaleAfter = 24 * time.Hour

// ErrCorruptState marks a snapshot that cannot be decoded or validated.
var ErrCorruptState = errors.New("corrupt timer state")

// snapshot is the on-disk shape of timer.State.
type snapshot struct {
	Kind                string `json:"kind"`
	Phase               string `json:"phase"`
	RemainingSeconds    int    `json:"remainingSeconds"`
	AnchorEpochMillis   *int64 `json:"anchorEpochMillis"`
	PausedElapsedMillis int64  `json:"pausedElapsedMillis,omitempty"`
	PersistedAtMillis   int64  `json:"persistedAtEpochMillis"`
}

// TimerStore persists timer.State in a Slot. It satisfies timer.StateStore.
type TimerStore struct {
	slot    Slot
	catalog timer.Catalog
	clock   clock.Clock
	logger  *slog.Logger
}

// NewTimerStore returns a TimerStore over slot. catalog supplies the
// durations needed to recompute remaining time on load.
func NewTimerStore(slot Slot, catalog timer.Catalog, c clock.Clock, logger *slog.Logger) *TimerStore {
	if c == nil {
		c = clock.System{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TimerStore{slot: slot, catalog: catalog, clock: c, logger: logger}
}

// Save stamps s with the current time and writes it.
func (ts *TimerStore) Save(s timer.State) (timer.State, error) {
	s.PersistedAtMillis = clock.NowMillis(ts.clock)
	data, err := json.Marshal(snapshot{
		Kind:                string(s.Kind),
		Phase:               string(s.Phase),
		RemainingSeconds:    s.RemainingSeconds,
		AnchorEpochMillis:   s.AnchorMillis,
		PausedElapsedMillis: s.PausedElapsedMillis,
		PersistedAtMillis:   s.PersistedAtMillis,
	})
	if err != nil {
		return s, fmt.Errorf("failed to persist timer state: %w", err)
	}
	if err := ts.slot.Put(StateKey, data); err != nil {
		return s, err
	}
	return s, nil
}

// Load reads the snapshot back. It reports ok=false when there is nothing
// usable: no snapshot, a corrupt one, one older than StaleAfter, or an I/O
// failure. Corrupt and stale snapshots are deleted.
//
// A Running snapshot keeps its anchor, so the remaining time reflects the
// time the process was gone. If that time has run out the state is returned
// as Complete with Expired set.
func (ts *TimerStore) Load() (timer.Restored, bool) {
	data, err := ts.slot.Get(StateKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			ts.logger.Warn("reading timer state", "err", err)
		}
		return timer.Restored{}, false
	}

	now := clock.NowMillis(ts.clock)
	restored, err := ts.decode(data, now)
	if err != nil {
		ts.logger.Warn("discarding timer state", "err", err, "path", ts.slot.Path(StateKey))
		ts.discard(StateKey)
		return timer.Restored{}, false
	}
	if age := now - restored.State.PersistedAtMillis; age > StaleAfter.Milliseconds() {
		ts.logger.Info("discarding stale timer state", "age", time.Duration(age)*time.Millisecond)
		ts.discard(StateKey)
		return timer.Restored{}, false
	}
	return restored, true
}

func (ts *TimerStore) decode(data []byte, now int64) (timer.Restored, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return timer.Restored{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	kind := timer.Kind(snap.Kind)
	duration := ts.catalog.Duration(kind)
	phase := timer.Phase(snap.Phase)
	switch {
	case duration == 0:
		return timer.Restored{}, fmt.Errorf("%w: unknown kind %q", ErrCorruptState, snap.Kind)
	case !phase.Valid():
		return timer.Restored{}, fmt.Errorf("%w: unknown phase %q", ErrCorruptState, snap.Phase)
	case snap.RemainingSeconds < 0:
		return timer.Restored{}, fmt.Errorf("%w: negative remaining %d", ErrCorruptState, snap.RemainingSeconds)
	case snap.PersistedAtMillis <= 0:
		return timer.Restored{}, fmt.Errorf("%w: missing persistedAt", ErrCorruptState)
	case phase == timer.PhasePaused && snap.RemainingSeconds == 0:
		return timer.Restored{}, fmt.Errorf("%w: paused with nothing remaining", ErrCorruptState)
	}

	s := timer.State{
		Kind:              kind,
		Phase:             phase,
		RemainingSeconds:  min(snap.RemainingSeconds, duration),
		PersistedAtMillis: snap.PersistedAtMillis,
	}
	switch phase {
	case timer.PhaseRunning:
		anchor := clock.AnchorFor(snap.PersistedAtMillis, duration, s.RemainingSeconds)
		if snap.AnchorEpochMillis != nil {
			anchor = *snap.AnchorEpochMillis
		}
		s.RemainingSeconds = clock.Remaining(duration, anchor, now)
		if s.RemainingSeconds == 0 {
			s.Phase = timer.PhaseComplete
			return timer.Restored{State: s, Expired: true}, nil
		}
		s.AnchorMillis = &anchor
	case timer.PhasePaused:
		// Sub-second precision only counts if it agrees with the snapshot.
		if e := snap.PausedElapsedMillis; e > 0 && e < int64(duration)*1000 && duration-int(e/1000) == s.RemainingSeconds {
			s.PausedElapsedMillis = e
		}
	case timer.PhaseReady:
		s.RemainingSeconds = duration
	case timer.PhaseComplete:
		s.RemainingSeconds = 0
	}
	return timer.Restored{State: s}, nil
}

// SavePending records c as reported but not yet confirmed.
func (ts *TimerStore) SavePending(c guard.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to persist pending completion: %w", err)
	}
	return ts.slot.Put(PendingKey, data)
}

// LoadPending returns the unconfirmed completion, if any. Pending
// completions older than StaleAfter are dropped.
func (ts *TimerStore) LoadPending() (guard.Completion, bool) {
	data, err := ts.slot.Get(PendingKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			ts.logger.Warn("reading pending completion", "err", err)
		}
		return guard.Completion{}, false
	}
	var c guard.Completion
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		ts.logger.Warn("discarding corrupt pending completion", "err", err)
		ts.discard(PendingKey)
		return guard.Completion{}, false
	}
	if clock.NowMillis(ts.clock)-c.ObservedAtMillis > StaleAfter.Milliseconds() {
		ts.discard(PendingKey)
		return guard.Completion{}, false
	}
	return c, true
}

// ClearPending forgets the pending completion.
func (ts *TimerStore) ClearPending() error {
	return ts.slot.Delete(PendingKey)
}

func (ts *TimerStore) discard(key string) {
	if err := ts.slot.Delete(key); err != nil {
		ts.logger.Warn("deleting slot key", "key", key, "err", err)
	}
}
