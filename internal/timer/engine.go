// Package timer implements the session timer state machine.
//
// Remaining time is never counted down tick by tick. While an interval runs
// the engine keeps a wall-clock anchor and recomputes remaining time from it
// on every evaluation, so a suspended process or a hidden terminal picks up
// exactly where real time says it should be. The tick loop only triggers
// evaluations.
package timer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/pomotrack/internal/clock"
	"github.com/fakeyudi/pomotrack/internal/guard"
	"github.com/fakeyudi/pomotrack/internal/journal"
	"github.com/fakeyudi/pomotrack/internal/registration"
)

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("timer engine closed")

const (
	DefaultTickInterval = 250 * time.Millisecond
	MinTickInterval     = 100 * time.Millisecond
	MaxTickInterval     = time.Second
)

// DefaultSubject labels registered sessions when no subject is configured.
const DefaultSubject = "Pomodoro"

// StateStore persists engine state across processes.
type StateStore interface {
	Save(s State) (State, error)
	Load() (Restored, bool)
	SavePending(c guard.Completion) error
	LoadPending() (guard.Completion, bool)
	ClearPending() error
}

// Reporter registers completions at most once.
type Reporter interface {
	ReportCompletion(ctx context.Context, c guard.Completion) (*registration.StudySession, error)
	Clear() error
}

// Options configures an Engine. Store and Reporter are required.
type Options struct {
	Catalog      Catalog
	Clock        clock.Clock
	Store        StateStore
	Reporter     Reporter
	Journal      journal.Recorder
	Logger       *slog.Logger
	TickInterval time.Duration
	Subject      string

	// ManualTick disables the internal tick loop. The caller drives
	// evaluation through Evaluate, as a front end with its own ticker does.
	ManualTick bool
}

// Engine owns one timer. All operations are serialized by a mutex shared
// with the tick loop.
type Engine struct {
	catalog  Catalog
	clock    clock.Clock
	store    StateStore
	reporter Reporter
	journal  journal.Recorder
	logger   *slog.Logger
	tick     time.Duration
	manual   bool
	subject  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // in-flight reports

	mu          sync.Mutex
	state       State
	lastSaved   int64
	loopStop    chan struct{}
	pending     *guard.Completion
	inFlight    map[string]bool
	visible     bool
	subscribers []chan Event
	closed      bool
}

// New returns an Engine in the Ready phase on a study interval. Call Restore
// to pick up persisted state.
func New(opts Options) *Engine {
	if opts.Catalog.entries == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Journal == nil {
		opts.Journal = journal.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch {
	case opts.TickInterval <= 0:
		opts.TickInterval = DefaultTickInterval
	case opts.TickInterval < MinTickInterval:
		opts.TickInterval = MinTickInterval
	case opts.TickInterval > MaxTickInterval:
		opts.TickInterval = MaxTickInterval
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		catalog:  opts.Catalog,
		clock:    opts.Clock,
		store:    opts.Store,
		reporter: opts.Reporter,
		journal:  opts.Journal,
		logger:   opts.Logger,
		tick:     opts.TickInterval,
		manual:   opts.ManualTick,
		subject:  opts.Subject,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]bool),
		visible:  true,
		state: State{
			Kind:             KindStudy,
			Phase:            PhaseReady,
			RemainingSeconds: opts.Catalog.Duration(KindStudy),
		},
	}
}

// Restore loads persisted state. A running interval resumes its tick loop;
// one that ran out while no process was watching completes now, and the
// returned Report tracks its registration.
func (e *Engine) Restore() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	restored, ok := e.store.Load()
	e.loadPendingLocked()
	if !ok {
		return nil
	}
	return e.adoptLocked(restored)
}

// Reload re-reads the store after another process wrote it. The later write
// wins; writes this engine made itself are ignored.
func (e *Engine) Reload() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	restored, ok := e.store.Load()
	if !ok || restored.State.PersistedAtMillis <= e.lastSaved {
		return nil
	}
	e.logger.Debug("reloading timer state written elsewhere",
		"phase", string(restored.State.Phase),
		"kind", string(restored.State.Kind))
	e.loadPendingLocked()
	return e.adoptLocked(restored)
}

func (e *Engine) adoptLocked(restored Restored) *Report {
	e.stopLoopLocked()
	e.state = restored.State
	e.lastSaved = restored.State.PersistedAtMillis
	if restored.Expired {
		e.logger.Info("interval ran out while away", "kind", string(e.state.Kind))
		return e.completeLocked(e.ctx, clock.NowMillis(e.clock), e.durationLocked(), true)
	}
	e.emitLocked(EventStateChange)
	if e.state.Phase == PhaseRunning {
		e.startLoopLocked()
	}
	return nil
}

func (e *Engine) loadPendingLocked() {
	e.pending = nil
	if c, ok := e.store.LoadPending(); ok {
		e.pending = &c
	}
}

// Start begins or resumes the interval. Starting a Complete interval resets
// it first.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.startLocked()
}

func (e *Engine) startLocked() error {
	switch e.state.Phase {
	case PhaseRunning:
		return fmt.Errorf("%w: already running", ErrInvalidTransition)
	case PhaseComplete:
		e.resetLocked()
	}
	duration := e.durationLocked()
	remaining := e.state.RemainingSeconds
	if remaining <= 0 || remaining > duration {
		remaining = duration
	}
	now := clock.NowMillis(e.clock)
	anchor := clock.AnchorFor(now, duration, remaining)
	if elapsed := e.state.PausedElapsedMillis; elapsed > 0 && clock.Remaining(duration, now-elapsed, now) == remaining {
		anchor = now - elapsed
	}
	e.state.Phase = PhaseRunning
	e.state.AnchorMillis = &anchor
	e.state.RemainingSeconds = remaining
	e.state.PausedElapsedMillis = 0
	e.persistLocked()
	e.emitLocked(EventStateChange)
	e.startLoopLocked()
	e.logger.Debug("interval started", "kind", string(e.state.Kind), "remaining", remaining)
	return nil
}

// Pause freezes a running interval. If re-evaluating shows it already ran
// out, the interval completes instead and ErrInvalidTransition is returned.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.pauseLocked()
}

func (e *Engine) pauseLocked() error {
	if e.state.Phase != PhaseRunning {
		return fmt.Errorf("%w: cannot pause while %s", ErrInvalidTransition, e.state.Phase)
	}
	now := clock.NowMillis(e.clock)
	if r := e.evaluateAtLocked(now); r != nil {
		return fmt.Errorf("%w: interval already complete", ErrInvalidTransition)
	}
	e.stopLoopLocked()
	e.state.Phase = PhasePaused
	e.state.PausedElapsedMillis = max(0, now-*e.state.AnchorMillis)
	e.state.AnchorMillis = nil
	e.persistLocked()
	e.emitLocked(EventStateChange)
	return nil
}

// Toggle pauses a running interval and starts any other.
func (e *Engine) Toggle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.state.Phase == PhaseRunning {
		return e.pauseLocked()
	}
	return e.startLocked()
}

// Reset returns to Ready with the full duration of the current kind and
// forgets any completion suppression. An unconfirmed completion stays
// available to RetryReport.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.resetLocked()
	e.persistLocked()
	e.emitLocked(EventStateChange)
	return nil
}

func (e *Engine) resetLocked() {
	e.stopLoopLocked()
	e.state.Phase = PhaseReady
	e.state.AnchorMillis = nil
	e.state.RemainingSeconds = e.durationLocked()
	e.state.PausedElapsedMillis = 0
	if err := e.reporter.Clear(); err != nil {
		e.logger.Warn("clearing completion guard", "err", err)
	}
}

// SelectKind switches to kind k. It is refused while running.
func (e *Engine) SelectKind(k Kind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	cfg, ok := e.catalog.Lookup(k)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	if e.state.Phase == PhaseRunning {
		return fmt.Errorf("%w: cannot change kind while running", ErrInvalidTransition)
	}
	e.state.Kind = k
	e.state.Phase = PhaseReady
	e.state.AnchorMillis = nil
	e.state.RemainingSeconds = cfg.Duration
	e.state.PausedElapsedMillis = 0
	e.persistLocked()
	e.emitLocked(EventStateChange)
	return nil
}

// FinishEarly ends a running study interval and reports the time studied so
// far. Less than a minute of study returns ErrTooSoon and changes nothing.
func (e *Engine) FinishEarly(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.state.Phase != PhaseRunning {
		return nil, fmt.Errorf("%w: nothing running to finish", ErrInvalidTransition)
	}
	if e.state.Kind != KindStudy {
		return nil, fmt.Errorf("%w: only study intervals can be finished early", ErrInvalidTransition)
	}
	now := clock.NowMillis(e.clock)
	duration := e.durationLocked()
	studied := clock.StudiedRunning(duration, *e.state.AnchorMillis, now)
	if studied >= duration {
		return e.completeLocked(ctx, now, duration, true), nil
	}
	if studied < MinFinishSeconds {
		return nil, fmt.Errorf("%w: studied %ds, need at least %ds", ErrTooSoon, studied, MinFinishSeconds)
	}
	return e.completeLocked(ctx, now, studied, false), nil
}

// RetryReport re-submits the last unconfirmed study completion, typically
// after a registration failure. It works in any phase, so a failed
// completion survives starting the next interval.
func (e *Engine) RetryReport(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.pending == nil {
		return nil, fmt.Errorf("%w: no failed completion to retry", ErrInvalidTransition)
	}
	if e.inFlight[e.pending.ID] {
		return nil, fmt.Errorf("%w: report already in flight", ErrInvalidTransition)
	}
	c := *e.pending
	c.ObservedAtMillis = clock.NowMillis(e.clock)
	return e.dispatchLocked(ctx, c), nil
}

// Evaluate recomputes remaining time. It returns a Report when this
// evaluation completed the interval.
func (e *Engine) Evaluate() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	return e.evaluateLocked()
}

// SetVisible records whether the front end is visible. Becoming visible
// re-evaluates a running interval immediately.
func (e *Engine) SetVisible(visible bool) *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.visible = visible
	if !visible {
		e.logger.Debug("front end hidden")
		return nil
	}
	return e.evaluateLocked()
}

// Snapshot returns the current view without changing state.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, _ := e.catalog.Lookup(e.state.Kind)
	remaining := e.state.RemainingSeconds
	if e.state.Phase == PhaseRunning && e.state.AnchorMillis != nil {
		remaining = clock.Remaining(cfg.Duration, *e.state.AnchorMillis, clock.NowMillis(e.clock))
	}
	return View{
		Kind:      e.state.Kind,
		Label:     cfg.Label,
		Phase:     e.state.Phase,
		Duration:  cfg.Duration,
		Remaining: remaining,
		Studied:   clock.StudiedPaused(cfg.Duration, remaining),
	}
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	if s.AnchorMillis != nil {
		a := *s.AnchorMillis
		s.AnchorMillis = &a
	}
	return s
}

// Subscribe registers an observer channel. Events are dropped for observers
// whose buffer is full.
func (e *Engine) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	e.mu.Lock()
	if e.closed {
		close(ch)
	} else {
		e.subscribers = append(e.subscribers, ch)
	}
	e.mu.Unlock()
	return ch
}

// Close stops the tick loop, persists state and waits for in-flight reports
// until ctx is done. Observer channels are closed last.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stopLoopLocked()
	e.persistLocked()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for in-flight reports: %w", ctx.Err())
	}
	e.cancel()

	e.mu.Lock()
	subscribers := e.subscribers
	e.subscribers = nil
	e.mu.Unlock()
	for _, ch := range subscribers {
		close(ch)
	}
	return err
}

func (e *Engine) evaluateLocked() *Report {
	return e.evaluateAtLocked(clock.NowMillis(e.clock))
}

func (e *Engine) evaluateAtLocked(now int64) *Report {
	if e.state.Phase != PhaseRunning || e.state.AnchorMillis == nil {
		return nil
	}
	duration := e.durationLocked()
	remaining := clock.Remaining(duration, *e.state.AnchorMillis, now)
	if remaining == e.state.RemainingSeconds && remaining > 0 {
		return nil
	}
	e.state.RemainingSeconds = remaining
	if remaining > 0 {
		e.emitLocked(EventTick)
		return nil
	}
	return e.completeLocked(e.ctx, now, duration, true)
}

// completeLocked moves the interval to Complete and issues its report. The
// tick loop is stopped before anything is reported.
func (e *Engine) completeLocked(ctx context.Context, now int64, studiedSec int, natural bool) *Report {
	e.stopLoopLocked()
	kind := e.state.Kind
	e.state.Phase = PhaseComplete
	e.state.AnchorMillis = nil
	e.state.RemainingSeconds = 0
	e.state.PausedElapsedMillis = 0
	e.persistLocked()
	e.emitLocked(EventComplete)

	minutes := clock.StudiedMinutes(studiedSec)
	if natural && minutes == 0 && studiedSec > 0 {
		minutes = 1
	}
	e.logger.Info("interval complete",
		"kind", string(kind),
		"studied_seconds", studiedSec,
		"minutes", minutes,
		"early", !natural)

	return e.dispatchLocked(ctx, guard.Completion{
		ID:               uuid.NewString(),
		Kind:             string(kind),
		StudiedMinutes:   minutes,
		ObservedAtMillis: now,
		Subject:          e.subject,
	})
}

func (e *Engine) dispatchLocked(ctx context.Context, c guard.Completion) *Report {
	r := newReport(c)
	if Kind(c.Kind) != KindStudy {
		e.record(journal.Entry{
			Timestamp:    time.UnixMilli(c.ObservedAtMillis),
			CompletionID: c.ID,
			Kind:         c.Kind,
			Minutes:      c.StudiedMinutes,
			Outcome:      journal.OutcomeBreak,
		})
		r.resolve(nil, nil, false)
		return r
	}

	if e.pending != nil && e.pending.ID != c.ID && !e.inFlight[e.pending.ID] {
		e.logger.Warn("replacing unregistered completion",
			"completion", e.pending.ID,
			"minutes", e.pending.StudiedMinutes)
	}
	e.pending = &c
	if err := e.store.SavePending(c); err != nil {
		e.logger.Warn("persisting pending completion", "err", err)
	}
	e.inFlight[c.ID] = true
	e.wg.Add(1)
	go e.deliver(ctx, r)
	return r
}

// deliver runs one registration attempt outside the engine lock.
func (e *Engine) deliver(ctx context.Context, r *Report) {
	defer e.wg.Done()
	c := r.Completion

	session, err := e.reporter.ReportCompletion(ctx, c)

	entry := journal.Entry{
		Timestamp:    e.clock.Now(),
		CompletionID: c.ID,
		Kind:         c.Kind,
		Minutes:      c.StudiedMinutes,
		Subject:      c.Subject,
	}
	var (
		eventType  EventType
		suppressed bool
		confirmed  = true
	)
	switch {
	case errors.Is(err, guard.ErrNothingToReport):
		entry.Outcome = journal.OutcomeNothing
	case errors.Is(err, guard.ErrInFlight):
		// Another attempt with this ID is still running; keep it pending.
		confirmed = false
		e.logger.Info("completion already being registered", "completion", c.ID)
	case err != nil:
		entry.Outcome = journal.OutcomeFailed
		entry.Error = err.Error()
		eventType = EventRegistrationFailed
		confirmed = false
		e.logger.Warn("registering completion", "completion", c.ID, "err", err)
	case session == nil:
		entry.Outcome = journal.OutcomeSuppressed
		eventType = EventSuppressed
		suppressed = true
	default:
		entry.Outcome = journal.OutcomeRegistered
		entry.SessionID = session.ID
		eventType = EventRegistered
		e.logger.Info("completion registered", "completion", c.ID, "session", session.ID, "minutes", session.Minutes)
	}
	if entry.Outcome != "" {
		e.record(entry)
	}

	e.mu.Lock()
	delete(e.inFlight, c.ID)
	if e.pending != nil && e.pending.ID == c.ID {
		if confirmed {
			e.clearPendingLocked()
		} else if err := e.store.SavePending(*e.pending); err != nil {
			e.logger.Warn("persisting pending completion", "err", err)
		}
	}
	if eventType != "" {
		e.emitEventLocked(Event{
			Type:    eventType,
			Kind:    Kind(c.Kind),
			Phase:   e.state.Phase,
			Session: session,
			Err:     err,
			At:      entry.Timestamp,
		})
	}
	e.mu.Unlock()

	r.resolve(session, err, suppressed)
}

func (e *Engine) record(entry journal.Entry) {
	if err := e.journal.Record(entry); err != nil {
		e.logger.Warn("journaling completion", "err", err)
	}
}

func (e *Engine) clearPendingLocked() {
	if e.pending == nil {
		return
	}
	e.pending = nil
	if err := e.store.ClearPending(); err != nil {
		e.logger.Warn("clearing pending completion", "err", err)
	}
}

func (e *Engine) persistLocked() {
	saved, err := e.store.Save(e.state)
	if err != nil {
		e.logger.Warn("persisting timer state", "err", err)
		return
	}
	e.state.PersistedAtMillis = saved.PersistedAtMillis
	e.lastSaved = saved.PersistedAtMillis
}

func (e *Engine) durationLocked() int {
	return e.catalog.Duration(e.state.Kind)
}

func (e *Engine) startLoopLocked() {
	e.stopLoopLocked()
	if e.manual {
		return
	}
	stop := make(chan struct{})
	e.loopStop = stop
	go e.run(stop)
}

func (e *Engine) stopLoopLocked() {
	if e.loopStop != nil {
		close(e.loopStop)
		e.loopStop = nil
	}
}

func (e *Engine) run(stop chan struct{}) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !e.tickOnce(stop) {
				return
			}
		}
	}
}

// tickOnce evaluates on behalf of the loop identified by stop. A tick from
// a loop that has since been replaced or cancelled does nothing.
func (e *Engine) tickOnce(stop chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loopStop != stop {
		return false
	}
	e.evaluateLocked()
	return e.loopStop == stop
}

func (e *Engine) emitLocked(t EventType) {
	e.emitEventLocked(Event{
		Type:      t,
		Kind:      e.state.Kind,
		Phase:     e.state.Phase,
		Remaining: e.state.RemainingSeconds,
		At:        e.clock.Now(),
	})
}

func (e *Engine) emitEventLocked(ev Event) {
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
