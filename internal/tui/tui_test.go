package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/pomotrack/internal/clock"
	"github.com/fakeyudi/pomotrack/internal/guard"
	"github.com/fakeyudi/pomotrack/internal/journal"
	"github.com/fakeyudi/pomotrack/internal/registration"
	"github.com/fakeyudi/pomotrack/internal/store"
	"github.com/fakeyudi/pomotrack/internal/timer"
)

type okRegistrar struct{}

func (okRegistrar) Register(_ context.Context, req registration.Request) (*registration.StudySession, error) {
	return &registration.StudySession{ID: 7, Minutes: req.Minutes}, nil
}

func newModel(t *testing.T) (Model, *timer.Engine, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 10, 16, 9, 0, 0, 0, time.Local))
	cat := timer.DefaultCatalog()
	slot := store.NewMemorySlot()
	e := timer.New(timer.Options{
		Catalog:    cat,
		Clock:      fake,
		Store:      store.NewTimerStore(slot, cat, fake, nil),
		Reporter:   guard.New(slot, okRegistrar{}, guard.Options{Clock: fake}),
		ManualTick: true,
	})
	t.Cleanup(func() { e.Close(context.Background()) })

	m := New(Options{Engine: e, Journal: func() ([]journal.Entry, error) {
		return []journal.Entry{{Timestamp: fake.Now(), Kind: "study", Minutes: 45, Outcome: journal.OutcomeRegistered}}, nil
	}})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model), e, fake
}

func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	updated, _ := m.Update(k)
	return updated.(Model)
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestSpaceTogglesTimer(t *testing.T) {
	m, e, fake := newModel(t)
	assert.Contains(t, m.View(), "45:00")

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.Equal(t, timer.PhaseRunning, e.Snapshot().Phase)

	fake.Advance(90 * time.Second)
	updated, cmd := m.Update(tickMsg(fake.Now()))
	m = updated.(Model)
	assert.NotNil(t, cmd, "ticks reschedule themselves")
	assert.Contains(t, m.View(), "43:30")

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.Equal(t, timer.PhasePaused, e.Snapshot().Phase)
}

func TestKindKeys(t *testing.T) {
	m, e, _ := newModel(t)
	m = press(t, m, runes("2"))
	assert.Equal(t, timer.KindShortBreak, e.Snapshot().Kind)
	assert.Contains(t, m.View(), "10:00")

	m = press(t, m, runes("3"))
	assert.Contains(t, m.View(), "Long break")
}

func TestFinishTooSoonShowsStatus(t *testing.T) {
	m, _, fake := newModel(t)
	m = press(t, m, runes("p"))
	fake.Advance(10 * time.Second)
	m = press(t, m, runes("f"))
	assert.Contains(t, m.status, "at least a minute")
}

func TestBlurredTerminalStillCompletes(t *testing.T) {
	m, e, fake := newModel(t)
	m = press(t, m, runes("p"))

	updated, _ := m.Update(tea.BlurMsg{})
	m = updated.(Model)
	assert.Contains(t, m.View(), "hidden")

	for i := 0; i < 10; i++ {
		fake.Advance(5 * time.Minute)
		updated, _ = m.Update(tickMsg(fake.Now()))
		m = updated.(Model)
	}
	assert.Equal(t, timer.PhaseComplete, e.State().Phase, "ticks keep evaluating while hidden")
	assert.Contains(t, m.View(), "00:00")

	updated, _ = m.Update(tea.FocusMsg{})
	m = updated.(Model)
	assert.NotContains(t, m.View(), "hidden")
	assert.Equal(t, timer.PhaseComplete, e.State().Phase)
}

func TestFocusEvaluatesImmediately(t *testing.T) {
	m, e, fake := newModel(t)
	m = press(t, m, runes("p"))
	updated, _ := m.Update(tea.BlurMsg{})
	m = updated.(Model)

	fake.Advance(46 * time.Minute)
	updated, _ = m.Update(tea.FocusMsg{})
	m = updated.(Model)
	assert.Equal(t, timer.PhaseComplete, e.State().Phase)
	assert.Contains(t, m.View(), "00:00")
}

func TestEventsUpdateStatus(t *testing.T) {
	m, _, _ := newModel(t)
	updated, cmd := m.Update(eventMsg(timer.Event{
		Type:    timer.EventRegistered,
		Session: &registration.StudySession{ID: 3, Minutes: 45},
	}))
	m = updated.(Model)
	assert.Contains(t, m.status, "registered 45 min")
	assert.NotNil(t, cmd, "keeps listening for events")

	updated, _ = m.Update(eventMsg(timer.Event{Type: timer.EventRegistrationFailed, Err: errors.New("down")}))
	m = updated.(Model)
	assert.Contains(t, m.status, "retry")
}

func TestJournalTab(t *testing.T) {
	m, _, _ := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	view := m.View()
	assert.Contains(t, view, "Recent completions")
	assert.Contains(t, view, "registered")
}

func TestQuit(t *testing.T) {
	m, _, _ := newModel(t)
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestProgressBarWidth(t *testing.T) {
	for _, frac := range []float64{0, 0.5, 1, 1.5} {
		bar := progressBar(frac, 20)
		assert.Equal(t, 20, strings.Count(bar, "█")+strings.Count(bar, "░"))
	}
}
