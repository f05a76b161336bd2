// Package tui provides a Bubble Tea front end for the session timer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/pomotrack/internal/journal"
	"github.com/fakeyudi/pomotrack/internal/timer"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(1, 4).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	outcomeOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	outcomeWarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	outcomeErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabTimer tabID = iota
	tabJournal
	tabCount
)

var tabNames = [tabCount]string{"Timer", "Journal"}

// ── Keys ────────────────────

type keyMap struct {
	Toggle, Reset, Study, Short, Long, Finish, Retry, NextTab, Help, Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Reset, k.Finish, k.NextTab, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Reset, k.Finish, k.Retry},
		{k.Study, k.Short, k.Long},
		{k.NextTab, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Toggle:  key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "start/pause")),
	Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
	Study:   key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "focus")),
	Short:   key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "short break")),
	Long:    key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "long break")),
	Finish:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish early")),
	Retry:   key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry report")),
	NextTab: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch view")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ── Engine ────────────────────

// Engine is the part of *timer.Engine the TUI drives.
type Engine interface {
	Snapshot() timer.View
	Toggle() error
	Reset() error
	SelectKind(k timer.Kind) error
	FinishEarly(ctx context.Context) (*timer.Report, error)
	RetryReport(ctx context.Context) (*timer.Report, error)
	Evaluate() *timer.Report
	SetVisible(visible bool) *timer.Report
	Subscribe(buffer int) <-chan timer.Event
}

// Options configures the TUI.
type Options struct {
	Engine Engine
	// Journal loads recent completion outcomes for the journal tab. Optional.
	Journal func() ([]journal.Entry, error)
	// Interval between evaluations. Zero means timer.DefaultTickInterval.
	Interval time.Duration
}

// ── Messages ────────────────────

type tickMsg time.Time

type eventMsg timer.Event

// ── Model ────────────────────

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	engine   Engine
	loadLog  func() ([]journal.Entry, error)
	interval time.Duration
	events   <-chan timer.Event

	view      timer.View
	activeTab tabID
	journal   viewport.Model
	help      help.Model
	status    string
	width     int
	height    int
	ready     bool
	visible   bool
}

// New creates a new TUI model driving opts.Engine.
func New(opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = timer.DefaultTickInterval
	}
	return Model{
		engine:   opts.Engine,
		loadLog:  opts.Journal,
		interval: opts.Interval,
		events:   opts.Engine.Subscribe(32),
		view:     opts.Engine.Snapshot(),
		help:     help.New(),
		visible:  true,
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), waitForEvent(m.events))
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForEvent(ch <-chan timer.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.engine.Evaluate()
		m.view = m.engine.Snapshot()
		return m, m.tick()

	case eventMsg:
		m.applyEvent(timer.Event(msg))
		m.view = m.engine.Snapshot()
		return m, waitForEvent(m.events)

	case tea.FocusMsg:
		m.visible = true
		m.engine.SetVisible(true)
		m.view = m.engine.Snapshot()
		return m, nil

	case tea.BlurMsg:
		m.visible = false
		m.engine.SetVisible(false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true
		m.initJournal()
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.NextTab):
		m.activeTab = (m.activeTab + 1) % tabCount
		if m.activeTab == tabJournal {
			m.refreshJournal()
		}
		return m, nil
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, keys.Toggle):
		err = m.engine.Toggle()
	case key.Matches(msg, keys.Reset):
		err = m.engine.Reset()
		m.status = ""
	case key.Matches(msg, keys.Study):
		err = m.engine.SelectKind(timer.KindStudy)
	case key.Matches(msg, keys.Short):
		err = m.engine.SelectKind(timer.KindShortBreak)
	case key.Matches(msg, keys.Long):
		err = m.engine.SelectKind(timer.KindLongBreak)
	case key.Matches(msg, keys.Finish):
		_, err = m.engine.FinishEarly(context.Background())
	case key.Matches(msg, keys.Retry):
		if _, err = m.engine.RetryReport(context.Background()); err == nil {
			m.status = "retrying registration…"
		}
	default:
		if m.activeTab == tabJournal {
			var cmd tea.Cmd
			m.journal, cmd = m.journal.Update(msg)
			return m, cmd
		}
		return m, nil
	}
	if err != nil {
		m.status = describe(err)
	}
	m.view = m.engine.Snapshot()
	return m, nil
}

func (m *Model) applyEvent(ev timer.Event) {
	switch ev.Type {
	case timer.EventComplete:
		m.status = m.view.Label + " complete"
	case timer.EventRegistered:
		m.status = outcomeOKStyle.Render(fmt.Sprintf("✓ registered %d min (session #%d)", ev.Session.Minutes, ev.Session.ID))
	case timer.EventSuppressed:
		m.status = outcomeWarnStyle.Render("duplicate completion ignored")
	case timer.EventRegistrationFailed:
		m.status = outcomeErrStyle.Render("registration failed, press R to retry")
	}
	if m.activeTab == tabJournal {
		m.refreshJournal()
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, timer.ErrTooSoon):
		return outcomeWarnStyle.Render("study at least a minute before finishing")
	case errors.Is(err, timer.ErrInvalidTransition):
		return outcomeWarnStyle.Render(err.Error())
	}
	return outcomeErrStyle.Render(err.Error())
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  pomotrack  " + m.view.Label)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	var content string
	switch m.activeTab {
	case tabTimer:
		content = m.renderTimer()
	case tabJournal:
		content = m.journal.View()
	}

	statusBar := statusBarStyle.Width(m.width).Render(m.status)
	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar, m.help.View(keys))
}

func (m Model) renderTimer() string {
	v := m.view
	var sb strings.Builder
	sb.WriteString("\n" + sectionHeader.Render("  "+v.Label) + dimStyle.Render("  "+string(v.Phase)) + "\n\n")
	sb.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(clockStyle.Render(v.Clock())) + "\n\n")

	barWidth := m.width - 12
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth > 0 {
		sb.WriteString("  " + progressBar(v.Progress(), barWidth) +
			timeStyle.Render(fmt.Sprintf(" %3.0f%%", v.Progress()*100)) + "\n")
	}
	if !m.visible {
		sb.WriteString("\n" + dimStyle.Render("  (hidden)") + "\n")
	}
	return sb.String()
}

func progressBar(frac float64, width int) string {
	full := int(frac * float64(width))
	if full > width {
		full = width
	}
	return barFullStyle.Render(strings.Repeat("█", full)) +
		barEmptyStyle.Render(strings.Repeat("░", width-full))
}

// ── Journal tab ──────────────────

func (m *Model) initJournal() {
	// title, tabs, status and help rows
	h := m.height - 4 - lipgloss.Height(m.help.View(keys))
	if h < 1 {
		h = 1
	}
	m.journal = viewport.New(m.width, h)
	m.refreshJournal()
}

func (m *Model) refreshJournal() {
	m.journal.SetContent(renderJournal(m.loadLog))
}

func renderJournal(load func() ([]journal.Entry, error)) string {
	var sb strings.Builder
	sb.WriteString("\n" + sectionHeader.Render("  Recent completions") + "\n\n")
	if load == nil {
		sb.WriteString(dimStyle.Render("  (journal disabled)") + "\n")
		return sb.String()
	}
	entries, err := load()
	if err != nil {
		sb.WriteString(outcomeErrStyle.Render("  "+err.Error()) + "\n")
		return sb.String()
	}
	if len(entries) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		ts := timeStyle.Render(e.Timestamp.Format("01-02 15:04"))
		sb.WriteString(fmt.Sprintf("  %s  %s  %-11s %3d min\n", ts, outcomeBadge(e.Outcome), e.Kind, e.Minutes))
	}
	return sb.String()
}

func outcomeBadge(o journal.Outcome) string {
	label := fmt.Sprintf("%-10s", string(o))
	switch o {
	case journal.OutcomeRegistered:
		return outcomeOKStyle.Render(label)
	case journal.OutcomeFailed:
		return outcomeErrStyle.Render(label)
	case journal.OutcomeSuppressed:
		return outcomeWarnStyle.Render(label)
	}
	return dimStyle.Render(label)
}

// Run starts the TUI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(opts),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
