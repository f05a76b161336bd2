// Package interactive provides a line-oriented shell for the session timer.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/fakeyudi/pomotrack/internal/timer"
)

// Engine is the part of *timer.Engine the shell drives.
type Engine interface {
	Snapshot() timer.View
	Start() error
	Pause() error
	Toggle() error
	Reset() error
	SelectKind(k timer.Kind) error
	FinishEarly(ctx context.Context) (*timer.Report, error)
	RetryReport(ctx context.Context) (*timer.Report, error)
	SetVisible(visible bool) *timer.Report
	Subscribe(buffer int) <-chan timer.Event
}

// Shell handles interactive mode.
type Shell struct {
	engine Engine
	rl     *readline.Instance
	out    io.Writer
}

// New creates a shell over engine reading from the terminal.
func New(engine Engine) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pomotrack> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("status"), readline.PcItem("start"), readline.PcItem("pause"),
			readline.PcItem("toggle"), readline.PcItem("reset"), readline.PcItem("finish"),
			readline.PcItem("retry"), readline.PcItem("help"), readline.PcItem("quit"),
			readline.PcItem("kind",
				readline.PcItem(string(timer.KindStudy)),
				readline.PcItem(string(timer.KindShortBreak)),
				readline.PcItem(string(timer.KindLongBreak))),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{engine: engine, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the interactive command loop. It returns when the user quits or
// ctx is done.
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()

	events := s.engine.Subscribe(16)
	go s.printEvents(events)
	stopResume := notifyResume(func() {
		// A stopped process that is continued has been away; catch up.
		s.engine.SetVisible(true)
	})
	defer stopResume()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return
		}
		if s.Exec(ctx, line) {
			return
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
		return false
	case "status", "s":
		s.printStatus()
		return false
	case "start":
		err = s.engine.Start()
	case "pause":
		err = s.engine.Pause()
	case "toggle", "t":
		err = s.engine.Toggle()
	case "reset":
		err = s.engine.Reset()
	case "kind", "k":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "Usage: kind <study|short|long>")
			return false
		}
		var k timer.Kind
		if k, err = timer.ParseKind(args[0]); err == nil {
			err = s.engine.SelectKind(k)
		}
	case "finish", "f":
		var r *timer.Report
		if r, err = s.engine.FinishEarly(ctx); err == nil {
			fmt.Fprintf(s.out, "Finished, reporting %d min\n", r.Completion.StudiedMinutes)
		}
	case "retry":
		if _, err = s.engine.RetryReport(ctx); err == nil {
			fmt.Fprintln(s.out, "Retrying registration...")
		}
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		return false
	}

	if err != nil {
		if errors.Is(err, timer.ErrTooSoon) {
			fmt.Fprintln(s.out, "Study at least a minute before finishing early.")
		} else {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		return false
	}
	s.printStatus()
	return false
}

func (s *Shell) printStatus() {
	v := s.engine.Snapshot()
	fmt.Fprintf(s.out, "%s  %s  %s\n", v.Label, v.Clock(), v.Phase)
}

func (s *Shell) printEvents(events <-chan timer.Event) {
	for ev := range events {
		switch ev.Type {
		case timer.EventComplete:
			fmt.Fprintf(s.out, "\n%s complete.\n", ev.Kind)
		case timer.EventRegistered:
			fmt.Fprintf(s.out, "Registered %d min (session #%d).\n", ev.Session.Minutes, ev.Session.ID)
		case timer.EventSuppressed:
			fmt.Fprintln(s.out, "Duplicate completion ignored.")
		case timer.EventRegistrationFailed:
			fmt.Fprintf(s.out, "Registration failed: %v (type 'retry')\n", ev.Err)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
pomotrack commands:
  status             - Show the timer
  start | pause      - Start or pause the interval
  toggle             - Start if stopped, pause if running
  reset              - Back to the full duration
  kind <k>           - Switch to study, short or long
  finish             - End a study interval early and register it
  retry              - Re-send a failed registration
  quit               - Leave the shell (the timer keeps its state)`)
}
