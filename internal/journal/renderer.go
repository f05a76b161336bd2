package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
)

// Renderer serializes journal entries to bytes.
type Renderer interface {
	Render(entries []Entry) ([]byte, error)
}

// NewRenderer returns the renderer for format: "text", "json" or "markdown".
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "", "text":
		return &TextRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	}
	return nil, fmt.Errorf("unsupported format %q (want text, json or markdown)", format)
}

// Summary totals a set of entries.
type Summary struct {
	Registered        int `json:"registered"`
	Suppressed        int `json:"suppressed"`
	Failed            int `json:"failed"`
	Breaks            int `json:"breaks"`
	RegisteredMinutes int `json:"registeredMinutes"`
}

// Summarize counts entries by outcome.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Outcome {
		case OutcomeRegistered:
			s.Registered++
			s.RegisteredMinutes += e.Minutes
		case OutcomeSuppressed:
			s.Suppressed++
		case OutcomeFailed:
			s.Failed++
		case OutcomeBreak:
			s.Breaks++
		}
	}
	return s
}

// JSONRenderer renders entries and their summary as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	return json.MarshalIndent(struct {
		Entries []Entry `json:"entries"`
		Summary Summary `json:"summary"`
	}{entries, Summarize(entries)}, "", "  ")
}

// TextRenderer renders one aligned line per entry.
type TextRenderer struct{}

func (r *TextRenderer) Render(entries []Entry) ([]byte, error) {
	var sb strings.Builder
	if len(entries) == 0 {
		sb.WriteString("No completions recorded.\n")
		return []byte(sb.String()), nil
	}
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%dm\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			e.Minutes,
			e.Outcome,
			detail(e),
		)
	}
	tw.Flush()
	s := Summarize(entries)
	fmt.Fprintf(&sb, "\n%d registered (%d min), %d suppressed, %d failed, %d breaks\n",
		s.Registered, s.RegisteredMinutes, s.Suppressed, s.Failed, s.Breaks)
	return []byte(sb.String()), nil
}

// MarkdownRenderer renders entries as a Markdown report.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(entries []Entry) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("# Completion journal\n\n")

	s := Summarize(entries)
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Registered: %d (%d min)\n", s.Registered, s.RegisteredMinutes)
	fmt.Fprintf(&sb, "- Suppressed duplicates: %d\n", s.Suppressed)
	fmt.Fprintf(&sb, "- Failed: %d\n", s.Failed)
	fmt.Fprintf(&sb, "- Breaks: %d\n\n", s.Breaks)

	sb.WriteString("## Entries\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No completions recorded._\n")
		return []byte(sb.String()), nil
	}
	sb.WriteString("| Time | Kind | Minutes | Outcome | Detail |\n")
	sb.WriteString("|------|------|---------|---------|--------|\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "| %s | %s | %d | %s | %s |\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			e.Minutes,
			e.Outcome,
			strings.ReplaceAll(detail(e), "|", `\|`),
		)
	}
	return []byte(sb.String()), nil
}

func detail(e Entry) string {
	switch {
	case e.Error != "":
		return e.Error
	case e.SessionID != 0:
		return fmt.Sprintf("session #%d", e.SessionID)
	}
	return e.Subject
}
