package shell

import (
	"github.com/fakeyudi/pomotrack/internal/timer"
)

// Segment renders v for a shell prompt. A timer sitting in Ready renders
// as the empty string so idle prompts stay clean.
func Segment(v timer.View) string {
	switch v.Phase {
	case timer.PhaseRunning:
		if v.Kind == timer.KindStudy {
			return "● " + v.Clock()
		}
		return "☕ " + v.Clock()
	case timer.PhasePaused:
		return "‖ " + v.Clock()
	case timer.PhaseComplete:
		return "✓ " + v.Label
	}
	return ""
}
