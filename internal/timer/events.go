package timer

import (
	"time"

	"github.com/fakeyudi/pomotrack/internal/registration"
)

// EventType defines the type of engine event.
type EventType string

const (
	EventStateChange        EventType = "state_change"
	EventTick               EventType = "tick"
	EventComplete           EventType = "complete"
	EventRegistered         EventType = "registered"
	EventSuppressed         EventType = "suppressed"
	EventRegistrationFailed EventType = "registration_failed"
)

// Event is an engine update for observers.
type Event struct {
	Type      EventType
	Kind      Kind
	Phase     Phase
	Remaining int
	Session   *registration.StudySession
	Err       error
	At        time.Time
}
