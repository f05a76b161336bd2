package timer

import (
	"context"

	"github.com/fakeyudi/pomotrack/internal/guard"
	"github.com/fakeyudi/pomotrack/internal/registration"
)

// Report is the pending outcome of one completion. It resolves once the
// registration attempt (if any) has finished.
type Report struct {
	Completion guard.Completion

	done       chan struct{}
	session    *registration.StudySession
	err        error
	suppressed bool
}

func newReport(c guard.Completion) *Report {
	return &Report{Completion: c, done: make(chan struct{})}
}

func (r *Report) resolve(session *registration.StudySession, err error, suppressed bool) {
	r.session = session
	r.err = err
	r.suppressed = suppressed
	close(r.done)
}

// Done is closed when the report has resolved.
func (r *Report) Done() <-chan struct{} { return r.done }

// Wait blocks until the report resolves or ctx is done. A suppressed or
// unregistered completion returns a nil session and nil error.
func (r *Report) Wait(ctx context.Context) (*registration.StudySession, error) {
	select {
	case <-r.done:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Suppressed reports whether the guard dropped this completion as a
// duplicate. Only meaningful after Done is closed.
func (r *Report) Suppressed() bool {
	select {
	case <-r.done:
		return r.suppressed
	default:
		return false
	}
}

// Registers reports whether the completion is sent to the registrar at all.
// Break intervals are never registered.
func (r *Report) Registers() bool {
	return Kind(r.Completion.Kind) == KindStudy
}
