// Package clock derives elapsed and remaining interval time from a wall-clock
// anchor instead of counting ticks, so a suspended process or a throttled
// terminal never drifts: the correct remaining time is always recomputable
// from "now".
package clock

import (
	"sync"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// NowMillis returns c.Now() as Unix epoch milliseconds.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// Remaining returns max(0, duration - floor((now - anchor) / 1000)) in whole
// seconds. A now before the anchor yields the full duration; negative inputs
// are clamped to zero.
func Remaining(durationSec int, anchorMillis, nowMillis int64) int {
	if durationSec <= 0 {
		return 0
	}
	elapsedMillis := nowMillis - anchorMillis
	if elapsedMillis < 0 {
		elapsedMillis = 0
	}
	elapsed := elapsedMillis / 1000
	if elapsed >= int64(durationSec) {
		return 0
	}
	return durationSec - int(elapsed)
}

// StudiedRunning returns the seconds studied so far in a running interval.
func StudiedRunning(durationSec int, anchorMillis, nowMillis int64) int {
	if durationSec <= 0 {
		return 0
	}
	return durationSec - Remaining(durationSec, anchorMillis, nowMillis)
}

// StudiedPaused returns the seconds studied in an interval that is not running,
// given the remaining-time snapshot taken when it stopped.
func StudiedPaused(durationSec, remainingAtPause int) int {
	if durationSec <= 0 {
		return 0
	}
	if remainingAtPause < 0 {
		remainingAtPause = 0
	}
	if remainingAtPause > durationSec {
		remainingAtPause = durationSec
	}
	return durationSec - remainingAtPause
}

// AnchorFor returns the anchor that makes Remaining(duration, anchor, now)
// equal remainingSec, i.e. now shifted back by the time already studied.
func AnchorFor(nowMillis int64, durationSec, remainingSec int) int64 {
	studied := StudiedPaused(durationSec, remainingSec)
	return nowMillis - int64(studied)*1000
}

// StudiedMinutes rounds studied seconds to the nearest whole minute, halves up.
func StudiedMinutes(studiedSec int) int {
	if studiedSec <= 0 {
		return 0
	}
	return (studiedSec + 30) / 60
}

// Fake is a manually advanced Clock for tests and simulations.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
