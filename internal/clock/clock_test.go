package clock_test

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/pomotrack/internal/clock"
)

// Feature: pomotrack, Property 1: remaining time never increases while running
func TestRemainingMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		duration := rapid.IntRange(1, 4*3600).Draw(t, "duration")
		anchor := rapid.Int64Range(0, 1_700_000_000_000).Draw(t, "anchor")
		now1 := anchor + rapid.Int64Range(-10_000, 5*3600*1000).Draw(t, "offset1")
		now2 := now1 + rapid.Int64Range(0, 3600*1000).Draw(t, "delta")

		r1 := clock.Remaining(duration, anchor, now1)
		r2 := clock.Remaining(duration, anchor, now2)
		if r2 > r1 {
			t.Fatalf("remaining increased: %d at %d, %d at %d", r1, now1, r2, now2)
		}
		if r1 < 0 || r2 < 0 {
			t.Fatalf("negative remaining: %d, %d", r1, r2)
		}
		if r1 > duration {
			t.Fatalf("remaining %d exceeds duration %d", r1, duration)
		}
	})
}

// Feature: pomotrack, Property 2: AnchorFor inverts Remaining
func TestAnchorForRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		duration := rapid.IntRange(1, 4*3600).Draw(t, "duration")
		remaining := rapid.IntRange(0, duration).Draw(t, "remaining")
		now := rapid.Int64Range(0, 1_700_000_000_000).Draw(t, "now")

		anchor := clock.AnchorFor(now, duration, remaining)
		if got := clock.Remaining(duration, anchor, now); got != remaining {
			t.Fatalf("Remaining(AnchorFor(%d)) = %d", remaining, got)
		}
		if got := clock.StudiedRunning(duration, anchor, now); got != duration-remaining {
			t.Fatalf("StudiedRunning = %d, want %d", got, duration-remaining)
		}
	})
}

func TestRemainingEdges(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		anchor   int64
		now      int64
		want     int
	}{
		{"at anchor", 180, 1000, 1000, 180},
		{"999ms later still full", 180, 1000, 1999, 180},
		{"one second later", 180, 1000, 2000, 179},
		{"exactly elapsed", 180, 0, 180_000, 0},
		{"overshoot clamps", 180, 0, 200_000, 0},
		{"clock behind anchor", 180, 10_000, 0, 180},
		{"zero duration", 0, 0, 5000, 0},
		{"negative duration", -5, 0, 5000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clock.Remaining(tt.duration, tt.anchor, tt.now); got != tt.want {
				t.Errorf("Remaining(%d, %d, %d) = %d, want %d", tt.duration, tt.anchor, tt.now, got, tt.want)
			}
		})
	}
}

func TestStudiedPausedClamps(t *testing.T) {
	if got := clock.StudiedPaused(2700, 2100); got != 600 {
		t.Errorf("StudiedPaused(2700, 2100) = %d, want 600", got)
	}
	if got := clock.StudiedPaused(2700, -3); got != 2700 {
		t.Errorf("negative remaining: got %d, want 2700", got)
	}
	if got := clock.StudiedPaused(2700, 9000); got != 0 {
		t.Errorf("remaining above duration: got %d, want 0", got)
	}
}

func TestStudiedMinutesRounding(t *testing.T) {
	tests := map[int]int{
		-10:  0,
		0:    0,
		3:    0,
		29:   0,
		30:   1,
		59:   1,
		60:   1,
		89:   1,
		90:   2,
		2700: 45,
	}
	for sec, want := range tests {
		if got := clock.StudiedMinutes(sec); got != want {
			t.Errorf("StudiedMinutes(%d) = %d, want %d", sec, got, want)
		}
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	f := clock.NewFake(start)
	f.Advance(1500 * time.Millisecond)
	if got := clock.NowMillis(f); got != start.UnixMilli()+1500 {
		t.Errorf("NowMillis = %d, want %d", got, start.UnixMilli()+1500)
	}
	f.Set(start)
	if !f.Now().Equal(start) {
		t.Errorf("Set did not move clock back to %v", start)
	}
}
