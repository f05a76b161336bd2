package cmd

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/pomotrack/internal/sessionapi"
	"github.com/fakeyudi/pomotrack/internal/store"
	"github.com/fakeyudi/pomotrack/internal/timer"
)

func TestStatusShortIdleIsEmpty(t *testing.T) {
	isolate(t, "")

	out, err := executeCommand(rootCmd, "status", "--short")
	if err != nil {
		t.Fatalf("status --short: %v", err)
	}
	if out != "" {
		t.Errorf("idle segment should be empty, got %q", out)
	}
}

func TestStatusShortRunning(t *testing.T) {
	isolate(t, "")

	executeCommand(rootCmd, "start")
	out, err := executeCommand(rootCmd, "status", "--short")
	if err != nil {
		t.Fatalf("status --short: %v", err)
	}
	if !strings.HasPrefix(out, "● 4") {
		t.Errorf("unexpected segment %q", out)
	}

	// The flag does not leak into the next run.
	out, _ = executeCommand(rootCmd, "status")
	if !strings.Contains(out, "Focus") {
		t.Errorf("unexpected status %q", out)
	}
}

// Feature: pomotrack, Property 8: the segment matches the persisted phase
func TestStatusShortMatchesPhase(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		isolate(t, "")
		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"start", "pause", "toggle", "reset"}), 0, 6).Draw(rt, "ops")
		for _, op := range ops {
			executeCommand(rootCmd, op)
		}
		full, err := executeCommand(rootCmd, "status")
		if err != nil {
			rt.Fatalf("status: %v", err)
		}
		short, err := executeCommand(rootCmd, "status", "--short")
		if err != nil {
			rt.Fatalf("status --short: %v", err)
		}
		switch {
		case strings.Contains(full, string(timer.PhaseRunning)):
			if !strings.HasPrefix(short, "●") {
				rt.Fatalf("running but segment %q", short)
			}
		case strings.Contains(full, string(timer.PhasePaused)):
			if !strings.HasPrefix(short, "‖") {
				rt.Fatalf("paused but segment %q", short)
			}
		default:
			if short != "" {
				rt.Fatalf("idle but segment %q", short)
			}
		}
	})
}

func TestExpiredStudyRegistersOnNextCommand(t *testing.T) {
	repo, err := sessionapi.OpenRepository(store.NewMemorySlot())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(sessionapi.NewServer(sessionapi.Options{Repository: repo}).Router())
	defer srv.Close()
	isolate(t, `{"study_duration": "1s", "api_base_url": "`+srv.URL+`"}`)

	if _, err := executeCommand(rootCmd, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(1200 * time.Millisecond)

	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Registered 1 min") {
		t.Errorf("expected the expired interval to register, got %q", out)
	}
	if !strings.Contains(out, "complete") {
		t.Errorf("expected a complete timer, got %q", out)
	}

	// Later commands do not register it again.
	out, _ = executeCommand(rootCmd, "status")
	if strings.Contains(out, "Registered") {
		t.Errorf("completion registered twice: %q", out)
	}
	sessions := repo.List("", "")
	if len(sessions) != 1 || sessions[0].Minutes != 1 {
		t.Fatalf("want one 1-minute session, got %+v", sessions)
	}

	out, err = executeCommand(rootCmd, "log", "--outcome", "registered")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(out, "1 registered (1 min)") {
		t.Errorf("unexpected journal %q", out)
	}
}

func TestFailedRegistrationThenRetry(t *testing.T) {
	repo, err := sessionapi.OpenRepository(store.NewMemorySlot())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(sessionapi.NewServer(sessionapi.Options{Repository: repo, Token: "right"}).Router())
	defer srv.Close()
	isolate(t, `{"study_duration": "1s", "api_base_url": "`+srv.URL+`"}`)

	executeCommand(rootCmd, "start")
	time.Sleep(1200 * time.Millisecond)
	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: a failed registration is only a warning: %v", err)
	}
	if !strings.Contains(out, "Warning:") || !strings.Contains(out, "pomotrack retry") {
		t.Fatalf("expected a registration warning, got %q", out)
	}

	out, _ = executeCommand(rootCmd, "status")
	if !strings.Contains(out, "Unregistered completion: 1 min") {
		t.Errorf("pending completion not shown: %q", out)
	}

	out, _ = executeCommand(rootCmd, "log", "--format", "json", "--outcome", "failed")
	if !strings.Contains(out, `"outcome": "failed"`) {
		t.Errorf("failure not journaled: %q", out)
	}
	if len(repo.List("", "")) != 0 {
		t.Error("unauthorized request must not store a session")
	}
}

func TestStartAfterFailedRegistration(t *testing.T) {
	repo, err := sessionapi.OpenRepository(store.NewMemorySlot())
	if err != nil {
		t.Fatal(err)
	}
	api := sessionapi.NewServer(sessionapi.Options{Repository: repo}).Router()
	var down atomic.Bool
	down.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, `{"error":"maintenance"}`, http.StatusServiceUnavailable)
			return
		}
		api.ServeHTTP(w, r)
	}))
	defer srv.Close()
	isolate(t, `{"study_duration": "1s", "request_timeout": "500ms", "api_base_url": "`+srv.URL+`"}`)

	executeCommand(rootCmd, "start")
	time.Sleep(1200 * time.Millisecond)

	out, err := executeCommand(rootCmd, "start")
	if err != nil {
		t.Fatalf("start after a failed registration: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Warning:") || !strings.Contains(out, "running") {
		t.Errorf("expected a warning and a running interval, got %q", out)
	}
	executeCommand(rootCmd, "reset")

	out, _ = executeCommand(rootCmd, "status")
	if !strings.Contains(out, "Unregistered completion: 1 min") {
		t.Errorf("starting again must keep the failed completion: %q", out)
	}

	down.Store(false)
	out, err = executeCommand(rootCmd, "retry")
	if err != nil {
		t.Fatalf("retry: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Registered 1 min") {
		t.Errorf("unexpected retry output %q", out)
	}
	if n := len(repo.List("", "")); n != 1 {
		t.Errorf("want one session, got %d", n)
	}
	out, _ = executeCommand(rootCmd, "status")
	if strings.Contains(out, "Unregistered") {
		t.Errorf("retried completion still pending: %q", out)
	}
}

func TestLogRejectsBadFlags(t *testing.T) {
	isolate(t, "")
	if _, err := executeCommand(rootCmd, "log", "--format", "pdf"); err == nil {
		t.Error("expected an error for an unknown format")
	}
	if _, err := executeCommand(rootCmd, "log", "--outcome", "maybe"); err == nil {
		t.Error("expected an error for an unknown outcome")
	}
	out, err := executeCommand(rootCmd, "log")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No completions recorded") {
		t.Errorf("unexpected empty journal output %q", out)
	}
}
