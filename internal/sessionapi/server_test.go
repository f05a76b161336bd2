package sessionapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/pomotrack/internal/clock"
	"github.com/fakeyudi/pomotrack/internal/registration"
	"github.com/fakeyudi/pomotrack/internal/sessionapi"
	"github.com/fakeyudi/pomotrack/internal/store"
)

var now = time.Date(2026, 10, 16, 14, 30, 0, 0, time.Local)

const today = "2026-10-16"

func newServer(t *testing.T, token string) (*httptest.Server, *store.MemorySlot) {
	t.Helper()
	slot := store.NewMemorySlot()
	repo, err := sessionapi.OpenRepository(slot)
	require.NoError(t, err)
	srv := httptest.NewServer(sessionapi.NewServer(sessionapi.Options{
		Repository: repo,
		Clock:      clock.NewFake(now),
		Token:      token,
	}).Router())
	t.Cleanup(srv.Close)
	return srv, slot
}

func post(t *testing.T, url, key string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url+"/sessions", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(registration.IdempotencyHeader, key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateThenAccumulate(t *testing.T) {
	srv, _ := newServer(t, "")

	resp := post(t, srv.URL, "", map[string]any{"date": today, "minutes": 45, "subject": "Pomodoro"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[registration.StudySession](t, resp)
	assert.Equal(t, 45, first.Minutes)
	assert.InDelta(t, 0.75, first.Hours, 0.001)

	resp = post(t, srv.URL, "", map[string]any{"date": today, "minutes": 20, "notes": "chapter 3"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[registration.StudySession](t, resp)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 65, second.Minutes)
	assert.Equal(t, "Pomodoro", second.Subject, "empty subject keeps the stored one")
	assert.Equal(t, "chapter 3", second.Notes)
}

func TestCreateValidation(t *testing.T) {
	srv, _ := newServer(t, "")
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing date", map[string]any{"minutes": 10}},
		{"not today", map[string]any{"date": "2026-10-15", "minutes": 10}},
		{"zero minutes", map[string]any{"date": today, "minutes": 0}},
		{"negative minutes", map[string]any{"date": today, "minutes": -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL, "", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestIdempotencyKeyReplays(t *testing.T) {
	srv, _ := newServer(t, "")

	resp := post(t, srv.URL, "k1", map[string]any{"date": today, "minutes": 30})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = post(t, srv.URL, "k1", map[string]any{"date": today, "minutes": 30})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "replay returns the original status")
	replayed := decode[registration.StudySession](t, resp)
	assert.Equal(t, 30, replayed.Minutes, "replayed request must not accumulate")

	list, err := http.Get(srv.URL + "/sessions?date=" + today)
	require.NoError(t, err)
	defer list.Body.Close()
	sessions := decode[[]registration.StudySession](t, list)
	require.Len(t, sessions, 1)
	assert.Equal(t, 30, sessions[0].Minutes)
}

func TestGetDeleteAndStats(t *testing.T) {
	srv, slot := newServer(t, "")
	created := decode[registration.StudySession](t, post(t, srv.URL, "", map[string]any{"date": today, "minutes": 90}))

	resp, err := http.Get(srv.URL + "/sessions/stats/summary")
	require.NoError(t, err)
	stats := decode[sessionapi.Stats](t, resp)
	resp.Body.Close()
	assert.Equal(t, sessionapi.Stats{TotalHours: "1.50", TodayHours: "1.50", AvgHours: "1.50", DaysStudied: 1}, stats)

	resp, err = http.Get(srv.URL + "/sessions/" + itoa(created.ID))
	require.NoError(t, err)
	got := decode[registration.StudySession](t, resp)
	resp.Body.Close()
	assert.Equal(t, created.ID, got.ID)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/"+itoa(created.ID), nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/sessions/" + itoa(created.ID))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The deletion is persisted.
	repo, err := sessionapi.OpenRepository(slot)
	require.NoError(t, err)
	assert.Empty(t, repo.List("", ""))
}

func TestRepositoryReopensWithSessions(t *testing.T) {
	slot := store.NewMemorySlot()
	repo, err := sessionapi.OpenRepository(slot)
	require.NoError(t, err)
	_, created, err := repo.Accumulate(today, 25, "", "", now)
	require.NoError(t, err)
	assert.True(t, created)

	reopened, err := sessionapi.OpenRepository(slot)
	require.NoError(t, err)
	s, created, err := reopened.Accumulate(today, 5, "", "", now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 30, s.Minutes)

	s2, created, err := reopened.Accumulate("2026-10-17", 5, "", "", now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, s.ID, s2.ID)
}

func TestBearerTokenRequired(t *testing.T) {
	srv, _ := newServer(t, "secret")

	resp := post(t, srv.URL, "", map[string]any{"date": today, "minutes": 10})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode, "health is public")

	client := registration.New(registration.Options{BaseURL: srv.URL, Token: "secret"})
	s, err := client.Register(context.Background(), registration.Request{Date: today, Minutes: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, s.Minutes)
}

func TestClientSeesServerErrors(t *testing.T) {
	srv, _ := newServer(t, "")
	client := registration.New(registration.Options{BaseURL: srv.URL})

	_, err := client.Register(context.Background(), registration.Request{Date: "2026-01-01", Minutes: 10})
	var apiErr *registration.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "sessions can only be registered for the current day", apiErr.Message)

	_, err = client.Register(context.Background(), registration.Request{Minutes: 10})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "date is required", apiErr.Message)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
