// Package sessionapi is a local study-session backend. It accepts the
// registrations pomotrack sends and answers the read-only queries the CLI
// uses, so the tool works without a hosted service.
package sessionapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/fakeyudi/pomotrack/internal/clock"
	"github.com/fakeyudi/pomotrack/internal/registration"
)

// replayTTL bounds how long an Idempotency-Key response is remembered.
const replayTTL = 24 * time.Hour

// Options configures a Server.
type Options struct {
	Repository *Repository
	Clock      clock.Clock
	Logger     *slog.Logger
	// Token, when set, is required as a bearer credential on /sessions.
	Token string
}

// Server serves the session API.
type Server struct {
	repo   *Repository
	clock  clock.Clock
	logger *slog.Logger
	token  string

	mu      sync.Mutex
	replays map[string]replay
}

type replay struct {
	status int
	body   []byte
	at     time.Time
}

// NewServer returns a Server over opts.Repository.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		repo:    opts.Repository,
		clock:   opts.Clock,
		logger:  opts.Logger,
		token:   opts.Token,
		replays: make(map[string]replay),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/sessions").Subrouter()
	api.Use(s.requireToken)
	api.HandleFunc("", s.listSessions).Methods(http.MethodGet)
	api.HandleFunc("", s.createSession).Methods(http.MethodPost)
	api.HandleFunc("/stats/summary", s.statsSummary).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}", s.deleteSession).Methods(http.MethodDelete)
	return r
}

func (s *Server) today() string {
	return s.clock.Now().Format(registration.DateLayout)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(registration.IdempotencyHeader)
	if key != "" {
		if rep, ok := s.lookupReplay(key); ok {
			s.logger.Info("replaying idempotent session request", "key", key)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rep.status)
			w.Write(rep.body)
			return
		}
	}

	var req registration.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch {
	case req.Date == "":
		writeErrors(w, http.StatusBadRequest, "date is required")
		return
	case req.Date != s.today():
		writeError(w, http.StatusBadRequest, "sessions can only be registered for the current day")
		return
	case req.Minutes <= 0:
		writeError(w, http.StatusBadRequest, "minutes must be greater than zero")
		return
	}

	session, created, err := s.repo.Accumulate(req.Date, req.Minutes, req.Subject, req.Notes, s.clock.Now())
	if err != nil {
		s.logger.Error("storing session", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store session")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	body, _ := json.Marshal(session)
	if key != "" {
		s.storeReplay(key, replay{status: status, body: body, at: s.clock.Now()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("startDate"), q.Get("endDate")
	if date := q.Get("date"); date != "" {
		from, to = date, date
	} else if from == "" || to == "" {
		from, to = "", ""
	}
	writeJSON(w, http.StatusOK, s.repo.List(from, to))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	session, err := s.repo.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := s.repo.Delete(id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("deleting session", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
}

func (s *Server) statsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.Stats(s.today()))
}

func (s *Server) lookupReplay(key string) (replay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.replays[key]
	if ok && s.clock.Now().Sub(rep.at) > replayTTL {
		delete(s.replays, key)
		return replay{}, false
	}
	return rep, ok
}

func (s *Server) storeReplay(key string, rep replay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, old := range s.replays {
		if rep.at.Sub(old.at) > replayTTL {
			delete(s.replays, k)
		}
	}
	s.replays[key] = rep
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErrors reports validation failures in the list shape.
func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	type item struct {
		Msg string `json:"msg"`
	}
	items := make([]item, len(msgs))
	for i, m := range msgs {
		items[i] = item{Msg: m}
	}
	writeJSON(w, status, map[string][]item{"errors": items})
}
