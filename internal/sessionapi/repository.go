package sessionapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fakeyudi/pomotrack/internal/registration"
	"github.com/fakeyudi/pomotrack/internal/store"
)

// SessionsKey is the slot key the repository persists its sessions under.
const SessionsKey = "sessions"

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Repository holds one study session per calendar date. It is persisted as
// a single JSON document in a store.Slot.
type Repository struct {
	mu       sync.Mutex
	slot     store.Slot
	nextID   int64
	sessions map[int64]*registration.StudySession
}

type repositoryDoc struct {
	NextID   int64                        `json:"nextId"`
	Sessions []*registration.StudySession `json:"sessions"`
}

// OpenRepository loads the sessions stored in slot, if any.
func OpenRepository(slot store.Slot) (*Repository, error) {
	r := &Repository{slot: slot, nextID: 1, sessions: make(map[int64]*registration.StudySession)}
	data, err := slot.Get(SessionsKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return r, nil
		}
		return nil, err
	}
	var doc repositoryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	for _, s := range doc.Sessions {
		r.sessions[s.ID] = s
		if s.ID >= r.nextID {
			r.nextID = s.ID + 1
		}
	}
	if doc.NextID > r.nextID {
		r.nextID = doc.NextID
	}
	return r, nil
}

// Accumulate adds minutes to the session for date, creating it if needed.
// Subject and notes replace the stored values only when non-empty. created
// reports whether a new session was made.
func (r *Repository) Accumulate(date string, minutes int, subject, notes string, now time.Time) (s registration.StudySession, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.byDateLocked(date)
	if existing == nil {
		existing = &registration.StudySession{ID: r.nextID, Date: date, CreatedAt: now.UTC()}
		r.nextID++
		r.sessions[existing.ID] = existing
		created = true
	}
	existing.Minutes += minutes
	existing.Hours = hours(existing.Minutes)
	if subject != "" {
		existing.Subject = subject
	}
	if notes != "" {
		existing.Notes = notes
	}
	if err := r.persistLocked(); err != nil {
		return registration.StudySession{}, false, err
	}
	return *existing, created, nil
}

// Get returns the session with id.
func (r *Repository) Get(id int64) (registration.StudySession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return registration.StudySession{}, ErrSessionNotFound
	}
	return *s, nil
}

// Delete removes the session with id.
func (r *Repository) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return r.persistLocked()
}

// List returns sessions whose date lies in [from, to], newest first. Empty
// bounds are open.
func (r *Repository) List(from, to string) []registration.StudySession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registration.StudySession, 0, len(r.sessions))
	for _, s := range r.sessions {
		if from != "" && s.Date < from || to != "" && s.Date > to {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stats summarizes all sessions relative to today.
type Stats struct {
	TotalHours  string `json:"totalHours"`
	TodayHours  string `json:"todayHours"`
	AvgHours    string `json:"avgHours"`
	DaysStudied int    `json:"daysStudied"`
}

// Stats computes totals over every stored session.
func (r *Repository) Stats(today string) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total, todayMin int
	days := make(map[string]struct{})
	for _, s := range r.sessions {
		total += s.Minutes
		if s.Date == today {
			todayMin += s.Minutes
		}
		days[s.Date] = struct{}{}
	}
	var avg float64
	if len(r.sessions) > 0 {
		avg = float64(total) / 60 / float64(len(r.sessions))
	}
	return Stats{
		TotalHours:  fmt.Sprintf("%.2f", float64(total)/60),
		TodayHours:  fmt.Sprintf("%.2f", float64(todayMin)/60),
		AvgHours:    fmt.Sprintf("%.2f", avg),
		DaysStudied: len(days),
	}
}

func (r *Repository) byDateLocked(date string) *registration.StudySession {
	for _, s := range r.sessions {
		if s.Date == date {
			return s
		}
	}
	return nil
}

func (r *Repository) persistLocked() error {
	doc := repositoryDoc{NextID: r.nextID, Sessions: make([]*registration.StudySession, 0, len(r.sessions))}
	for _, s := range r.sessions {
		doc.Sessions = append(doc.Sessions, s)
	}
	sort.Slice(doc.Sessions, func(i, j int) bool { return doc.Sessions[i].ID < doc.Sessions[j].ID })
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to persist sessions: %w", err)
	}
	return r.slot.Put(SessionsKey, data)
}

func hours(minutes int) float64 {
	return float64(int(float64(minutes)/60*100+0.5)) / 100
}
