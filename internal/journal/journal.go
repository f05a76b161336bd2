// Package journal keeps an append-only CBOR log of completion outcomes:
// every finished interval, whether it was registered, suppressed as a
// duplicate, failed or was a break that is never registered.
package journal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileName is the journal file inside the data directory.
const FileName = "completions.cbor"

// Outcome classifies what happened to a completion.
type Outcome string

const (
	OutcomeRegistered Outcome = "registered"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
	OutcomeNothing    Outcome = "nothing"
	OutcomeBreak      Outcome = "break"
)

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeRegistered, OutcomeSuppressed, OutcomeFailed, OutcomeNothing, OutcomeBreak:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// Entry is one journaled completion. CBOR encoding uses integer keys.
type Entry struct {
	Timestamp    time.Time `cbor:"1,keyasint" json:"timestamp"`
	CompletionID string    `cbor:"2,keyasint" json:"completionId"`
	Kind         string    `cbor:"3,keyasint" json:"kind"`
	Minutes      int       `cbor:"4,keyasint" json:"minutes"`
	Outcome      Outcome   `cbor:"5,keyasint" json:"outcome"`
	Subject      string    `cbor:"6,keyasint,omitempty" json:"subject,omitempty"`
	SessionID    int64     `cbor:"7,keyasint,omitempty" json:"sessionId,omitempty"`
	Error        string    `cbor:"8,keyasint,omitempty" json:"error,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor decoder mode: %v", err))
	}
}

// Recorder accepts journal entries.
type Recorder interface {
	Record(e Entry) error
}

// Discard drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) error { return nil }

// File appends entries to a CBOR file. It is safe for concurrent use.
type File struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// OpenFile opens (or creates) the journal at path for appending.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &File{file: f, encoder: encMode.NewEncoder(f)}, nil
}

// Record appends e. Records after Close are dropped.
func (j *File) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.encoder.Encode(e); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// Close closes the file. Calling it twice is harmless.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Outcome Outcome
	Kind    string
	Since   time.Time
	Until   time.Time
}

func (f Filter) matches(e Entry) bool {
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Reader streams entries from a journal file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path for reading entries that match filter.
func NewReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: decMode.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching entry, or io.EOF.
func (r *Reader) Next() (Entry, error) {
	for {
		var e Entry
		if err := r.decoder.Decode(&e); err != nil {
			return Entry{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns every entry in path matching filter. A missing journal
// yields no entries.
func ReadAll(path string, filter Filter) ([]Entry, error) {
	r, err := NewReader(path, filter)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer r.Close()

	var entries []Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("reading journal: %w", err)
		}
		entries = append(entries, e)
	}
}
