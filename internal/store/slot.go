// Package store persists timer and guard state in small durable key/value
// slots so an interval survives the process that started it.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned by Get for a key that holds no value. It matches
// fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("slot key not found: %w", fs.ErrNotExist)

// Slot is a durable key/value store for small JSON documents.
type Slot interface {
	Get(key string) ([]byte, error) // returns ErrNotFound if the key is absent
	Put(key string, data []byte) error
	Delete(key string) error
	Path(key string) string
}

// DataDir returns the pomotrack XDG data directory:
// $XDG_DATA_HOME/pomotrack or ~/.local/share/pomotrack.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "pomotrack"), nil
}

// Scope derives a stable directory name for a user/backend pair. The
// identity is hashed so tokens and URLs never appear in paths.
func Scope(user, apiBaseURL string) string {
	sum := blake2b.Sum256([]byte(user + "\x00" + apiBaseURL))
	return hex.EncodeToString(sum[:])[:16]
}

// DiskSlot stores each key as <dir>/<key>.json.
type DiskSlot struct {
	dir string
}

// OpenDiskSlot returns a DiskSlot rooted at dir, creating it if needed.
func OpenDiskSlot(dir string) (*DiskSlot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating slot directory: %w", err)
	}
	return &DiskSlot{dir: dir}, nil
}

// Dir returns the directory holding the slot files.
func (d *DiskSlot) Dir() string { return d.dir }

// Path returns the file backing key.
func (d *DiskSlot) Path(key string) string {
	return filepath.Join(d.dir, key+".json")
}

// Get reads key. Returns ErrNotFound if the file does not exist.
func (d *DiskSlot) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(d.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes data atomically via a temp file + os.Rename.
func (d *DiskSlot) Put(key string, data []byte) (err error) {
	// Same directory as the target so the rename is atomic.
	tmp, err := os.CreateTemp(d.dir, key+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	if err = os.Rename(tmpName, d.Path(key)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (d *DiskSlot) Delete(key string) error {
	if err := os.Remove(d.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// MemorySlot is an in-process Slot.
type MemorySlot struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemorySlot returns an empty MemorySlot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{data: make(map[string][]byte)}
}

func (m *MemorySlot) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemorySlot) Put(key string, data []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *MemorySlot) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemorySlot) Path(key string) string { return "memory:" + key }

// Keys lists the stored keys in sorted order.
func (m *MemorySlot) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
