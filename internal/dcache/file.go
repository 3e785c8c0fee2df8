package dcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// entry is the on-disk shape of one cached enumeration.
type entry struct {
	ComputedAt time.Time `json:"computed_at"`
	Payload    []byte    `json:"payload"`
}

// FileStore keeps one JSON file per namespace under a cache directory.
// Writes go to a temp file followed by a rename, so a concurrent reader sees
// either the old entry or the new one, never a truncated mix.
type FileStore struct {
	dir string

	// Now is the clock used for freshness checks; tests override it.
	Now func() time.Time
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first Put.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, Now: time.Now}
}

// Get returns the cached payload for namespace if it is younger than maxAge.
// A missing, unreadable or corrupt entry is reported as ErrStale; the next
// Put replaces it.
func (s *FileStore) Get(_ context.Context, namespace string, maxAge time.Duration) ([]byte, error) {
	if maxAge <= 0 {
		return nil, ErrStale
	}

	data, err := os.ReadFile(s.path(namespace))
	if err != nil {
		return nil, ErrStale
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, ErrStale
	}

	if s.Now().Sub(e.ComputedAt) > maxAge {
		return nil, ErrStale
	}

	return e.Payload, nil
}

// Put replaces the entry for namespace with payload and a fresh timestamp.
func (s *FileStore) Put(_ context.Context, namespace string, payload []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	data, err := json.Marshal(entry{ComputedAt: s.Now(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(namespace)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) path(namespace string) string {
	// Namespaces are dotted identifiers; make sure a stray separator cannot
	// escape the cache directory.
	name := strings.ReplaceAll(namespace, string(os.PathSeparator), "_")
	return filepath.Join(s.dir, name+".json")
}
