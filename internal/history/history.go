// Package history keeps a bounded local log of completed recording sessions.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxEntries caps the log; the oldest entries beyond the cap are discarded.
const maxEntries = 100

// Entry is the durable record of one completed session. It never carries the
// upload token: the history file stays free of credentials.
type Entry struct {
	UploadID string    `json:"uploadId"`
	Platform string    `json:"platform"`
	Title    string    `json:"title"`
	EndedAt  time.Time `json:"endedAt"`
}

// Store is a newest-first JSON log on disk. Each mutation is a full
// read-modify-write; the mutex preserves the single-writer discipline within
// the process.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store at <dataDir>/recordings.json.
func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, "recordings.json")}
}

// ReadAll returns all entries, newest first. A missing or corrupt file reads
// as empty.
func (s *Store) ReadAll() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Append prepends entry and rewrites the log, dropping anything beyond the
// cap. Entries already written are never modified.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append([]Entry{entry}, s.read()...)
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return s.write(entries)
}

func (s *Store) read() []Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

func (s *Store) write(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "recordings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // prevent defer cleanup

	return os.Rename(tmpPath, s.path)
}
