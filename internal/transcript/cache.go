package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache persists flushed transcripts as one JSON file per upload ID. A file
// is only ever written when the session produced at least one segment, so a
// missing file is the normal "no transcript" case, not an error.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// NewCache returns a Cache rooted at dir. The directory is created on first
// write.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the transcript file path for uploadID.
func (c *Cache) Path(uploadID string) string {
	return filepath.Join(c.dir, "transcript-"+uploadID+".json")
}

// Write persists segments for uploadID, replacing any previous file. Writes
// are atomic (temp file + rename) so readers never observe a partial
// transcript.
func (c *Cache) Write(uploadID string, segments []Segment) error {
	if uploadID == "" {
		return fmt.Errorf("empty upload id")
	}
	data, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return atomicWrite(c.Path(uploadID), data)
}

// Read loads the cached transcript for uploadID. Returns ok=false when no
// file exists or the file cannot be parsed; a corrupt cache entry is treated
// as absent, never as a fatal condition.
func (c *Cache) Read(uploadID string) ([]Segment, bool) {
	data, err := os.ReadFile(c.Path(uploadID))
	if err != nil {
		return nil, false
	}
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, false
	}
	return segments, true
}

// atomicWrite writes data to path atomically using a temp file + rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error.
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing transcript: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing transcript: %w", err)
	}
	tmpFile = nil // prevent defer cleanup

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming transcript: %w", err)
	}
	return nil
}
