package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ActiveSession is one capturing session as shown to external tooling. The
// upload token is deliberately absent: status files must never carry secrets.
type ActiveSession struct {
	SourceID  string    `json:"source_id"`
	Platform  string    `json:"platform"`
	Title     string    `json:"title"`
	UploadID  string    `json:"upload_id"`
	StartedAt time.Time `json:"started_at"`
}

// StatusSnapshot represents the daemon state at a point in time
type StatusSnapshot struct {
	EngineConnected bool            `json:"engine_connected"` // Capture engine link status
	EngineVersion   string          `json:"engine_version"`   // Reported by the engine handshake
	ActiveSessions  []ActiveSession `json:"active_sessions"`  // Sessions currently capturing
	AutoRecord      bool            `json:"auto_record"`      // Current auto-record setting
	LastError       string          `json:"last_error"`       // Last error message
	Timestamp       time.Time       `json:"timestamp"`        // Snapshot time
}

// CacheDir returns the daemon's runtime state directory.
func CacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "callrec")
}

// WriteStatus persists StatusSnapshot to ~/.cache/callrec/status.json using atomic write
func WriteStatus(status *StatusSnapshot) error {
	cacheDir := CacheDir()
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}

	statusPath := filepath.Join(cacheDir, "status.json")
	return atomicWriteJSON(statusPath, status)
}

// ReadStatus loads StatusSnapshot from ~/.cache/callrec/status.json
func ReadStatus() (*StatusSnapshot, error) {
	statusPath := filepath.Join(CacheDir(), "status.json")

	data, err := os.ReadFile(statusPath)
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
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

	// Write JSON with indentation for readability
	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}
