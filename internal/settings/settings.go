// Package settings persists user configuration for the recording daemon.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultRegion selects the remote service host when none is configured.
const DefaultRegion = "us-west-2"

// Settings is the single mutable configuration record. There is no default
// API key: the credential must be configured explicitly before any remote
// operation can succeed.
type Settings struct {
	APIKey     string `json:"apiKey"`
	Region     string `json:"region"`
	AutoRecord bool   `json:"autoRecord"`
}

// Defaults returns the settings used when no file exists yet.
func Defaults() Settings {
	return Settings{Region: DefaultRegion}
}

// Validate normalizes s in place and rejects unusable values.
func (s *Settings) Validate() error {
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.Region = strings.TrimSpace(s.Region)
	if s.Region == "" {
		s.Region = DefaultRegion
	}
	if strings.ContainsAny(s.Region, "/: ") {
		return fmt.Errorf("invalid region %q", s.Region)
	}
	return nil
}

// Store reads and writes the settings file. Loads substitute defaults for a
// missing or corrupt file; edits made on disk between loads are always picked
// up because callers re-read before every remote operation.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store for <configDir>/settings.json.
func NewStore(configDir string) *Store {
	return &Store{path: filepath.Join(configDir, "settings.json")}
}

// Load reads the settings file. A missing or unparseable file yields the
// defaults, never an error.
func (s *Store) Load() Settings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Defaults()
	}
	cfg := Defaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return Defaults()
	}
	return cfg
}

// Save validates and writes the settings file atomically.
func (s *Store) Save(cfg Settings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "settings-*.tmp")
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
