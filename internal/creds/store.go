package creds

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/auralink/auralink/internal/events"
	"github.com/auralink/auralink/internal/faults"
	"github.com/auralink/auralink/internal/logging"
	"go.uber.org/zap"
)

const (
	// StateDirEnvVar overrides the directory holding persisted state.
	// Used by tests and development runs.
	StateDirEnvVar = "AURALINK_STATE_DIR"

	defaultStateDir = "/var/lib/auralink"
	credsFile       = "wifi.yaml"

	// MaxSSIDLen and MaxPasswordLen match the radio's limits: an SSID is at
	// most 32 bytes, a WPA2 passphrase at most 64.
	MaxSSIDLen     = 32
	MaxPasswordLen = 64
)

// Credentials is the persisted network name and secret. Password may be
// empty for open networks.
type Credentials struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// Validate checks the credential limits without touching any state
func Validate(c Credentials) error {
	if len(c.SSID) == 0 {
		return faults.NewValidation("ssid must not be empty")
	}
	if len(c.SSID) > MaxSSIDLen {
		return faults.NewValidation(fmt.Sprintf("ssid exceeds %d bytes", MaxSSIDLen))
	}
	if len(c.Password) > MaxPasswordLen {
		return faults.NewValidation(fmt.Sprintf("password exceeds %d bytes", MaxPasswordLen))
	}
	return nil
}

// Store persists credentials to a YAML file. Writes are atomic (tmp +
// rename) and guarded by a mutex so concurrent savers cannot interleave.
type Store struct {
	mu   sync.Mutex
	path string
	bus  *events.Bus
}

// NewStore creates a store at the default state directory, honoring the
// AURALINK_STATE_DIR override.
func NewStore(bus *events.Bus) *Store {
	dir := os.Getenv(StateDirEnvVar)
	if dir == "" {
		dir = defaultStateDir
	}
	return NewStoreAt(filepath.Join(dir, credsFile), bus)
}

// NewStoreAt creates a store backed by the given file path
func NewStoreAt(path string, bus *events.Bus) *Store {
	return &Store{path: path, bus: bus}
}

// HasValid reports whether a valid credential set is persisted, returning it
// when present. Absence of the file, a corrupt file, or out-of-range fields
// all count as "no valid configuration".
func (s *Store) HasValid() (bool, *Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		logging.Debug("No stored credentials", zap.String("path", s.path), zap.Error(err))
		return false, nil
	}

	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		logging.Warn("Stored credentials unreadable", zap.String("path", s.path), zap.Error(err))
		return false, nil
	}

	if err := Validate(c); err != nil {
		logging.Warn("Stored credentials invalid", zap.Error(err))
		return false, nil
	}

	return true, &c
}

// Save validates and persists the credentials. On failure the previously
// stored state is left untouched. A successful save raises the ConfigSaved
// event bit.
func (s *Store) Save(c Credentials) error {
	if err := Validate(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Write to temporary file first (atomic write)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary credentials file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save credentials file: %w", err)
	}

	logging.Info("Credentials saved",
		zap.String("ssid", c.SSID),
		zap.Int("password_len", len(c.Password)),
	)

	if s.bus != nil {
		s.bus.Set(events.ConfigSaved)
	}
	return nil
}

// Erase removes the persisted credentials. Missing state is not an error.
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to erase credentials: %w", err)
	}

	logging.Info("Credentials erased", zap.String("path", s.path))
	return nil
}
