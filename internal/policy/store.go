package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veilhq/veil/internal/pii"
)

// State is the full persisted policy payload. Every mutation writes the
// whole state back; there is no partial update.
type State struct {
	Level      pii.Level             `json:"level"`
	Categories map[pii.Category]bool `json:"categories"`
	Consent    bool                  `json:"consent"`
}

// DefaultState returns the fixed fallback configuration: medium level,
// every category enabled, no consent. Pure function, no dependency on
// prior state.
func DefaultState() State {
	categories := make(map[pii.Category]bool)
	for _, cat := range pii.Categories() {
		categories[cat] = true
	}
	return State{
		Level:      pii.LevelMedium,
		Categories: categories,
		Consent:    false,
	}
}

// Store persists policy state across sessions.
type Store interface {
	Load() (*State, error)
	Save(State) error
}

// FileStore keeps policy state in a local JSON file, the durable
// session-scoped storage for the settings panel.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and decodes the persisted state. A missing file is not an
// error; it returns (nil, nil) so the caller falls back to defaults.
func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read policy state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode policy state: %w", err)
	}
	return &state, nil
}

// Save writes the full state synchronously.
func (s *FileStore) Save(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode policy state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create policy directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write policy state: %w", err)
	}
	return nil
}
