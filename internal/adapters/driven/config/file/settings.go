package file

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

// Built-in settings names.
const (
	CrashSettings        = "crash_reports"
	CorrelationsSettings = "correlations"
)

//go:embed defaults/*.json
var defaultSettings embed.FS

// SettingsStore loads index settings documents from user-editable files
// with fallback to embedded defaults.
type SettingsStore struct {
	// overrides maps a settings name to a file on disk.
	overrides map[string]string
}

// NewSettingsStore creates a store reading the files named in cfg.
func NewSettingsStore(cfg domain.IndicesConfig) *SettingsStore {
	return &SettingsStore{overrides: map[string]string{
		CrashSettings:        cfg.CrashSettings,
		CorrelationsSettings: cfg.CorrelationsSettings,
	}}
}

// Load returns the named settings document.
func (s *SettingsStore) Load(name string) (domain.IndexSettings, error) {
	var (
		data []byte
		err  error
		from string
	)
	if path := s.overrides[name]; path != "" {
		from = path
		data, err = os.ReadFile(path)
	} else {
		from = "built-in " + name
		data, err = defaultSettings.ReadFile("defaults/" + name + ".json")
	}
	if err != nil {
		return nil, fmt.Errorf("reading index settings %s: %w", from, err)
	}

	var settings domain.IndexSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: index settings %s: %v", domain.ErrInvalidInput, from, err)
	}
	return settings, nil
}
