package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

func TestSettingsStore_Embedded(t *testing.T) {
	s := NewSettingsStore(domain.IndicesConfig{})

	for _, name := range []string{CrashSettings, CorrelationsSettings} {
		t.Run(name, func(t *testing.T) {
			settings, err := s.Load(name)
			require.NoError(t, err)
			assert.Contains(t, settings, "settings")
			mappings, ok := settings["mappings"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, mappings, name)
		})
	}
}

func TestSettingsStore_Override(t *testing.T) {
	path := writeFile(t, "crash.json", `{"settings": {"number_of_shards": 1}}`)
	s := NewSettingsStore(domain.IndicesConfig{CrashSettings: path})

	settings, err := s.Load(CrashSettings)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexSettings{"settings": map[string]any{"number_of_shards": float64(1)}}, settings)

	// The other family still uses its built-in settings.
	_, err = s.Load(CorrelationsSettings)
	require.NoError(t, err)
}

func TestSettingsStore_Errors(t *testing.T) {
	s := NewSettingsStore(domain.IndicesConfig{
		CrashSettings:        writeFile(t, "bad.json", `[1, 2]`),
		CorrelationsSettings: "/does/not/exist.json",
	})

	_, err := s.Load(CrashSettings)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.Load(CorrelationsSettings)
	assert.Error(t, err)

	_, err = s.Load("unknown")
	assert.Error(t, err)
}
