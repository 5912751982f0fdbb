package cli

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

func TestNewCrashesCmd_RequiresProduct(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("", "new-crashes", "--version", "43.0.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--product is required")
}

func TestNewCrashesCmd_RequiresVersion(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("", "new-crashes", "-p", "Firefox")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one --version is required")
}

func TestNewCrashesCmd_InvalidDate(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("", "new-crashes", "-p", "Firefox", "--version", "1", "-d", "01/06/2015")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestNewCrashesCmd_PrintsIDs(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("", "new-crashes", "-p", "Firefox", "--version", "43.0.1,43.0", "-d", "2015-01-06")
	require.NoError(t, err)

	assert.Equal(t, "c1\nc2\nc3\n", out)
	assert.Equal(t, "Firefox", ts.source.gotProd)
	assert.Equal(t, []string{"43.0.1", "43.0"}, ts.source.gotVers)
	assert.Equal(t, time.Date(2015, 1, 6, 0, 0, 0, 0, time.UTC), ts.source.gotDate)
}

func TestNewCrashesCmd_Limit(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("", "new-crashes", "-p", "Firefox", "--version", "1", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "c1\nc2\n", out)
}

func TestNewCrashesCmd_Processed(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("", "new-crashes", "-p", "Firefox", "--version", "1", "--processed")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	var crash map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &crash))
	assert.Equal(t, "c1", crash["uuid"])
}

func TestNewCrashesCmd_SourceError(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.source.err = domain.ErrStoreUnavailable

	_, err := runCommand("", "new-crashes", "-p", "Firefox", "--version", "1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestParseDay(t *testing.T) {
	day, err := parseDay("2015-01-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 1, 6, 0, 0, 0, 0, time.UTC), day)

	today, err := parseDay("")
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Format(time.DateOnly), today.Format(time.DateOnly))
	assert.Zero(t, today.Hour())
}
