package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-mutation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mutation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.AutoHistory)
	assert.Equal(t, mutation.AnonymousName, cfg.AnonymousName)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	path := writeConfig(t, `
auto_history: false
page_size: 50
store:
  driver: sqlite
  dsn: notes.db
log:
  level: debug
  format: json
history:
  retention: 720h
`)
	t.Setenv("MUTATION_STORE__DSN", "override.db")
	t.Setenv("MUTATION_ANONYMOUS_NAME", "guest")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.AutoHistory)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "override.db", cfg.Store.DSN)
	assert.Equal(t, "guest", cfg.AnonymousName)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 720*time.Hour, cfg.History.Retention)
	assert.Equal(t, "@daily", cfg.History.Schedule, "unset keys keep their defaults")
}

func TestLoadRejectsInvalidResult(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: postgres\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, CodeConfigInvalid, mutation.ErrorCode(err))
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("page_size: 5\nhistory:\n  retention: 24h\n  schedule: \"@hourly\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, 24*time.Hour, cfg.History.Retention)
	assert.Equal(t, "@hourly", cfg.History.Schedule)
	assert.True(t, cfg.AutoHistory)

	_, err = Parse([]byte("page_size: [nope"))
	assert.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.PageSize = 0
	cfg.AnonymousName = " "
	cfg.Store = StoreConfig{Driver: DriverSQLite}
	cfg.Log.Format = "xml"
	cfg.History = HistoryConfig{Retention: time.Hour, Timezone: "Mars/Olympus_Mons"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, CodeConfigInvalid, mutation.ErrorCode(err))
	for _, fragment := range []string{"page_size", "anonymous_name", "store.dsn", "log.format", "history.schedule", "history.timezone"} {
		assert.Contains(t, err.Error(), fragment)
	}
}

func TestHistoryLocation(t *testing.T) {
	loc, err := HistoryConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = HistoryConfig{Timezone: "UTC"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg, err := Parse([]byte("history:\n  timezone: UTC\n"))
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.History.Timezone)
}
