package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Settings.LogLevel)
	assert.Equal(t, ".modpatch", cfg.Settings.LibraryDir)
	assert.Equal(t, HistoryModeMove, cfg.Settings.HistoryMode)
	assert.True(t, cfg.Settings.HooksEnabled)
	assert.False(t, cfg.Settings.StrictArchiveLocations)
	assert.Equal(t, DefaultMaxConcurrentLoads, cfg.Settings.MaxConcurrentLoads)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `game:
  dir: /games/rayman2
  id: rayman2
  version: "1.5"
settings:
  log_level: debug
  history_mode: COPY
  strict_archive_locations: true
  archive_managers: [mpq]`

	err := os.WriteFile(configPath, []byte(configContent), fsutil.FileModeDefault)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/games/rayman2", cfg.Game.Dir)
	assert.Equal(t, "rayman2", cfg.Game.ID)
	assert.Equal(t, "1.5", cfg.Game.Version)
	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	assert.Equal(t, HistoryModeCopy, cfg.Settings.HistoryMode)
	assert.True(t, cfg.Settings.StrictArchiveLocations)
	assert.Equal(t, []string{"mpq"}, cfg.Settings.ArchiveManagers)
	// omitted values keep their defaults
	assert.True(t, cfg.Settings.HooksEnabled)
	assert.Equal(t, DefaultLibraryDir, cfg.Settings.LibraryDir)
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadConfig("")
	assert.ErrorIs(t, err, errors.ErrEmptyConfigPath)
}

func TestLoadConfigFromReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "bad yaml", content: "settings: [", wantErr: errors.ErrConfigParse},
		{name: "bad history mode", content: "settings:\n  history_mode: link", wantErr: errors.ErrConfigValidation},
		{name: "absolute library", content: "settings:\n  library_dir: /abs", wantErr: errors.ErrConfigValidation},
		{name: "bad log level", content: "settings:\n  log_level: loud", wantErr: errors.ErrConfigValidation},
		{name: "bad loads", content: "settings:\n  max_concurrent_loads: -1", wantErr: errors.ErrConfigValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.LogLevel = "debug"
	cfg.Settings.HooksEnabled = false
	cfg.Game.ID = "rayman2"

	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.SaveConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hooks_enabled: false")

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	assert.ErrorIs(t, cfg.SaveConfig(""), errors.ErrEmptyConfigPath)
}

func TestSetAndGetValue(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.SetValue("history_mode", "copy"))
	require.NoError(t, cfg.SetValue("hooks_enabled", "false"))
	require.NoError(t, cfg.SetValue("archive_managers", "mpq, zip"))
	require.NoError(t, cfg.SetValue("game_dir", "/games/x"))

	for key, want := range map[string]string{
		"history_mode":     "copy",
		"hooks_enabled":    "false",
		"archive_managers": "mpq,zip",
		"game_dir":         "/games/x",
		"library_dir":      ".modpatch",
	} {
		got, err := cfg.GetValue(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	assert.Error(t, cfg.SetValue("history_mode", "link"))
	assert.Error(t, cfg.SetValue("hooks_enabled", "maybe"))
	assert.Error(t, cfg.SetValue("unknown", "x"))
	_, err := cfg.GetValue("unknown")
	assert.Error(t, err)
}

func TestGetLibraryPath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("game", ".modpatch"), cfg.GetLibraryPath("game"))
}
