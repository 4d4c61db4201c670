// Package config provides configuration management for modpatch. It handles loading,
// validating and saving the YAML configuration file and provides defaults for every
// setting, so a missing file is equivalent to an empty one.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Game identifies the installation mods are applied to.
	Game GameConfig `yaml:"game"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// GameConfig describes the game installation.
type GameConfig struct {
	// Dir is the game installation directory. The --game-dir flag overrides it.
	Dir string `yaml:"dir,omitempty"`
	// ID and Version are matched against the game targets mods declare.
	ID      string `yaml:"id,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// LibraryDir is the library directory name, relative to the game directory.
	LibraryDir string `yaml:"library_dir"`

	// History settings
	HistoryMode string `yaml:"history_mode"` // move, copy

	// Apply settings
	StrictArchiveLocations bool     `yaml:"strict_archive_locations"`
	HooksEnabled           bool     `yaml:"hooks_enabled"`
	MaxConcurrentLoads     int      `yaml:"max_concurrent_loads"`
	ArchiveManagers        []string `yaml:"archive_managers,omitempty"`

	// Output settings
	OutputFormat string `yaml:"output_format"` // text, json
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
}

// History modes.
const (
	HistoryModeMove = "move"
	HistoryModeCopy = "copy"
)

// Default configuration values.
const (
	// DefaultLibraryDir is the hidden library directory inside the game directory.
	DefaultLibraryDir = "." + fsutil.AppName

	// DefaultMaxConcurrentLoads bounds how many mods are loaded in parallel.
	DefaultMaxConcurrentLoads = 4

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LibraryDir:         DefaultLibraryDir,
			HistoryMode:        HistoryModeMove,
			HooksEnabled:       true,
			MaxConcurrentLoads: DefaultMaxConcurrentLoads,
			OutputFormat:       "text",
			LogLevel:           "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	// Unmarshal onto the defaults so omitted booleans keep their default value.
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}

	return config, nil
}

// SaveConfig saves configuration to a file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(absPath, strings.NewReader(string(data)), fsutil.FileModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var sb strings.Builder
	encoder := yaml.NewEncoder(&sb)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return []byte(sb.String()), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	return validateSettings(c.Settings)
}

func validateSettings(s Settings) error {
	if s.LibraryDir == "" || filepath.IsAbs(s.LibraryDir) || strings.Contains(filepath.ToSlash(s.LibraryDir), "..") {
		return fmt.Errorf("library_dir must be a relative directory name, got %q", s.LibraryDir)
	}
	switch s.HistoryMode {
	case HistoryModeMove, HistoryModeCopy:
	default:
		return fmt.Errorf("invalid history_mode %q, valid values: %s, %s", s.HistoryMode, HistoryModeMove, HistoryModeCopy)
	}
	if s.MaxConcurrentLoads < 1 {
		return fmt.Errorf("max_concurrent_loads must be at least 1, got %d", s.MaxConcurrentLoads)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.OutputFormat] {
		return fmt.Errorf("invalid output_format %q, valid values: text, json", s.OutputFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("invalid log_level %q, valid values: debug, info, warn, error", s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := fsutil.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetLibraryPath returns the library directory for gameDir.
func (c *Config) GetLibraryPath(gameDir string) string {
	return filepath.Join(gameDir, filepath.FromSlash(c.Settings.LibraryDir))
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.LibraryDir == "" {
		c.Settings.LibraryDir = defaults.Settings.LibraryDir
	}
	if c.Settings.HistoryMode == "" {
		c.Settings.HistoryMode = defaults.Settings.HistoryMode
	}
	c.Settings.HistoryMode = strings.ToLower(c.Settings.HistoryMode)
	if c.Settings.MaxConcurrentLoads == 0 {
		c.Settings.MaxConcurrentLoads = defaults.Settings.MaxConcurrentLoads
	}
	if c.Settings.OutputFormat == "" {
		c.Settings.OutputFormat = defaults.Settings.OutputFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}
