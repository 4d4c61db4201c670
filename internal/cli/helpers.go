package cli

import (
	"fmt"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/archive"
	"github.com/glorpus-work/modpatch/pkg/config"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/history"
	"github.com/glorpus-work/modpatch/pkg/hooks"
	"github.com/glorpus-work/modpatch/pkg/library"
	"github.com/glorpus-work/modpatch/pkg/patcher"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	GameDir    *string
	Verbose    *bool
)

// InitLogging configures the logger from the configuration and the --verbose flag.
func InitLogging() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		level = "debug"
	}
	logger.InitLogger(level, logger.OutputFormat(cfg.Settings.OutputFormat))
	return nil
}

func loadConfig() (*config.Config, error) {
	configPath := getConfigPath()
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		logger.Warn("Failed to get default config path, using defaults", logger.Fields{"error": err.Error()})
		return ""
	}
	return defaultPath
}

// openLibrary opens the library of the configured game directory.
func openLibrary(cfg *config.Config) (*library.Library, error) {
	gameDir := cfg.Game.Dir
	if GameDir != nil && *GameDir != "" {
		gameDir = *GameDir
	}
	if gameDir == "" {
		return nil, errors.Wrap(errors.ErrNoGameDir, "set game.dir in the config or pass --game-dir")
	}
	return library.Open(gameDir, library.Options{
		DirName:            cfg.Settings.LibraryDir,
		GameID:             cfg.Game.ID,
		GameVersion:        cfg.Game.Version,
		MaxConcurrentLoads: cfg.Settings.MaxConcurrentLoads,
	})
}

// newPatcher creates a patcher configured from cfg.
func newPatcher(cfg *config.Config) (*patcher.Patcher, error) {
	registry, err := archive.NewDefaultRegistry(cfg.Settings.ArchiveManagers)
	if err != nil {
		return nil, err
	}
	mode, err := history.ParseMode(cfg.Settings.HistoryMode)
	if err != nil {
		return nil, err
	}

	opts := []patcher.Option{
		patcher.WithHistoryMode(mode),
		patcher.WithStrictArchiveLocations(cfg.Settings.StrictArchiveLocations),
	}
	if cfg.Settings.HooksEnabled {
		opts = append(opts, patcher.WithHooks(hooks.NewTengoExecutor()))
	}
	return patcher.New(registry, opts...), nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
