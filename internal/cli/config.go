package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/archive"
	"github.com/glorpus-work/modpatch/pkg/config"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/fsutil"
	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and modify the game installation and apply settings of modpatch",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigGetCmd(),
		newConfigInitCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the game installation, its library location and the apply settings",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigShow()
		},
	}
}

// Number of arguments expected by the set command.
const setCommandArgs = 2

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long: `Set a configuration key. Game keys: game_dir, game_id, game_version.
Apply keys: library_dir, history_mode (move|copy), strict_archive_locations,
hooks_enabled, max_concurrent_loads, archive_managers (comma separated).`,
		Args: cobra.ExactArgs(setCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		force       bool
		gameID      string
		gameVersion string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a default configuration file for the game given with --game-dir",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigInit(force, gameID, gameVersion)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")
	cmd.Flags().StringVar(&gameID, "game-id", "", "Game ID matched against the games mods target")
	cmd.Flags().StringVar(&gameVersion, "game-version", "", "Game version matched against mod target constraints")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Println(getConfigPath())
			return nil
		},
	}
}

func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "GAME\tVALUE")
	_, _ = fmt.Fprintf(tabWriter, "game_dir\t%s\n", orNone(cfg.Game.Dir))
	_, _ = fmt.Fprintf(tabWriter, "game_id\t%s\n", orNone(cfg.Game.ID))
	_, _ = fmt.Fprintf(tabWriter, "game_version\t%s\n", orNone(cfg.Game.Version))
	if cfg.Game.Dir != "" {
		libPath := cfg.GetLibraryPath(cfg.Game.Dir)
		status := "not created"
		if fsutil.IsDir(libPath) {
			status = "present"
		}
		_, _ = fmt.Fprintf(tabWriter, "library\t%s (%s)\n", libPath, status)
	}
	_, _ = fmt.Fprintln(tabWriter, "\t")

	settingsMap := cfg.ToMap()
	if settingsMap["archive_managers"] == "" {
		settingsMap["archive_managers"] = strings.Join([]string{archive.MPQManagerID, archive.ZipManagerID}, ",") + " (all)"
	}
	keys := make([]string, 0, len(settingsMap))
	for key := range settingsMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintln(tabWriter, "SETTING\tVALUE")
	for _, key := range keys {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\n", key, settingsMap[key])
	}
	return tabWriter.Flush()
}

func runConfigSet(key, value string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	oldLibrary := ""
	if cfg.Game.Dir != "" {
		oldLibrary = cfg.GetLibraryPath(cfg.Game.Dir)
	}

	if err := cfg.SetValue(key, value); err != nil {
		return fmt.Errorf("failed to set configuration value: %w", err)
	}

	switch key {
	case "archive_managers":
		if _, err := archive.NewDefaultRegistry(cfg.Settings.ArchiveManagers); err != nil {
			return fmt.Errorf("failed to set configuration value: %w", err)
		}
	case "library_dir", "game_dir":
		if oldLibrary != "" && cfg.Game.Dir != "" && oldLibrary != cfg.GetLibraryPath(cfg.Game.Dir) && fsutil.IsDir(oldLibrary) {
			logger.Warn("Existing library is not moved; run apply with no mods enabled first to revert its changes", logger.Fields{"library": oldLibrary})
		}
	case "history_mode":
		logger.Info("History mode takes effect on the next apply", logger.Fields{"mode": cfg.Settings.HistoryMode})
	}

	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	logger.Success("Configuration updated", logger.Fields{"key": key, "value": value})
	return nil
}

func runConfigGet(key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	value, err := cfg.GetValue(key)
	if err != nil {
		return fmt.Errorf("failed to get configuration value: %w", err)
	}

	fmt.Println(value)
	return nil
}

func runConfigInit(force bool, gameID, gameVersion string) error {
	configPath := getConfigPath()

	if fsutil.IsFile(configPath) && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite): %w", configPath, errors.ErrConfigFileExists)
	}

	cfg := config.DefaultConfig()
	if GameDir != nil && *GameDir != "" {
		cfg.Game.Dir = *GameDir
		if !fsutil.IsDir(cfg.Game.Dir) {
			logger.Warn("Game directory does not exist yet", logger.Fields{"dir": cfg.Game.Dir})
		}
	}
	cfg.Game.ID = gameID
	cfg.Game.Version = gameVersion
	if err := cfg.SaveConfig(configPath); err != nil {
		return fmt.Errorf("failed to save default configuration: %w", err)
	}

	logger.Success("Configuration file created", logger.Fields{"path": configPath, "game_dir": cfg.Game.Dir})
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
