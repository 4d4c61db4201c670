package cli

import (
	"context"
	"fmt"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [PACKAGE|DIR...]",
		Short: "Install mods into the library",
		Long: `Install one or more mods from mod packages (.zip, .tar.gz, .7z, ...) or
unpacked mod directories. New mods are enabled and get the highest priority;
reinstalling a mod keeps its position and settings. Run apply afterwards to
change the game files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), args)
		},
	}

	return cmd
}

func runInstall(ctx context.Context, sources []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	for _, source := range sources {
		m, err := lib.InstallMod(ctx, source)
		if err != nil {
			return fmt.Errorf("failed to install %s: %w", source, err)
		}
		logger.Success("Mod installed", logger.Fields{"mod": m.ID(), "version": m.Version().String()})
	}
	return nil
}

// NewUninstallCmd creates the uninstall command.
func NewUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall MOD...",
		Short: "Remove mods from the library",
		Long: `Remove one or more mods from the library. The game files they changed are
restored by the next apply.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runUninstall(args)
		},
	}

	return cmd
}

func runUninstall(ids []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := lib.UninstallMod(id); err != nil {
			return fmt.Errorf("failed to uninstall %s: %w", id, err)
		}
	}
	return nil
}
