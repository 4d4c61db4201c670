package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/modpatch/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	gameDir    string
	verbose    bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modpatch",
		Short: "Apply file mods to game installations",
		Long: `modpatch manages mods for a game installation:
- Library: install, uninstall, enable, disable and order mods
- Apply: change game files and archives, saving the originals for reverting
- Tooling: pack mod directories into distributable packages`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return cli.InitLogging()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: user config dir)")
	cmd.PersistentFlags().StringVarP(&gameDir, "game-dir", "g", "", "game installation directory (overrides game.dir)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Set up CLI package variables
	cli.ConfigPath = &configPath
	cli.GameDir = &gameDir
	cli.Verbose = &verbose

	// Add subcommands
	cmd.AddCommand(
		cli.NewInstallCmd(),
		cli.NewUninstallCmd(),
		cli.NewListCmd(),
		cli.NewEnableCmd(),
		cli.NewDisableCmd(),
		cli.NewMoveCmd(),
		cli.NewVariantCmd(),
		cli.NewApplyCmd(),
		cli.NewPlanCmd(),
		cli.NewHistoryCmd(),
		cli.NewPackCmd(),
		cli.NewConfigCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
