package cli

import (
	"context"
	"fmt"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/mod"
	"github.com/glorpus-work/modpatch/pkg/modpkg"
	"github.com/spf13/cobra"
)

// Number of arguments expected by the pack command.
const packCommandArgs = 2

// NewPackCmd creates the pack command.
func NewPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack SOURCE_DIR OUTPUT",
		Short: "Create a mod package",
		Long: `Validate the mod in SOURCE_DIR and pack it into OUTPUT. The format follows
the extension of OUTPUT: .zip, .tar.gz or .tgz.`,
		Args: cobra.ExactArgs(packCommandArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(cmd.Context(), args[0], args[1])
		},
	}

	return cmd
}

func runPack(ctx context.Context, sourceDir, output string) error {
	m, err := mod.LoadDir(sourceDir)
	if err != nil {
		return err
	}
	if err := m.Verify(); err != nil {
		return err
	}
	if err := modpkg.Pack(ctx, sourceDir, output); err != nil {
		return fmt.Errorf("failed to pack %s: %w", m.ID(), err)
	}

	logger.Success("Mod packed", logger.Fields{"mod": m.ID(), "version": m.Version().String(), "path": output})
	return nil
}
