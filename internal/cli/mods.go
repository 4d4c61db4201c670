package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/model"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed mods",
		Long: `List the installed mods in priority order. The first mod wins when
several mods change the same file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runList()
		},
	}

	return cmd
}

func runList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	entries := lib.Mods()
	if len(entries) == 0 {
		fmt.Println("No mods installed")
		return nil
	}

	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "#\tMOD\tVERSION\tVARIANT\tSTATUS\tNAME")
	for i, entry := range entries {
		status := "enabled"
		if !entry.Enabled {
			status = "disabled"
		}
		name := ""
		if m, err := lib.LoadMod(entry.ID); err == nil {
			name = truncate(m.Metadata.DisplayName(), MaxDescriptionLength)
		} else {
			status = "broken"
			logger.Debug("Failed to load mod", logger.Fields{"mod": entry.ID, "error": err.Error()})
		}
		_, _ = fmt.Fprintf(tabWriter, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i, entry.ID, entry.Install.ModVersion, entry.SelectedVariant(), status, name)
	}
	return tabWriter.Flush()
}

// NewEnableCmd creates the enable command.
func NewEnableCmd() *cobra.Command {
	return newSetEnabledCmd("enable", "Enable mods", true)
}

// NewDisableCmd creates the disable command.
func NewDisableCmd() *cobra.Command {
	return newSetEnabledCmd("disable", "Disable mods", false)
}

func newSetEnabledCmd(use, short string, enabled bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " MOD...",
		Short: short,
		Long:  short + ". The change takes effect on the next apply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSetEnabled(args, enabled)
		},
	}

	return cmd
}

func runSetEnabled(ids []string, enabled bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := lib.SetEnabled(id, enabled); err != nil {
			return err
		}
		logger.Info("Mod updated", logger.Fields{"mod": id, "enabled": enabled})
	}
	return nil
}

// Number of arguments expected by the move and variant commands.
const pairCommandArgs = 2

// NewMoveCmd creates the move command.
func NewMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move MOD POSITION",
		Short: "Change the priority of a mod",
		Long:  "Move a mod to POSITION in the priority list. Position 0 is the highest priority.",
		Args:  cobra.ExactArgs(pairCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q: %w", args[1], err)
			}
			return runMove(args[0], index)
		},
	}

	return cmd
}

func runMove(id string, index int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	return lib.Move(id, index)
}

// NewVariantCmd creates the variant command.
func NewVariantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variant MOD [VARIANT]",
		Short: "Show or select the variant of a mod",
		Long: `Without VARIANT, list the variants a mod ships. With VARIANT, select it;
"` + model.DefaultVariant + `" selects the default files only.`,
		Args: cobra.RangeArgs(1, pairCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runVariantList(args[0])
			}
			return runVariantSet(args[0], args[1])
		},
	}

	return cmd
}

func runVariantList(id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	entry, err := lib.Entry(id)
	if err != nil {
		return err
	}
	m, err := lib.LoadMod(id)
	if err != nil {
		return err
	}

	for _, v := range m.Variants() {
		marker := " "
		if v == entry.SelectedVariant() {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, v)
	}
	return nil
}

func runVariantSet(id, variant string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	if err := lib.SetVariant(id, variant); err != nil {
		return err
	}
	logger.Info("Variant selected", logger.Fields{"mod": id, "variant": variant})
	return nil
}
