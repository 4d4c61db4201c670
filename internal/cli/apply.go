package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cheggaaa/pb/v3"
	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/errors"
	"github.com/glorpus-work/modpatch/pkg/patcher"
	"github.com/spf13/cobra"
)

const progressTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . "[" "=" ">" "_" "]" }} {{percent . }}`

// NewApplyCmd creates the apply command.
func NewApplyCmd() *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the enabled mods to the game",
		Long: `Revert the previous apply and apply every enabled mod in priority order.
The original files are saved in the library so that disabling or uninstalling
a mod and applying again restores them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApply(cmd.Context(), noProgress)
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show a progress bar")

	return cmd
}

func runApply(ctx context.Context, noProgress bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	p, err := newPatcher(cfg)
	if err != nil {
		return err
	}

	var progress patcher.ProgressFunc
	if !noProgress {
		bar := pb.New(0).SetTemplateString(progressTemplate).Set("prefix", "Applying:")
		if err := bar.Err(); err != nil {
			return fmt.Errorf("failed to set up progress bar: %w", err)
		}
		bar.Start()
		defer bar.Finish()
		progress = func(pr patcher.Progress) {
			bar.SetTotal(int64(pr.Total))
			bar.SetCurrent(int64(pr.Done))
		}
	}

	result, err := p.Apply(ctx, lib, progress)
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	for _, s := range result.Skipped {
		logger.Warn("Archive skipped", logger.Fields{"location": s.Location, "reason": s.Err.Error()})
	}
	if !result.Success {
		for _, f := range result.Failed {
			logger.Error("Location not modified", logger.Fields{"location": f.Location, "error": f.Err.Error()})
		}
		for _, h := range result.HookErrors {
			logger.Error("Hook failed", logger.Fields{"error": h.Error()})
		}
		if err := result.Err(); err != nil {
			return fmt.Errorf("applied with some files not modified: %w", err)
		}
		return fmt.Errorf("applied, but %d hooks failed: %w", len(result.HookErrors), errors.ErrHookExecution)
	}

	logger.Success("Mods applied", logger.Fields{
		"files":    result.Applied,
		"added":    len(result.History.AddedFiles),
		"replaced": len(result.History.ReplacedFiles),
		"removed":  len(result.History.RemovedFiles),
	})
	return nil
}

// NewPlanCmd creates the plan command.
func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long:  "Compute the changes of the next apply without touching any file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd.Context())
		},
	}

	return cmd
}

func runPlan(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	p, err := newPatcher(cfg)
	if err != nil {
		return err
	}

	plans, err := p.Plan(ctx, lib)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Println("Nothing to do")
		return nil
	}

	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "ACTION\tSOURCE\tMOD\tPATH")
	for _, plan := range plans {
		if plan.Unavailable != nil {
			_, _ = fmt.Fprintf(tabWriter, "skip\t-\t-\t%s (%v)\n", plan.Location, plan.Unavailable)
			continue
		}
		for _, m := range plan.Modifications {
			modID := m.ModID
			if modID == "" {
				modID = "-"
			}
			source := m.Source.String()
			if plan.Revert {
				source = "revert"
			}
			_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\n", m.Type, source, modID, m.Path)
		}
	}
	return tabWriter.Flush()
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the files changed by the last apply",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runHistory()
		},
	}

	return cmd
}

func runHistory() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	snap, err := lib.ReadHistory()
	if err != nil {
		return err
	}
	if snap.IsEmpty() {
		fmt.Println("No files changed")
		return nil
	}

	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "TYPE\tPATH")
	for _, e := range snap.Entries {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\n", e.Type, e.Path)
	}
	return tabWriter.Flush()
}
