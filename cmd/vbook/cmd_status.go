package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/vbook/internal/pipeline"
	"github.com/dotcommander/vbook/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-chapter and per-act progress without changing anything",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := loadedConfig
	store, err := storage.OpenSQLiteReadOnly(cfg.Paths.Database)
	if errors.Is(err, os.ErrNotExist) {
		return (&pipeline.Report{}).Render(cmd.OutOrStdout())
	}
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()

	report, err := pipeline.BuildReport(cmd.Context(), storage.NewLedger(store), cfg.Story.UnitsPerCollection)
	if err != nil {
		return err
	}
	return report.Render(cmd.OutOrStdout())
}

// printReport ends a run with the status report and fails the command when
// any act or chapter recorded an error.
func printReport(cmd *cobra.Command, a *app) error {
	report, err := a.novel().Status(cmd.Context())
	if err != nil {
		return err
	}
	if err := report.Render(cmd.OutOrStdout()); err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d act(s) or chapter(s) failed; re-run to resume", n)
	}
	return nil
}
