package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reviewFlags struct {
	chapter int
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Finish act reviews, then review the chapter as a whole",
	RunE:  runReview,
}

func init() {
	reviewCmd.Flags().IntVarP(&reviewFlags.chapter, "chapter", "c", 0, "Chapter number (required)")
	_ = reviewCmd.MarkFlagRequired("chapter")
}

func runReview(cmd *cobra.Command, _ []string) error {
	a, err := openApp(loadedConfig, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.novel().Review(cmd.Context(), reviewFlags.chapter); err != nil {
		return fmt.Errorf("review chapter %d: %w", reviewFlags.chapter, err)
	}
	return printReport(cmd, a)
}
