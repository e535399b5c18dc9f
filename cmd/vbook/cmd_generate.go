package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var generateFlags struct {
	chapter int
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Draft and refine every act of a chapter, in order",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().IntVarP(&generateFlags.chapter, "chapter", "c", 0, "Chapter number (required)")
	_ = generateCmd.MarkFlagRequired("chapter")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	a, err := openApp(loadedConfig, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.novel().Generate(cmd.Context(), generateFlags.chapter); err != nil {
		return fmt.Errorf("generate chapter %d: %w", generateFlags.chapter, err)
	}
	return printReport(cmd, a)
}
