package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var imagesFlags struct {
	chapter int
	act     int
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Extract scenes, write render prompts and render images for a chapter",
	RunE:  runImages,
}

func init() {
	f := imagesCmd.Flags()
	f.IntVarP(&imagesFlags.chapter, "chapter", "c", 0, "Chapter number (required)")
	f.IntVar(&imagesFlags.act, "act", 0, "Only this act (default all finished acts)")
	_ = imagesCmd.MarkFlagRequired("chapter")
}

func runImages(cmd *cobra.Command, _ []string) error {
	a, err := openApp(loadedConfig, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	artifacts := a.artifacts()
	if _, err := artifacts.Seed(ctx, imagesFlags.chapter, imagesFlags.act); err != nil {
		return fmt.Errorf("seed scenes: %w", err)
	}
	sum, err := artifacts.Run(ctx, imagesFlags.chapter, imagesFlags.act)
	if err != nil {
		return fmt.Errorf("run scene stages: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d scenes: %d produced, %d already done, %d failed\n",
		imagesFlags.chapter, sum.Produced, sum.Skipped, sum.Failed)
	return nil
}
