package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var voteFlags struct {
	chapter int
}

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Propose three plot directions for the next chapter",
	Long: "Summarises a reviewed chapter and stores three plot options for the\n" +
		"chapter after it. Fill in winning_text in the votes table to steer generation.",
	RunE: runVote,
}

func init() {
	voteCmd.Flags().IntVarP(&voteFlags.chapter, "chapter", "c", 0, "Reviewed chapter number (required)")
	_ = voteCmd.MarkFlagRequired("chapter")
}

func runVote(cmd *cobra.Command, _ []string) error {
	a, err := openApp(loadedConfig, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.novel().Vote(cmd.Context(), voteFlags.chapter); err != nil {
		return fmt.Errorf("vote after chapter %d: %w", voteFlags.chapter, err)
	}

	v, ok, err := a.ledger.Vote(cmd.Context(), voteFlags.chapter+1)
	if err != nil || !ok {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Plot options for chapter %d:\n", v.CollectionID)
	for i, o := range v.Options {
		fmt.Fprintf(out, "  %c) %s\n", 'A'+i, o)
	}
	if v.WinningText != "" {
		fmt.Fprintf(out, "Chosen: %s\n", v.WinningText)
	}
	return nil
}
