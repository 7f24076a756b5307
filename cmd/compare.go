package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/match"
)

var compareCmd = &cobra.Command{
	Use:   "compare <a.jpg> <b.jpg>",
	Short: "Compare the first faces of two gallery images",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().Float64("threshold", 0, "Match threshold (default from configuration)")
}

func runCompare(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 {
		threshold = a.cfg.MatchThreshold()
	}

	ctx := context.Background()
	encA, err := a.store.EncodeFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", args[0], err)
	}
	encB, err := a.store.EncodeFile(ctx, args[1])
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", args[1], err)
	}

	distance, matched := match.Compare(encA, encB, threshold)
	verdict := "different people"
	if matched {
		verdict = "same person"
	}
	fmt.Printf("%s vs %s\n", args[0], args[1])
	fmt.Printf("  Distance:  %.4f (threshold %.2f)\n", distance, threshold)
	fmt.Printf("  Verdict:   %s\n", verdict)
	return nil
}
