package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the encodings cache from the image directory",
	Long: `Scan every image in the gallery directory, recompute its face
encoding against the embedding server and rewrite the cache file.
Images the embedding server cannot process are skipped with a warning.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	if !a.embedder.Available() {
		return fmt.Errorf("EMBEDDING_URL environment variable is required")
	}

	entries, err := os.ReadDir(a.cfg.Gallery.ImagesDir)
	if err != nil {
		return fmt.Errorf("failed to list image directory: %w", err)
	}

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("Computing encodings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	loaded, err := a.store.RebuildFromDisk(context.Background(), func(filename string) {
		bar.Add(1)
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	fmt.Printf("\nLoaded %d known faces into %s\n", loaded, a.cfg.Gallery.CachePath)
	return nil
}
