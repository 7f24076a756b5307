package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/match"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <path.jpg>",
	Short: "Recognize the faces in a probe image",
	Long: `Detect every face in the given image and match each one against
the gallery. The gallery is loaded from the cache when possible and
rebuilt otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", 0, "Match threshold (default from configuration)")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	if !a.embedder.Available() {
		return fmt.Errorf("EMBEDDING_URL environment variable is required")
	}

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 {
		threshold = a.cfg.MatchThreshold()
	}

	ctx := context.Background()
	if !a.store.LoadCache() {
		fmt.Println("Cache is cold, rebuilding from image directory...")
		if _, err := a.store.RebuildFromDisk(ctx, nil); err != nil {
			return fmt.Errorf("failed to build encodings cache: %w", err)
		}
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	resp, err := a.embedder.DetectFaces(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to process %s: %w", args[0], err)
	}
	if len(resp.Faces) == 0 {
		fmt.Println("No faces found.")
		return nil
	}

	snapshot := a.store.Snapshot()
	for i := range resp.Faces {
		face := &resp.Faces[i]
		m := match.BestMatch(snapshot, face.Embedding, threshold)
		loc := face.Location()
		if m.Distance != nil {
			fmt.Printf("Face %d at (%d,%d): %s (distance %.4f)\n",
				i+1, loc.Left, loc.Top, m.Name, *m.Distance)
		} else {
			fmt.Printf("Face %d at (%d,%d): %s (empty gallery)\n",
				i+1, loc.Left, loc.Top, m.Name)
		}
	}
	return nil
}
