package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List the gallery images and their face counts",
	RunE:  runImages,
}

func init() {
	rootCmd.AddCommand(imagesCmd)
}

func runImages(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	a.store.LoadCache()

	images, err := a.store.ListKnown()
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	if len(images) == 0 {
		fmt.Println("The gallery is empty.")
		return nil
	}

	for _, img := range images {
		if img.Faces == nil {
			fmt.Printf("%-40s faces: ?\n", img.Filename)
			continue
		}
		fmt.Printf("%-40s faces: %d\n", img.Filename, *img.Faces)
	}
	fmt.Printf("\n%d images, %d with a cached encoding\n", len(images), a.store.Count())
	return nil
}
