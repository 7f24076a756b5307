package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Gallery web server.
The server loads the encodings cache at startup, rebuilds it from the
image directory when the cache is missing or stale, and then answers
recognition requests over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	if !a.embedder.Available() {
		fmt.Println("Warning: EMBEDDING_URL is not set, recognition endpoints will fail")
	}

	ctx := context.Background()
	if a.store.LoadCache() {
		fmt.Printf("Loaded %d known faces from cache\n", a.store.Count())
	} else if a.embedder.Available() {
		fmt.Println("Cache is cold, rebuilding from image directory...")
		loaded, err := a.store.RebuildFromDisk(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to build encodings cache: %w", err)
		}
		fmt.Printf("Loaded %d known faces\n", loaded)
	}
	a.index.Rebuild(a.store.Snapshot())

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(a.cfg, a.store, a.registry, a.index, a.embedder, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Gallery on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
