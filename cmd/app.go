package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/match"
	"github.com/kozaktomas/face-gallery/internal/registry"
)

// app bundles the wired core components every command works against.
type app struct {
	cfg      *config.Config
	embedder *embedder.Client
	store    *gallery.Store
	registry *registry.Registry
	index    *match.Index
}

// buildApp loads configuration and wires the gallery core. Nothing is
// scanned or loaded yet; callers decide between cache load and rebuild.
func buildApp() (*app, error) {
	cfg := config.Load()

	embed := embedder.New(cfg.Embedder.URL, cfg.Embedder.Model)
	store, err := gallery.NewStore(cfg.Gallery.ImagesDir, cfg.Gallery.CachePath, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery: %w", err)
	}

	return &app{
		cfg:      cfg,
		embedder: embed,
		store:    store,
		registry: registry.New(cfg.Gallery.RegistryPath, store.Locker()),
		index:    match.NewIndex(),
	}, nil
}
