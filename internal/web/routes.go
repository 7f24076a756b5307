package web

import (
	"github.com/kozaktomas/face-gallery/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	maxUpload := s.config.Gallery.MaxUploadBytes()

	healthHandler := handlers.NewHealthHandler(s.embedder)
	galleryHandler := handlers.NewGalleryHandler(s.store, s.index, maxUpload)
	recognizeHandler := handlers.NewRecognizeHandler(s.store, s.registry, s.embedder, s.config.MatchThreshold(), maxUpload)
	registryHandler := handlers.NewRegistryHandler(s.registry)
	identitiesHandler := handlers.NewIdentitiesHandler(s.store)

	s.router.Get("/health", handlers.HealthCheck)
	s.router.Get("/ready", healthHandler.Ready)

	s.router.Get("/images", galleryHandler.List)
	s.router.Get("/images/{filename}", galleryHandler.Serve)
	s.router.Get("/images/{filename}/similar", galleryHandler.Similar)
	s.router.Post("/upload", galleryHandler.Upload)
	s.router.Delete("/images/{filename}", galleryHandler.Delete)
	s.router.Post("/reload", galleryHandler.Reload)

	s.router.Post("/recognize", recognizeHandler.Recognize)
	s.router.Post("/compare", recognizeHandler.Compare)

	s.router.Get("/registry", registryHandler.List)
	s.router.Get("/identities", identitiesHandler.List)
}
