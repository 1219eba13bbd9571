package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/facecam/internal/web/handlers"
	"github.com/kozaktomas/facecam/internal/web/static"
)

func (s *Server) setupRoutes(opts Options) {
	// Create handlers
	previewHandler := handlers.NewPreviewHandler(s.frames, opts.Commands, s.logger)
	matchHandler := handlers.NewMatchHandler(opts.Matcher, opts.Provider, s.logger)

	s.router.Get("/health", handlers.HealthCheck)

	// Long-lived, no timeout.
	s.router.Get("/stream.mjpg", previewHandler.Stream)
	s.router.Get("/snapshot.jpg", previewHandler.Snapshot)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(2 * time.Minute))

		r.Get("/health", handlers.HealthCheck)
		r.Get("/status", previewHandler.Status)
		r.Post("/control/{action}", previewHandler.Control)
		r.Get("/gallery", matchHandler.Gallery)
		r.Post("/match", matchHandler.Match)
	})

	// Preview page
	s.router.Handle("/*", http.FileServer(static.GetFileSystem()))
}
