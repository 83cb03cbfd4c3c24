// Package api exposes the import preview and execution flow over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server is the HTTP surface of the importer.
type Server struct {
	router   chi.Router
	handlers *Handlers
}

func NewServer(h *Handlers) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		handlers: h,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/import", func(r chi.Router) {
		r.Get("/systems", s.handlers.ListSystems)

		r.Route("/preview", func(r chi.Router) {
			r.Post("/", s.handlers.CreatePreview)
			r.Get("/{previewId}", s.handlers.GetPreview)
			r.Post("/{previewId}/extend", s.handlers.ExtendPreview)
			r.Delete("/{previewId}", s.handlers.DeletePreview)
		})

		r.Post("/execute/{previewId}", s.handlers.ExecutePreview)
		r.Get("/cache/stats", s.handlers.CacheStats)
	})
}

// Router returns the chi router
func (s *Server) Router() http.Handler {
	return s.router
}
