// Package api provides the HTTP API server and handlers for Harmonia.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
	"github.com/harmoniaapp/harmonia-server/internal/cache"
	"github.com/harmoniaapp/harmonia-server/internal/extractor"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	"github.com/harmoniaapp/harmonia-server/internal/store"
)

// ProviderReloader rebuilds the active providers. Stored configuration
// changes only take effect after a reload.
type ProviderReloader interface {
	Reload()
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store     *store.Store
	registry  *provider.Registry
	analyzer  *analysis.Analyzer
	extractor *extractor.Extractor
	cache     *cache.Cache
	reloader  ProviderReloader
	router    *chi.Mux
	logger    *slog.Logger
}

// NewServer creates an HTTP server with all routes configured. The
// reloader may be nil; provider configuration changes then wait for
// the next manifest reload.
func NewServer(st *store.Store, registry *provider.Registry, analyzer *analysis.Analyzer, ext *extractor.Extractor, mediaCache *cache.Cache, reloader ProviderReloader, logger *slog.Logger) *Server {
	s := &Server{
		store:     st,
		registry:  registry,
		analyzer:  analyzer,
		extractor: ext,
		cache:     mediaCache,
		reloader:  reloader,
		router:    chi.NewRouter(),
		logger:    logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Length"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/tracks", func(r chi.Router) {
			r.Get("/", s.handleListTracks)
			r.Get("/{id}", s.handleGetTrack)
			r.Delete("/{id}", s.handleDeleteTrack)
			r.Get("/stream/{id}", s.handleStreamTrack)
		})

		r.Route("/albums", func(r chi.Router) {
			r.Get("/{albumID}/tracks", s.handleAlbumTracks)
			r.Post("/{albumID}/sync-chapters", s.handleSyncChapters)
		})

		r.Post("/import", s.handleImport)
		r.Get("/search", s.handleSearch)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleListProviders)
			r.Put("/{id}/config", s.handleConfigureProvider)
		})
	})
}
