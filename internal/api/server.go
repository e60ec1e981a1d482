// Package api provides the HTTP API server and handlers for the VoxBook application.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/voxbookapp/voxbook-server/internal/executor"
	"github.com/voxbookapp/voxbook-server/internal/sse"
	"github.com/voxbookapp/voxbook-server/internal/store"
	"github.com/voxbookapp/voxbook-server/internal/validation"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      *store.Store
	services   *Services
	executor   *executor.Executor
	sseHandler *sse.Handler
	sseManager *sse.Manager
	router     *chi.Mux
	api        huma.API
	validate   *validation.Validator
	logger     *slog.Logger

	// importLimiter throttles import requests per client IP; imports do
	// disk IO and can enqueue model work, so they are easy to abuse.
	importLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, services *Services, exec *executor.Executor, sseHandler *sse.Handler, sseManager *sse.Manager, logger *slog.Logger) *Server {
	s := &Server{
		store:         st,
		services:      services,
		executor:      exec,
		sseHandler:    sseHandler,
		sseManager:    sseManager,
		router:        chi.NewRouter(),
		validate:      validation.New(),
		logger:        logger,
		importLimiter: NewRateLimiter(30, time.Minute, 10),
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("VoxBook API", "1.0.0")
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// API exposes the huma API for route registration in tests.
func (s *Server) API() huma.API {
	return s.api
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(s.limitImports)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))
}

// setupRoutes registers all huma routes plus the raw SSE endpoint.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerInstanceRoutes()
	s.registerBookRoutes()
	s.registerChapterRoutes()
	s.registerAnalysisRoutes()
	s.registerCharacterRoutes()
	s.registerSearchRoutes()

	// SSE streams outside huma: the response is a long-lived event stream,
	// not a JSON body.
	s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
}
