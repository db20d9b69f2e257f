package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/bibgest/internal/catalog"
	"github.com/dgallion1/bibgest/internal/config"
	"github.com/dgallion1/bibgest/internal/pipeline"
	"github.com/dgallion1/bibgest/internal/relator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for bibgest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	walker       *catalog.Walker
	relators     *relator.Registry
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, walker *catalog.Walker, relators *relator.Registry, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		walker:       walker,
		relators:     relators,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.BibgestAPIKey, s.log))

		r.Post("/api/parse", s.handleParse)

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Get("/api/ingest/{jobID}/result", s.handleIngestResult)
		r.Get("/api/stats/parse", s.handleParseStats)

		r.Get("/api/relators", s.handleListRelators)
		r.Get("/api/relators/search", s.handleSearchRelators)
		r.Get("/api/relators/{code}", s.handleGetRelator)

		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
