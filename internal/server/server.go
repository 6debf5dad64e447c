package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veylin/mnemo/internal/engine"
	"github.com/veylin/mnemo/internal/store"
)

// Server is the mnemo HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server around the engine and its database.
func New(eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      eng.DB(),
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/extract", s.handleExtract)
		r.Post("/extract/quick", s.handleQuickExtract)

		r.Get("/context", s.handleContext)

		r.Get("/search", s.handleSearch)
		r.Get("/search/hybrid", s.handleHybridSearch)

		r.Get("/facts", s.handleListFacts)
		r.Delete("/facts", s.handleDeleteAllFacts)
		r.Get("/facts/{factID}/related", s.handleRelatedFacts)
		r.Post("/facts/{factID}/feedback", s.handleFeedback)

		r.Get("/conflicts", s.handleConflicts)
		r.Post("/conflicts/resolve", s.handleResolveConflict)
		r.Post("/conflicts/auto", s.handleAutoResolve)

		r.Get("/quality", s.handleQuality)
		r.Post("/maintenance/decay", s.handleDecay)
		r.Post("/maintenance/cleanup", s.handleCleanup)

		r.Get("/privacy", s.handlePrivacyStatus)
		r.Post("/privacy/learning", s.handlePrivacyLearning)
		r.Post("/privacy/category", s.handlePrivacyCategory)
		r.Post("/privacy/preset", s.handlePrivacyPreset)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	count, _ := s.db.CountActive(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
		"facts":   count,
	})
}
