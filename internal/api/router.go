// Package api provides the Orchestrator Core's HTTP surface: the plain
// JSON routes spec.md §6 names, plus the supplemented live audit stream.
// Grounded on the donor's internal/api/router.go chi-plus-middleware
// shape (RequestID/RealIP/Logger/Recoverer/Timeout, cors.Handler, an
// optional X-API-Key gate, writeJSON/writeError helpers) — the donor's
// actual routes (projects/search/web-UI) have no analog here and are
// replaced wholesale with the node-directory, command-dispatch, sync,
// and backend-switch routes this system needs.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/audit"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/planner"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/registry"
	"github.com/Vasanthadithya-mundrathi/NACC/pkg/llm"
)

// Server is the Orchestrator Core's HTTP API.
type Server struct {
	router      chi.Router
	registry    *registry.Registry
	switcher    *llm.Switcher
	planner     *planner.Planner
	auditLog    *audit.Logger
	broadcaster *audit.Broadcaster
	apiKey      string
}

// NewServer wires a Server against the orchestrator's core components.
// apiKey, when non-empty, gates every route but /healthz behind an
// X-API-Key (or ?api_key=) check.
func NewServer(reg *registry.Registry, switcher *llm.Switcher, pl *planner.Planner, auditLog *audit.Logger, broadcaster *audit.Broadcaster, apiKey string) *Server {
	s := &Server{
		registry:    reg,
		switcher:    switcher,
		planner:     pl,
		auditLog:    auditLog,
		broadcaster: broadcaster,
		apiKey:      apiKey,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.apiKey != "" {
		r.Use(s.apiKeyAuth)
	}

	r.Get("/healthz", s.handleHealthz)

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.handleListNodes)
		r.Route("/{nodeID}", func(r chi.Router) {
			r.Get("/", s.handleGetNode)
			r.Post("/files/list", s.handleNodeListFiles)
			r.Post("/files/read", s.handleNodeReadFile)
			r.Post("/files/write", s.handleNodeWriteFile)
		})
	})

	r.Post("/commands/execute", s.handleExecuteCommand)
	r.Post("/sync", s.handleSync)
	r.Post("/agents/probe", s.handleAgentsProbe)

	r.Get("/backends", s.handleListBackends)
	r.Post("/backends/switch", s.handleSwitchBackend)

	r.Get("/audit/stream", s.handleAuditStream)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyAuth gates every route but /healthz behind a shared API key.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}
		if apiKey != s.apiKey {
			writeError(w, http.StatusUnauthorized, model.ErrInternal, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
