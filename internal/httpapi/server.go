package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/companion/internal/connectors"
	"github.com/haasonsaas/companion/internal/orchestrator"
	"github.com/haasonsaas/companion/internal/permission"
	"github.com/haasonsaas/companion/internal/sandbox"
	"github.com/haasonsaas/companion/internal/sessions"
	"github.com/haasonsaas/companion/internal/workspaces"
)

// Dependencies wires every collaborator the HTTP surface needs.
type Dependencies struct {
	Sessions     sessions.Store
	Workspaces   *workspaces.Store
	Orchestrator *orchestrator.Orchestrator
	Brokers      *permission.Registry
	Sandbox      *sandbox.Controller
	Connectors   *connectors.Registry
	Gateway      *connectors.Gateway
	Pairing      *connectors.PairingStore
	VaultRoot    string
	Logger       *slog.Logger
	Tokens       *TokenService
}

// Server is the chi-routed HTTP surface of spec.md §6, grounded on
// _examples/telnet2-opencode/go-opencode/internal/server's chi usage
// for route grouping.
type Server struct {
	deps   Dependencies
	router chi.Router
}

// New builds the router. Call Handler() to get an http.Handler to
// serve.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tokens == nil {
		deps.Tokens = NewTokenService("", 0)
	}
	s := &Server{deps: deps, router: chi.NewRouter()}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.deps.Tokens.Middleware)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", s.handleChat)
			r.Post("/abort/{sessionID}", s.handleAbort)
			r.Post("/answer/{requestID}", s.handleAnswer)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Patch("/", s.handleUpdateSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/archive", s.handleArchiveSession)
				r.Post("/unarchive", s.handleUnarchiveSession)
				r.Get("/transcript", s.handleGetTranscript)
			})
		})

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", s.handleListWorkspaces)
			r.Post("/", s.handleCreateWorkspace)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkspace)
				r.Put("/", s.handleUpdateWorkspace)
				r.Delete("/", s.handleDeleteWorkspace)
			})
		})

		r.Route("/bots", func(r chi.Router) {
			r.Get("/config", s.handleGetBotsConfig)
			r.Post("/config", s.handlePostBotsConfig)
			r.Post("/{platform}/start", s.handleBotStart)
			r.Post("/{platform}/stop", s.handleBotStop)
			r.Post("/{platform}/test", s.handleBotTest)
			r.Post("/pairing/{code}/approve", s.handlePairingApprove)
			r.Post("/pairing/{code}/deny", s.handlePairingDeny)
		})

		r.Route("/sandbox", func(r chi.Router) {
			r.Post("/build", s.handleSandboxBuild)
			r.Post("/default/stop", s.handleSandboxDefaultStop)
		})

		r.Post("/import", s.handleImport)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.deps.Sandbox != nil && !s.deps.Sandbox.Available(r.Context()) {
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{"status": status, "time": time.Now().UTC()})
}
