package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"garrison-gate/config"
	"garrison-gate/core/authapi"
	"garrison-gate/core/guard"
	"garrison-gate/core/janitor"
	"garrison-gate/core/session"
	"garrison-gate/core/utils"
	"garrison-gate/core/verify"
)

// Server is the gateway's HTTP shell. Each running process is one
// application window: it owns its own session state and verification
// waiter, and shares the pending-auth slot and event log with other
// windows through the store.
type Server struct {
	cfg        *config.AppConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *utils.Logger
	db         *sql.DB

	sessions   *session.Service
	authClient *authapi.Client
	gate       *guard.Gate
	routes     []guard.RouteMeta
	waiter     *verify.Waiter
	janitor    *janitor.Janitor
}

type Deps struct {
	DB         *sql.DB
	Sessions   *session.Service
	AuthClient *authapi.Client
	Gate       *guard.Gate
	Routes     []guard.RouteMeta
	Waiter     *verify.Waiter
	Janitor    *janitor.Janitor
}

func NewServer(cfg *config.AppConfig, deps Deps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		router:     chi.NewRouter(),
		logger:     logger,
		db:         deps.DB,
		sessions:   deps.Sessions,
		authClient: deps.AuthClient,
		gate:       deps.Gate,
		routes:     deps.Routes,
		waiter:     deps.Waiter,
		janitor:    deps.Janitor,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.Use(s.logRequests)

	s.registerObservabilityRoutes()

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/session/login", s.handleLogin)
		r.Post("/session/logout", s.handleLogout)
		r.Get("/session/me", s.handleMe)
		r.Get("/session/routes", s.handleRoutes)

		r.Get("/verification/state", s.handleVerificationState)
		r.Post("/verification/resend", s.handleVerificationResend)
		r.Post("/verification/cancel", s.handleVerificationCancel)
		r.Get("/verification/qr.png", s.handleVerificationQR)
	})

	// Application views go through the admission gate; a denial turns
	// into the redirect the decision names.
	s.router.Group(func(r chi.Router) {
		r.Use(s.admit)
		for _, meta := range s.routes {
			r.Get(meta.Path, s.viewHandler(meta))
		}
	})
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Printf("HTTP listening on %s", s.cfg.ListenAddr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
