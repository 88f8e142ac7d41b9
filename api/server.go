package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tenantdesk/config"
	"tenantdesk/core/auth"
	"tenantdesk/core/incidents"
	"tenantdesk/core/realtime"
	"tenantdesk/core/tenancy"
	"tenantdesk/core/utils"
)

const shutdownTimeout = 15 * time.Second

// BackgroundWorker is started with the server and stopped after the listener closes.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	DB        *sql.DB
	Sessions  *auth.SessionManager
	Incidents *incidents.Service
	Realtime  *realtime.Router
	Workers   []BackgroundWorker
}

type Server struct {
	cfg          *config.AppConfig
	logger       *utils.Logger
	db           *sql.DB
	sessions     *auth.SessionManager
	incidents    *incidents.Service
	scope        *tenancy.Scope
	realtime     *realtime.Router
	workers      []BackgroundWorker
	loginLimiter *requestLimiter
	handler      http.Handler
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		db:           deps.DB,
		sessions:     deps.Sessions,
		incidents:    deps.Incidents,
		realtime:     deps.Realtime,
		workers:      deps.Workers,
		loginLimiter: newLimiter(cfg.Security.LoginAttempts, cfg.Security.LoginWindow),
	}
	if deps.Incidents != nil {
		s.scope = deps.Incidents.Scope()
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.securityHeadersMiddleware, s.loggingMiddleware)
	h := s.newRouteHandlers()
	r.Get("/health", h.health.Health)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		s.registerAuthRoutes(apiRouter, h)
		s.registerIncidentRoutes(apiRouter, h)
		s.registerClientRoutes(apiRouter, h)
		s.registerUserRoutes(apiRouter, h)
		s.registerRealtimeRoutes(apiRouter, h)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorEnvelope("not_found", "route.not_found", "route not found"))
	})
	return r
}

// Run serves until ctx is cancelled, then drains connections and stops the workers.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("http shutdown: %v", err)
	}
	for _, w := range s.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			s.logger.Errorf("stop worker: %v", err)
		}
	}
	return serveErr
}
