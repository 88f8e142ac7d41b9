package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenantdesk/api/routegroups"
	"tenantdesk/core/rbac"
)

func (s *Server) guards() routegroups.Guards {
	return routegroups.Guards{
		WithSession:       s.withSession,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc { return s.requirePermission(rbac.Permission(p)) },
	}
}

func (s *Server) registerAuthRoutes(apiRouter chi.Router, h routeHandlers) {
	apiRouter.Route("/auth", func(authRouter chi.Router) {
		authRouter.Post("/login", s.rateLimitMiddleware(h.auth.Login))
		authRouter.Get("/me", s.withSession(h.auth.Me))
	})
}

func (s *Server) registerIncidentRoutes(apiRouter chi.Router, h routeHandlers) {
	routegroups.RegisterIncidents(apiRouter, s.guards(), h.incidents, h.comments)
}

func (s *Server) registerClientRoutes(apiRouter chi.Router, h routeHandlers) {
	routegroups.RegisterClients(apiRouter, s.guards(), h.clients)
}

func (s *Server) registerUserRoutes(apiRouter chi.Router, h routeHandlers) {
	routegroups.RegisterUsers(apiRouter, s.guards(), h.users)
}

func (s *Server) registerRealtimeRoutes(apiRouter chi.Router, h routeHandlers) {
	routegroups.RegisterRealtime(apiRouter, s.guards(), h.realtime)
}
