package api

import "tenantdesk/api/handlers"

type routeHandlers struct {
	auth      *handlers.AuthHandler
	incidents *handlers.IncidentsHandler
	comments  *handlers.CommentsHandler
	clients   *handlers.ClientsHandler
	users     *handlers.UsersHandler
	realtime  *handlers.RealtimeHandler
	health    *handlers.HealthHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.sessions, s.logger),
		incidents: handlers.NewIncidentsHandler(s.incidents, s.logger),
		comments:  handlers.NewCommentsHandler(s.incidents, s.logger),
		clients:   handlers.NewClientsHandler(s.incidents, s.logger),
		users:     handlers.NewUsersHandler(s.incidents, s.logger),
		realtime:  handlers.NewRealtimeHandler(s.cfg, s.incidents, s.realtime, s.logger),
		health:    handlers.NewHealthHandler(s.db, s.logger),
	}
}
