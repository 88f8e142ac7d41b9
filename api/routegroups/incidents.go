package routegroups

import (
	"github.com/go-chi/chi/v5"

	"tenantdesk/api/handlers"
)

func RegisterIncidents(apiRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler, comments *handlers.CommentsHandler) {
	apiRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("GET", "/", g.SessionPerm("incidents.read", incidents.List))
		incidentsRouter.MethodFunc("POST", "/", g.SessionPerm("incidents.create", incidents.Create))
		incidentsRouter.MethodFunc("GET", "/{id}", g.SessionPerm("incidents.read", incidents.Get))
		incidentsRouter.MethodFunc("PUT", "/{id}", g.SessionPerm("incidents.update", incidents.Update))
		incidentsRouter.MethodFunc("GET", "/{id}/activity", g.SessionPerm("activity.read", incidents.Activity))
	})

	apiRouter.Route("/comments", func(commentsRouter chi.Router) {
		commentsRouter.MethodFunc("POST", "/", g.SessionPerm("comments.create", comments.Create))
		commentsRouter.MethodFunc("GET", "/incident/{id}", g.SessionPerm("comments.read", comments.ListByIncident))
	})
}

func RegisterRealtime(apiRouter chi.Router, g Guards, rt *handlers.RealtimeHandler) {
	apiRouter.MethodFunc("GET", "/realtime", g.SessionPerm("incidents.read", rt.Serve))
}
