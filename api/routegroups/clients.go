package routegroups

import (
	"github.com/go-chi/chi/v5"

	"tenantdesk/api/handlers"
)

func RegisterClients(apiRouter chi.Router, g Guards, clients *handlers.ClientsHandler) {
	apiRouter.Route("/clients", func(clientsRouter chi.Router) {
		clientsRouter.MethodFunc("GET", "/", g.SessionPerm("tenants.read", clients.List))
		clientsRouter.MethodFunc("POST", "/", g.SessionPerm("tenants.manage", clients.Create))
		clientsRouter.MethodFunc("GET", "/{id}", g.SessionPerm("tenants.read", clients.Get))
		clientsRouter.MethodFunc("PUT", "/{id}", g.SessionPerm("tenants.manage", clients.Update))
		clientsRouter.MethodFunc("GET", "/{id}/incident-types", g.SessionPerm("incident_types.read", clients.ListTypes))
		clientsRouter.MethodFunc("POST", "/{id}/incident-types", g.SessionPerm("incident_types.manage", clients.CreateType))
	})

	apiRouter.Route("/incident-types", func(typesRouter chi.Router) {
		typesRouter.MethodFunc("PUT", "/{id}", g.SessionPerm("incident_types.manage", clients.UpdateType))
	})
}
