package routegroups

import (
	"github.com/go-chi/chi/v5"

	"tenantdesk/api/handlers"
)

func RegisterUsers(apiRouter chi.Router, g Guards, users *handlers.UsersHandler) {
	apiRouter.Route("/users", func(usersRouter chi.Router) {
		usersRouter.MethodFunc("POST", "/", g.SessionPerm("users.manage", users.Create))
	})
}
