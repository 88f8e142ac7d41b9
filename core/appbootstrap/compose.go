package appbootstrap

import (
	"database/sql"

	"tenantdesk/api"
	"tenantdesk/config"
	"tenantdesk/core/auth"
	"tenantdesk/core/incidents"
	"tenantdesk/core/rbac"
	"tenantdesk/core/realtime"
	"tenantdesk/core/store"
	"tenantdesk/core/tenancy"
	"tenantdesk/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	service    *incidents.Service
	router     *realtime.Router
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	tenants := store.NewTenantsStore(db)
	types := store.NewIncidentTypesStore(db)
	incidentsStore := store.NewIncidentsStore(db)

	policy, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		return nil, err
	}
	scope := tenancy.NewScope(policy)
	router := realtime.NewRouter(logger)
	sweeper := realtime.NewSweeper(router, cfg.Realtime.SweepSpec, logger)

	incidentsSvc := incidents.NewService(cfg, incidents.ServiceDeps{
		Incidents: incidentsStore,
		Types:     types,
		Tenants:   tenants,
		Users:     users,
		Scope:     scope,
		Publisher: router,
		Logger:    logger,
	})
	sessionManager, err := auth.NewSessionManager(users, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			DB:        db,
			Sessions:  sessionManager,
			Incidents: incidentsSvc,
			Realtime:  router,
			Workers:   []api.BackgroundWorker{sweeper},
		},
		service: incidentsSvc,
		router:  router,
		workers: []api.BackgroundWorker{sweeper},
	}, nil
}
