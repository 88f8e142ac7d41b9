// Package appbootstrap wires configuration, storage and the HTTP server into a runnable app.
package appbootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"tenantdesk/api"
	"tenantdesk/config"
	"tenantdesk/core/store"
	"tenantdesk/core/utils"
)

type App struct {
	cfg     *config.AppConfig
	db      *sql.DB
	logger  *utils.Logger
	runtime *runtimeComposition
	server  *api.Server
}

// OpenDatabase connects, waits for the database to answer and applies migrations.
func OpenDatabase(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForDB(ctx, db, cfg.Startup.DBPingAttempts, cfg.Startup.DBPingInterval, logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func New(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	if err := ensureTokenSecret(cfg, logger); err != nil {
		return nil, err
	}
	db, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &App{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		runtime: rt,
		server:  api.NewServer(cfg, rt.serverDeps, logger),
	}, nil
}

func (a *App) Server() *api.Server { return a.server }

func (a *App) DB() *sql.DB { return a.db }

// Run blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Printf("tenantdesk starting env=%s driver=%s", a.cfg.AppEnv, a.cfg.DBDriver)
	return a.server.Run(ctx)
}

func (a *App) Close() error {
	return a.db.Close()
}

// ensureTokenSecret fills in a random secret outside production so a dev instance starts
// without configuration. Tokens then stop working on restart.
func ensureTokenSecret(cfg *config.AppConfig, logger *utils.Logger) error {
	if strings.TrimSpace(cfg.Auth.TokenSecret) != "" {
		return nil
	}
	if cfg.IsProduction() {
		return fmt.Errorf("token secret is required in production")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate token secret: %w", err)
	}
	cfg.Auth.TokenSecret = hex.EncodeToString(buf)
	logger.Warnf("TENANTDESK_TOKEN_SECRET not set; using a random secret for this process")
	return nil
}
