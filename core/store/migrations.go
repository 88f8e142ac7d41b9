package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"tenantdesk/core/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	dialect := "sqlite3"
	if isPostgres(db) {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrations (%s): %w", dialect, err)
	}
	if logger != nil {
		logger.Printf("migrations applied dialect=%s", dialect)
	}
	return nil
}

func MigrationVersion(ctx context.Context, db *sql.DB) (int64, error) {
	return goose.GetDBVersionContext(ctx, db)
}

type gooseLogger struct {
	logger *utils.Logger
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	if g.logger != nil {
		g.logger.Errorf(format, v...)
	}
	panic(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	if g.logger != nil {
		g.logger.Printf(format, v...)
	}
}
