package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Songmu/retry"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"tenantdesk/config"
	"tenantdesk/core/utils"
)

var (
	ErrConflict  = errors.New("conflict")
	ErrDuplicate = errors.New("duplicate")
)

func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case "postgres":
		db, err = sql.Open("pgx", cfg.DBURL)
	case "sqlite":
		db, err = sql.Open("sqlite", sqliteDSN(cfg.DBURL))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Printf("db opened driver=%s", cfg.DBDriver)
	}
	return db, nil
}

// WaitForDB pings until the database answers or attempts run out.
func WaitForDB(ctx context.Context, db *sql.DB, attempts int, interval time.Duration, logger *utils.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}
	return retry.Retry(uint(attempts), interval, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := db.PingContext(pingCtx)
		if err != nil && logger != nil {
			logger.Warnf("db ping failed: %v", err)
		}
		return err
	})
}

func sqliteDSN(raw string) string {
	dsn := strings.TrimSpace(raw)
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func isPostgres(db *sql.DB) bool {
	if db == nil {
		return false
	}
	_, ok := db.Driver().(*stdlib.Driver)
	return ok
}

// binder rewrites '?' placeholders to '$n' for postgres. Queries in this package never
// carry literal question marks.
type binder struct {
	pg bool
}

func newBinder(db *sql.DB) binder {
	return binder{pg: isPostgres(db)}
}

func (b binder) q(query string) string {
	if !b.pg {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type scanner interface {
	Scan(dest ...any) error
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
