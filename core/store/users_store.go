package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type UsersStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	GetMany(ctx context.Context, ids []string) (map[string]User, error)
}

type usersStore struct {
	db *sql.DB
	b  binder
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db, b: newBinder(db)}
}

const userColumns = `id, email, password_hash, name, role, tenant_id, created_at, updated_at`

func (s *usersStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	u.Email = normalizeEmail(u.Email)
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, s.b.q(`
		INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?,?)`),
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, nullableString(u.TenantID), now, now)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *usersStore) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+userColumns+` FROM users WHERE id=?`), id)
	return scanUser(row)
}

func (s *usersStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+userColumns+` FROM users WHERE email=?`), email)
	return scanUser(row)
}

// GetMany loads the given users keyed by id. Unknown ids are skipped.
func (s *usersStore) GetMany(ctx context.Context, ids []string) (map[string]User, error) {
	res := map[string]User{}
	uniq := uniqueStrings(ids)
	if len(uniq) == 0 {
		return res, nil
	}
	args := make([]any, 0, len(uniq))
	for _, id := range uniq {
		args = append(args, id)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(uniq)) + `)`
	rows, err := s.db.QueryContext(ctx, s.b.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res[u.ID] = *u
	}
	return res, rows.Err()
}

func scanUser(row scanner) (*User, error) {
	var u User
	var tenant sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &tenant, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.TenantID = stringPtr(tenant)
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func uniqueStrings(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}
