package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"tenantdesk/core/document"
)

type TenantsStore interface {
	Create(ctx context.Context, t *Tenant) error
	Update(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
}

type tenantsStore struct {
	db *sql.DB
	b  binder
}

func NewTenantsStore(db *sql.DB) TenantsStore {
	return &tenantsStore{db: db, b: newBinder(db)}
}

const tenantColumns = `id, name, slug, description, config, is_active, created_at, updated_at`

func (s *tenantsStore) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Config == nil {
		t.Config = document.New()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, s.b.q(`
		INSERT INTO tenants(`+tenantColumns+`)
		VALUES(?,?,?,?,?,?,?,?)`),
		t.ID, t.Name, strings.TrimSpace(t.Slug), t.Description, t.Config, t.IsActive, now, now)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *tenantsStore) Update(ctx context.Context, t *Tenant) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.b.q(`
		UPDATE tenants SET name=?, slug=?, description=?, config=?, is_active=?, updated_at=? WHERE id=?`),
		t.Name, strings.TrimSpace(t.Slug), t.Description, t.Config, t.IsActive, now, t.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	t.UpdatedAt = now
	return nil
}

func (s *tenantsStore) Get(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+tenantColumns+` FROM tenants WHERE id=?`), id)
	return scanTenant(row)
}

func (s *tenantsStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+tenantColumns+` FROM tenants WHERE slug=?`), strings.TrimSpace(slug))
	return scanTenant(row)
}

func (s *tenantsStore) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func scanTenant(row scanner) (*Tenant, error) {
	var t Tenant
	cfg := document.New()
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, cfg, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Config = cfg
	return &t, nil
}
