package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type IncidentTypesStore interface {
	Create(ctx context.Context, it *IncidentType) error
	Update(ctx context.Context, it *IncidentType) error
	Get(ctx context.Context, id string) (*IncidentType, error)
	ListByTenant(ctx context.Context, tenantID string, activeOnly bool) ([]IncidentType, error)
}

type incidentTypesStore struct {
	db *sql.DB
	b  binder
}

func NewIncidentTypesStore(db *sql.DB) IncidentTypesStore {
	return &incidentTypesStore{db: db, b: newBinder(db)}
}

const incidentTypeColumns = `id, tenant_id, name, description, priority, fields, is_active, created_at, updated_at`

func (s *incidentTypesStore) Create(ctx context.Context, it *IncidentType) error {
	if it.ID == "" {
		it.ID = NewID()
	}
	fields, err := fieldsToJSON(it.Fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now
	_, err = s.db.ExecContext(ctx, s.b.q(`
		INSERT INTO incident_types(`+incidentTypeColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`),
		it.ID, it.TenantID, it.Name, it.Description, it.Priority, fields, it.IsActive, now, now)
	return err
}

func (s *incidentTypesStore) Update(ctx context.Context, it *IncidentType) error {
	fields, err := fieldsToJSON(it.Fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.b.q(`
		UPDATE incident_types SET name=?, description=?, priority=?, fields=?, is_active=?, updated_at=? WHERE id=?`),
		it.Name, it.Description, it.Priority, fields, it.IsActive, now, it.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	it.UpdatedAt = now
	return nil
}

func (s *incidentTypesStore) Get(ctx context.Context, id string) (*IncidentType, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+incidentTypeColumns+` FROM incident_types WHERE id=?`), id)
	return scanIncidentType(row)
}

func (s *incidentTypesStore) ListByTenant(ctx context.Context, tenantID string, activeOnly bool) ([]IncidentType, error) {
	query := `SELECT ` + incidentTypeColumns + ` FROM incident_types WHERE tenant_id=?`
	args := []any{tenantID}
	if activeOnly {
		query += ` AND is_active=?`
		args = append(args, true)
	}
	query += ` ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, s.b.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentType
	for rows.Next() {
		it, err := scanIncidentType(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *it)
	}
	return res, rows.Err()
}

func scanIncidentType(row scanner) (*IncidentType, error) {
	var it IncidentType
	var fieldsRaw string
	if err := row.Scan(&it.ID, &it.TenantID, &it.Name, &it.Description, &it.Priority, &fieldsRaw, &it.IsActive, &it.CreatedAt, &it.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsRaw), &it.Fields); err != nil {
		return nil, err
	}
	if it.Fields == nil {
		it.Fields = []FieldDef{}
	}
	return &it, nil
}

func fieldsToJSON(fields []FieldDef) (string, error) {
	if fields == nil {
		fields = []FieldDef{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
