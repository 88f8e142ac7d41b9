package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tenantdesk/core/document"
)

type IncidentsStore interface {
	CreateIncident(ctx context.Context, incident *Incident, entries []ActivityLog) error
	UpdateIncident(ctx context.Context, incident *Incident, expectedVersion int, entries []ActivityLog) error
	GetIncident(ctx context.Context, id string) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)

	ListActivity(ctx context.Context, incidentID string) ([]ActivityLog, error)

	CreateComment(ctx context.Context, comment *Comment, entry *ActivityLog) error
	ListComments(ctx context.Context, incidentID string) ([]Comment, error)
}

type incidentsStore struct {
	db *sql.DB
	b  binder
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db, b: newBinder(db)}
}

const incidentColumns = `id, tenant_id, incident_type_id, title, description, status, priority, assigned_to, reported_by, data, version, created_at, updated_at, resolved_at`

// CreateIncident inserts the incident and its activity entries in one transaction.
func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident, entries []ActivityLog) error {
	if incident.ID == "" {
		incident.ID = NewID()
	}
	if incident.Version <= 0 {
		incident.Version = 1
	}
	if incident.Data == nil {
		incident.Data = document.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.b.q(`
		INSERT INTO incidents(`+incidentColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		incident.ID, incident.TenantID, incident.IncidentTypeID, incident.Title, nullableString(incident.Description),
		incident.Status, incident.Priority, nullableString(incident.AssignedTo), incident.ReportedBy, incident.Data,
		incident.Version, incident.CreatedAt.UTC(), incident.UpdatedAt.UTC(), nullableTime(incident.ResolvedAt)); err != nil {
		tx.Rollback()
		return err
	}
	if err := s.appendActivityTx(ctx, tx, incident.ID, entries); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpdateIncident writes the incident when its stored version still equals expectedVersion.
// A lost race returns ErrConflict and nothing is written.
func (s *incidentsStore) UpdateIncident(ctx context.Context, incident *Incident, expectedVersion int, entries []ActivityLog) error {
	if incident.Data == nil {
		incident.Data = document.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.b.q(`
		UPDATE incidents SET title=?, description=?, status=?, priority=?, assigned_to=?, data=?, updated_at=?, resolved_at=?, version=version+1
		WHERE id=? AND version=?`),
		incident.Title, nullableString(incident.Description), incident.Status, incident.Priority,
		nullableString(incident.AssignedTo), incident.Data, incident.UpdatedAt.UTC(), nullableTime(incident.ResolvedAt),
		incident.ID, expectedVersion)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return ErrConflict
	}
	if err := s.appendActivityTx(ctx, tx, incident.ID, entries); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	incident.Version = expectedVersion + 1
	return nil
}

func (s *incidentsStore) GetIncident(ctx context.Context, id string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+incidentColumns+` FROM incidents WHERE id=?`), id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if tenant := strings.TrimSpace(filter.TenantID); tenant != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, tenant)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.b.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

func scanIncident(row scanner) (Incident, error) {
	var inc Incident
	var description, assigned sql.NullString
	var resolved sql.NullTime
	data := document.New()
	if err := row.Scan(&inc.ID, &inc.TenantID, &inc.IncidentTypeID, &inc.Title, &description, &inc.Status, &inc.Priority,
		&assigned, &inc.ReportedBy, data, &inc.Version, &inc.CreatedAt, &inc.UpdatedAt, &resolved); err != nil {
		return inc, err
	}
	inc.Description = stringPtr(description)
	inc.AssignedTo = stringPtr(assigned)
	inc.ResolvedAt = timePtr(resolved)
	inc.CreatedAt = inc.CreatedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	inc.Data = data
	return inc, nil
}
