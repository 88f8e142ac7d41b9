package store

import (
	"context"
	"database/sql"

	"tenantdesk/core/document"
)

// The activity trail is append-only: this file holds the only statements that touch
// activity_logs, and none of them update or delete.

func (s *incidentsStore) ListActivity(ctx context.Context, incidentID string) ([]ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx, s.b.q(`
		SELECT id, incident_id, seq, user_id, action, description, metadata, created_at
		FROM activity_logs WHERE incident_id=?
		ORDER BY seq DESC`), incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ActivityLog
	for rows.Next() {
		var e ActivityLog
		meta := document.New()
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Seq, &e.UserID, &e.Action, &e.Description, meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = meta
		e.CreatedAt = e.CreatedAt.UTC()
		res = append(res, e)
	}
	return res, rows.Err()
}

// appendActivityTx assigns increasing sequence numbers so entries written in one
// transaction keep their order even when they share a timestamp. Callers must already hold
// the incident row for writing.
func (s *incidentsStore) appendActivityTx(ctx context.Context, tx *sql.Tx, incidentID string, entries []ActivityLog) error {
	if len(entries) == 0 {
		return nil
	}
	var last int
	if err := tx.QueryRowContext(ctx, s.b.q(`SELECT COALESCE(MAX(seq), 0) FROM activity_logs WHERE incident_id=?`), incidentID).Scan(&last); err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = NewID()
		}
		if e.Metadata == nil {
			e.Metadata = document.New()
		}
		last++
		e.Seq = last
		e.IncidentID = incidentID
		if _, err := tx.ExecContext(ctx, s.b.q(`
			INSERT INTO activity_logs(id, incident_id, seq, user_id, action, description, metadata, created_at)
			VALUES(?,?,?,?,?,?,?,?)`),
			e.ID, e.IncidentID, e.Seq, e.UserID, e.Action, e.Description, e.Metadata, e.CreatedAt.UTC()); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
	}
	return nil
}
