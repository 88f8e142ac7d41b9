package store

import (
	"context"
	"database/sql"
)

// CreateComment inserts the comment together with its activity entry.
func (s *incidentsStore) CreateComment(ctx context.Context, comment *Comment, entry *ActivityLog) error {
	if comment.ID == "" {
		comment.ID = NewID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Row lock on the incident serializes activity appends from concurrent commenters.
	res, err := tx.ExecContext(ctx, s.b.q(`UPDATE incidents SET version=version WHERE id=?`), comment.IncidentID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, s.b.q(`
		INSERT INTO comments(id, incident_id, user_id, content, is_internal, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?)`),
		comment.ID, comment.IncidentID, comment.UserID, comment.Content, comment.IsInternal,
		comment.CreatedAt.UTC(), comment.UpdatedAt.UTC()); err != nil {
		tx.Rollback()
		return err
	}
	if entry != nil {
		entries := []ActivityLog{*entry}
		if err := s.appendActivityTx(ctx, tx, comment.IncidentID, entries); err != nil {
			tx.Rollback()
			return err
		}
		*entry = entries[0]
	}
	return tx.Commit()
}

func (s *incidentsStore) ListComments(ctx context.Context, incidentID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, s.b.q(`
		SELECT id, incident_id, user_id, content, is_internal, created_at, updated_at
		FROM comments WHERE incident_id=?
		ORDER BY created_at DESC, id DESC`), incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.UserID, &c.Content, &c.IsInternal, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		res = append(res, c)
	}
	return res, rows.Err()
}
