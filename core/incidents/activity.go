package incidents

import (
	"fmt"
	"strings"
	"time"

	"tenantdesk/core/auth"
	"tenantdesk/core/document"
	"tenantdesk/core/store"
)

const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionAssigned      = "assigned"
	ActionCommented     = "commented"
	ActionStatusChanged = "status_changed"
)

func entry(actor auth.Actor, action, description string, meta *document.Document, now time.Time) store.ActivityLog {
	if meta == nil {
		meta = document.New()
	}
	return store.ActivityLog{
		UserID:      actor.ID,
		Action:      action,
		Description: description,
		Metadata:    meta,
		CreatedAt:   now.UTC(),
	}
}

func createdEntry(actor auth.Actor, inc store.Incident, now time.Time) store.ActivityLog {
	meta := document.New().
		Set("status", document.String(inc.Status)).
		Set("priority", document.Number(float64(inc.Priority)))
	return entry(actor, ActionCreated, "Incident created: "+inc.Title, meta, now)
}

func statusChangedEntry(actor auth.Actor, from, to string, now time.Time) store.ActivityLog {
	meta := document.New().
		Set("field", document.String("status")).
		Set("from", document.String(from)).
		Set("to", document.String(to))
	return entry(actor, ActionStatusChanged, fmt.Sprintf("Status changed from %s to %s", from, to), meta, now)
}

func assignedEntry(actor auth.Actor, fromID, fromName, toID, toName string, now time.Time) store.ActivityLog {
	from := document.Null()
	if fromID != "" {
		from = document.String(fromID)
	}
	meta := document.New().
		Set("field", document.String("assignedTo")).
		Set("from", from).
		Set("to", document.String(toID))
	desc := "Incident assigned to " + toName
	if fromID != "" {
		desc = fmt.Sprintf("Incident assigned from %s to %s", fromName, toName)
	}
	return entry(actor, ActionAssigned, desc, meta, now)
}

func priorityChangedEntry(actor auth.Actor, from, to int, now time.Time) store.ActivityLog {
	meta := document.New().
		Set("field", document.String("priority")).
		Set("from", document.Number(float64(from))).
		Set("to", document.Number(float64(to)))
	return entry(actor, ActionUpdated, fmt.Sprintf("Priority changed from %d to %d", from, to), meta, now)
}

func detailsUpdatedEntry(actor auth.Actor, fields []string, now time.Time) store.ActivityLog {
	items := make([]document.Value, 0, len(fields))
	for _, f := range fields {
		items = append(items, document.String(f))
	}
	meta := document.New().Set("fields", document.List(items...))
	return entry(actor, ActionUpdated, "Details updated: "+strings.Join(fields, ", "), meta, now)
}

func commentedEntry(actor auth.Actor, c store.Comment, now time.Time) store.ActivityLog {
	desc := "Added a comment"
	if c.IsInternal {
		desc = "Added a internal comment"
	}
	meta := document.New().
		Set("commentId", document.String(c.ID)).
		Set("isInternal", document.Bool(c.IsInternal))
	return entry(actor, ActionCommented, desc, meta, now)
}
