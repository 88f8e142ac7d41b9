package incidents

import (
	"strings"
	"time"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/document"
	"tenantdesk/core/rbac"
	"tenantdesk/core/store"
	"tenantdesk/core/tenancy"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusEscalated  = "escalated"
)

const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 1
)

var transitions = map[string][]string{
	StatusOpen:       {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusEscalated},
	StatusEscalated:  {StatusCompleted},
}

func ValidStatus(status string) bool {
	switch status {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusEscalated:
		return true
	}
	return false
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}

// Patch is a partial incident update. Nil fields are left alone.
type Patch struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	Status      *string            `json:"status,omitempty"`
	Priority    *int               `json:"priority,omitempty"`
	AssignedTo  *string            `json:"assignedTo,omitempty"`
	Data        *document.Document `json:"data,omitempty"`
}

// UpdateContext carries who is acting and when. Names resolves user ids for activity
// descriptions; ids without a name are printed as is.
type UpdateContext struct {
	Actor auth.Actor
	Now   time.Time
	Names map[string]string
}

func (uc UpdateContext) name(id string) string {
	if n, ok := uc.Names[id]; ok && strings.TrimSpace(n) != "" {
		return n
	}
	return id
}

type StateMachine struct {
	scope *tenancy.Scope
}

func NewStateMachine(scope *tenancy.Scope) *StateMachine {
	return &StateMachine{scope: scope}
}

// ApplyUpdate validates patch against current and returns the updated copy with one activity
// entry per distinct change. On any error nothing is applied and current is untouched.
func (m *StateMachine) ApplyUpdate(current store.Incident, patch Patch, uc UpdateContext) (store.Incident, []store.ActivityLog, error) {
	next := current.Clone()
	var entries []store.ActivityLog
	var details []string
	now := uc.Now.UTC()

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return current, nil, apperr.Validation("incidents.invalid_title", "title must not be empty")
		}
		if title != current.Title {
			next.Title = title
			details = append(details, "title")
		}
	}
	if patch.Description != nil {
		if current.Description == nil || *current.Description != *patch.Description {
			v := *patch.Description
			next.Description = &v
			details = append(details, "description")
		}
	}
	if patch.Data != nil && !patch.Data.Equal(current.Data) {
		next.Data = patch.Data.Clone()
		details = append(details, "data")
	}

	if patch.Status != nil {
		to := strings.TrimSpace(*patch.Status)
		if !ValidStatus(to) {
			return current, nil, apperr.Validation("incidents.invalid_status", "unknown status "+to)
		}
		if to != current.Status {
			if !CanTransition(current.Status, to) {
				return current, nil, apperr.InvalidTransition(current.Status, to)
			}
			next.Status = to
			if to == StatusCompleted {
				resolved := now
				next.ResolvedAt = &resolved
			}
			entries = append(entries, statusChangedEntry(uc.Actor, current.Status, to, now))
		}
	}

	if patch.AssignedTo != nil {
		to := strings.TrimSpace(*patch.AssignedTo)
		if current.AssignedTo == nil || *current.AssignedTo != to {
			if !m.scope.Allowed(uc.Actor, rbac.PermIncidentsAssign) {
				return current, nil, apperr.AccessDenied("incidents.assign_denied")
			}
			if !store.ValidID(to) {
				return current, nil, apperr.Validation("incidents.invalid_assignee", "assignedTo must be a user id")
			}
			var fromID, fromName string
			if current.AssignedTo != nil {
				fromID = *current.AssignedTo
				fromName = uc.name(fromID)
			}
			next.AssignedTo = &to
			entries = append(entries, assignedEntry(uc.Actor, fromID, fromName, to, uc.name(to), now))
		}
	}

	if patch.Priority != nil {
		p := *patch.Priority
		if !ValidPriority(p) {
			return current, nil, apperr.Validation("incidents.invalid_priority", "priority must be between 1 and 5")
		}
		if p != current.Priority {
			next.Priority = p
			entries = append(entries, priorityChangedEntry(uc.Actor, current.Priority, p, now))
		}
	}

	if len(details) > 0 {
		entries = append(entries, detailsUpdatedEntry(uc.Actor, details, now))
	}
	if len(entries) == 0 {
		return current, nil, nil
	}
	next.UpdatedAt = now
	return next, entries, nil
}
