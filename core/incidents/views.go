package incidents

import "tenantdesk/core/store"

type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// IncidentView is an incident with its single-level expansions.
type IncidentView struct {
	store.Incident
	Tenant       *store.Tenant       `json:"tenant"`
	IncidentType *store.IncidentType `json:"incidentType"`
	Assignee     *UserSummary        `json:"assignee"`
	Reporter     *UserSummary        `json:"reporter"`
}

type IncidentDetail struct {
	IncidentView
	Activity []ActivityView `json:"activityLogs"`
	Comments []CommentView  `json:"comments"`
}

type ActivityView struct {
	store.ActivityLog
	User *UserSummary `json:"user"`
}

type CommentView struct {
	store.Comment
	User *UserSummary `json:"user"`
}

func summarize(u store.User) *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

func lookupSummary(users map[string]store.User, id *string) *UserSummary {
	if id == nil {
		return nil
	}
	u, ok := users[*id]
	if !ok {
		return nil
	}
	return summarize(u)
}
