package store

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"tenantdesk/core/document"
)

type Tenant struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Slug        string             `json:"slug"`
	Description string             `json:"description"`
	Config      *document.Document `json:"config"`
	IsActive    bool               `json:"isActive"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	TenantID     *string   `json:"tenantId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FieldDef describes one entry of an incident type's custom form.
type FieldDef struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Label    string   `json:"label" yaml:"label"`
	Required bool     `json:"required" yaml:"required"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
}

type IncidentType struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Fields      []FieldDef `json:"fields"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Incident struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenantId"`
	IncidentTypeID string             `json:"incidentTypeId"`
	Title          string             `json:"title"`
	Description    *string            `json:"description"`
	Status         string             `json:"status"`
	Priority       int                `json:"priority"`
	AssignedTo     *string            `json:"assignedTo"`
	ReportedBy     string             `json:"reportedBy"`
	Data           *document.Document `json:"data"`
	Version        int                `json:"version"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	ResolvedAt     *time.Time         `json:"resolvedAt"`
}

// Clone copies the incident deep enough that edits to the copy never reach the original.
func (i Incident) Clone() Incident {
	out := i
	if i.Description != nil {
		v := *i.Description
		out.Description = &v
	}
	if i.AssignedTo != nil {
		v := *i.AssignedTo
		out.AssignedTo = &v
	}
	if i.ResolvedAt != nil {
		v := *i.ResolvedAt
		out.ResolvedAt = &v
	}
	out.Data = i.Data.Clone()
	return out
}

type ActivityLog struct {
	ID          string             `json:"id"`
	IncidentID  string             `json:"incidentId"`
	Seq         int                `json:"-"`
	UserID      string             `json:"userId"`
	Action      string             `json:"action"`
	Description string             `json:"description"`
	Metadata    *document.Document `json:"metadata"`
	CreatedAt   time.Time          `json:"createdAt"`
}

type Comment struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incidentId"`
	UserID     string    `json:"userId"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"isInternal"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type IncidentFilter struct {
	TenantID string
	Status   string
	Limit    int
}

func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

func ValidID(id string) bool {
	_, err := uuid.FromString(id)
	return err == nil
}
