package appbootstrap

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tenantdesk/config"
	"tenantdesk/core/auth"
	"tenantdesk/core/document"
	"tenantdesk/core/incidents"
	"tenantdesk/core/rbac"
	"tenantdesk/core/store"
	"tenantdesk/core/utils"
)

//go:embed fixtures/seed.yaml
var defaultFixture []byte

type seedFixture struct {
	Password  string         `yaml:"password"`
	Tenants   []seedTenant   `yaml:"tenants"`
	Users     []seedUser     `yaml:"users"`
	Incidents []seedIncident `yaml:"incidents"`
}

type seedTenant struct {
	Slug          string         `yaml:"slug"`
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Config        map[string]any `yaml:"config"`
	IncidentTypes []seedType     `yaml:"incident_types"`
}

type seedType struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Priority    int              `yaml:"priority"`
	Fields      []store.FieldDef `yaml:"fields"`
}

type seedUser struct {
	Email  string `yaml:"email"`
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	Tenant string `yaml:"tenant"`
}

type seedIncident struct {
	Tenant      string         `yaml:"tenant"`
	Type        string         `yaml:"type"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Status      string         `yaml:"status"`
	Priority    int            `yaml:"priority"`
	ReportedBy  string         `yaml:"reported_by"`
	AssignedTo  string         `yaml:"assigned_to"`
	Data        map[string]any `yaml:"data"`
	Activity    []seedActivity `yaml:"activity"`
	Comments    []seedComment  `yaml:"comments"`
}

type seedActivity struct {
	User        string `yaml:"user"`
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
}

type seedComment struct {
	User     string `yaml:"user"`
	Content  string `yaml:"content"`
	Internal bool   `yaml:"internal"`
}

type SeedReport struct {
	Tenants   int
	Users     int
	Types     int
	Incidents int
	Comments  int
}

// Seed loads the fixture at cfg.SeedPath, or the embedded demo data, into an empty or
// partially seeded database. Records that already exist are left alone.
func Seed(ctx context.Context, db *sql.DB, cfg *config.AppConfig, logger *utils.Logger) (*SeedReport, error) {
	raw := defaultFixture
	if path := strings.TrimSpace(cfg.SeedPath); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed fixture: %w", err)
		}
		raw = b
	}
	var fx seedFixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parse seed fixture: %w", err)
	}
	s := &seeder{
		tenants:     store.NewTenantsStore(db),
		users:       store.NewUsersStore(db),
		types:       store.NewIncidentTypesStore(db),
		incidents:   store.NewIncidentsStore(db),
		cost:        cfg.Auth.BcryptCost,
		logger:      logger,
		tenantIDs:   map[string]string{},
		userIDs:     map[string]string{},
		typeIDs:     map[string]string{},
		typeFields:  map[string][]store.FieldDef{},
		freshTenant: map[string]bool{},
	}
	return s.run(ctx, fx)
}

type seeder struct {
	tenants   store.TenantsStore
	users     store.UsersStore
	types     store.IncidentTypesStore
	incidents store.IncidentsStore
	cost      int
	logger    *utils.Logger
	report    SeedReport

	tenantIDs   map[string]string
	userIDs     map[string]string
	typeIDs     map[string]string
	typeFields  map[string][]store.FieldDef
	freshTenant map[string]bool
}

func (s *seeder) run(ctx context.Context, fx seedFixture) (*SeedReport, error) {
	if len(fx.Password) < auth.MinPasswordLength {
		return nil, fmt.Errorf("seed password must be at least %d characters", auth.MinPasswordLength)
	}
	for _, t := range fx.Tenants {
		if err := s.tenant(ctx, t); err != nil {
			return nil, fmt.Errorf("seed tenant %s: %w", t.Slug, err)
		}
	}
	hash, err := auth.HashPassword(fx.Password, s.cost)
	if err != nil {
		return nil, err
	}
	for _, u := range fx.Users {
		if err := s.user(ctx, u, hash); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	for _, inc := range fx.Incidents {
		if !s.freshTenant[inc.Tenant] {
			continue
		}
		if err := s.incident(ctx, inc); err != nil {
			return nil, fmt.Errorf("seed incident %q: %w", inc.Title, err)
		}
	}
	s.logger.Printf("seed: tenants=%d users=%d types=%d incidents=%d comments=%d",
		s.report.Tenants, s.report.Users, s.report.Types, s.report.Incidents, s.report.Comments)
	return &s.report, nil
}

func (s *seeder) tenant(ctx context.Context, t seedTenant) error {
	existing, err := s.tenants.GetBySlug(ctx, t.Slug)
	if err != nil {
		return err
	}
	if existing != nil {
		s.tenantIDs[t.Slug] = existing.ID
		types, err := s.types.ListByTenant(ctx, existing.ID, false)
		if err != nil {
			return err
		}
		for _, it := range types {
			s.typeIDs[typeKey(t.Slug, it.Name)] = it.ID
			s.typeFields[it.ID] = it.Fields
		}
		return nil
	}
	cfgDoc, err := document.FromMap(t.Config)
	if err != nil {
		return err
	}
	tenant := &store.Tenant{Name: t.Name, Slug: t.Slug, Description: t.Description, Config: cfgDoc, IsActive: true}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return err
	}
	s.report.Tenants++
	s.tenantIDs[t.Slug] = tenant.ID
	s.freshTenant[t.Slug] = true
	for _, st := range t.IncidentTypes {
		if err := incidents.ValidateFieldDefs(st.Fields); err != nil {
			return fmt.Errorf("type %s: %w", st.Name, err)
		}
		priority := st.Priority
		if !incidents.ValidPriority(priority) {
			priority = incidents.DefaultPriority
		}
		it := &store.IncidentType{TenantID: tenant.ID, Name: st.Name, Description: st.Description, Priority: priority, Fields: st.Fields, IsActive: true}
		if err := s.types.Create(ctx, it); err != nil {
			return err
		}
		s.report.Types++
		s.typeIDs[typeKey(t.Slug, it.Name)] = it.ID
		s.typeFields[it.ID] = it.Fields
	}
	return nil
}

func (s *seeder) user(ctx context.Context, u seedUser, hash string) error {
	existing, err := s.users.FindByEmail(ctx, u.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		s.userIDs[strings.ToLower(u.Email)] = existing.ID
		return nil
	}
	if !rbac.ValidRole(u.Role) {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	user := &store.User{Email: u.Email, PasswordHash: hash, Name: u.Name, Role: u.Role}
	if u.Tenant != "" {
		id, ok := s.tenantIDs[u.Tenant]
		if !ok {
			return fmt.Errorf("unknown tenant %q", u.Tenant)
		}
		user.TenantID = &id
	}
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}
	s.report.Users++
	s.userIDs[strings.ToLower(u.Email)] = user.ID
	return nil
}

func (s *seeder) incident(ctx context.Context, in seedIncident) error {
	typeID, ok := s.typeIDs[typeKey(in.Tenant, in.Type)]
	if !ok {
		return fmt.Errorf("unknown incident type %q", in.Type)
	}
	reporter, err := s.userID(in.ReportedBy)
	if err != nil {
		return err
	}
	if !incidents.ValidStatus(in.Status) {
		return fmt.Errorf("unknown status %q", in.Status)
	}
	data, err := document.FromMap(in.Data)
	if err != nil {
		return err
	}
	if err := incidents.ValidateData(s.typeFields[typeID], data); err != nil {
		return err
	}
	now := utils.NowUTC()
	inc := &store.Incident{
		TenantID:       s.tenantIDs[in.Tenant],
		IncidentTypeID: typeID,
		Title:          in.Title,
		Status:         in.Status,
		Priority:       in.Priority,
		ReportedBy:     reporter,
		Data:           data,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !incidents.ValidPriority(inc.Priority) {
		inc.Priority = incidents.DefaultPriority
	}
	if in.Description != "" {
		desc := in.Description
		inc.Description = &desc
	}
	if in.AssignedTo != "" {
		id, err := s.userID(in.AssignedTo)
		if err != nil {
			return err
		}
		inc.AssignedTo = &id
	}
	if inc.Status == incidents.StatusCompleted {
		inc.ResolvedAt = &now
	}
	entries := make([]store.ActivityLog, 0, len(in.Activity))
	for _, a := range in.Activity {
		id, err := s.userID(a.User)
		if err != nil {
			return err
		}
		entries = append(entries, store.ActivityLog{UserID: id, Action: a.Action, Description: a.Description, CreatedAt: now})
	}
	if err := s.incidents.CreateIncident(ctx, inc, entries); err != nil {
		return err
	}
	s.report.Incidents++
	for _, c := range in.Comments {
		id, err := s.userID(c.User)
		if err != nil {
			return err
		}
		comment := &store.Comment{IncidentID: inc.ID, UserID: id, Content: c.Content, IsInternal: c.Internal, CreatedAt: now, UpdatedAt: now}
		if err := s.incidents.CreateComment(ctx, comment, nil); err != nil {
			return err
		}
		s.report.Comments++
	}
	return nil
}

func (s *seeder) userID(email string) (string, error) {
	id, ok := s.userIDs[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", fmt.Errorf("unknown user %q", email)
	}
	return id, nil
}

func typeKey(tenantSlug, name string) string {
	return tenantSlug + "/" + name
}
