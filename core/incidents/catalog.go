package incidents

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/document"
	"tenantdesk/core/rbac"
	"tenantdesk/core/store"
)

// Tenant and incident type management. Reads follow tenant scope; writes need the manage
// permissions.

func (s *Service) ListTenants(ctx context.Context, actor auth.Actor) ([]store.Tenant, error) {
	if err := s.scope.Require(actor, rbac.PermTenantsRead); err != nil {
		return nil, err
	}
	items, err := s.tenants.List(ctx)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	visible := s.scope.ScopeFilter(actor)
	out := make([]store.Tenant, 0, len(items))
	for _, t := range items {
		if visible(t.ID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) GetTenant(ctx context.Context, actor auth.Actor, id string) (*store.Tenant, error) {
	if err := s.scope.Require(actor, rbac.PermTenantsRead); err != nil {
		return nil, err
	}
	if err := s.scope.Authorize(actor, id); err != nil {
		return nil, err
	}
	return s.tenant(ctx, id)
}

func (s *Service) CreateTenant(ctx context.Context, actor auth.Actor, in TenantInput) (*store.Tenant, error) {
	if err := s.scope.Require(actor, rbac.PermTenantsManage); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if err := checkInput(s.validate, "tenants", in); err != nil {
		return nil, err
	}
	t := &store.Tenant{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		Config:      in.Config,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if t.Config == nil {
		t.Config = document.New()
	}
	if err := s.tenants.Create(ctx, t); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation("tenants.slug_taken", "slug "+in.Slug+" is already used")
		}
		return nil, apperr.Unavailable(err)
	}
	s.logger.Printf("tenant %s (%s) created by %s", t.ID, t.Slug, actor.ID)
	return t, nil
}

func (s *Service) UpdateTenant(ctx context.Context, actor auth.Actor, id string, in TenantInput) (*store.Tenant, error) {
	if err := s.scope.Require(actor, rbac.PermTenantsManage); err != nil {
		return nil, err
	}
	t, err := s.tenant(ctx, id)
	if err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if err := checkInput(s.validate, "tenants", in); err != nil {
		return nil, err
	}
	t.Name, t.Slug, t.Description = in.Name, in.Slug, in.Description
	if in.Config != nil {
		t.Config = in.Config
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	if err := s.tenants.Update(ctx, t); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation("tenants.slug_taken", "slug "+in.Slug+" is already used")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("tenants.not_found", "tenant not found")
		}
		return nil, apperr.Unavailable(err)
	}
	return t, nil
}

// ListIncidentTypes returns the active types of a tenant.
func (s *Service) ListIncidentTypes(ctx context.Context, actor auth.Actor, tenantID string) ([]store.IncidentType, error) {
	if err := s.scope.Require(actor, rbac.PermIncidentTypesRead); err != nil {
		return nil, err
	}
	if err := s.scope.Authorize(actor, tenantID); err != nil {
		return nil, err
	}
	if _, err := s.tenant(ctx, tenantID); err != nil {
		return nil, err
	}
	items, err := s.types.ListByTenant(ctx, tenantID, true)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if items == nil {
		items = []store.IncidentType{}
	}
	return items, nil
}

func (s *Service) CreateIncidentType(ctx context.Context, actor auth.Actor, tenantID string, in IncidentTypeInput) (*store.IncidentType, error) {
	if err := s.scope.Require(actor, rbac.PermIncidentTypesManage); err != nil {
		return nil, err
	}
	if _, err := s.tenant(ctx, tenantID); err != nil {
		return nil, err
	}
	it := &store.IncidentType{TenantID: tenantID, Priority: DefaultPriority, IsActive: true}
	if err := s.applyTypeInput(it, in); err != nil {
		return nil, err
	}
	if err := s.types.Create(ctx, it); err != nil {
		return nil, apperr.Unavailable(err)
	}
	return it, nil
}

func (s *Service) UpdateIncidentType(ctx context.Context, actor auth.Actor, id string, in IncidentTypeInput) (*store.IncidentType, error) {
	if err := s.scope.Require(actor, rbac.PermIncidentTypesManage); err != nil {
		return nil, err
	}
	if !store.ValidID(id) {
		return nil, apperr.NotFound("incident_types.not_found", "incident type not found")
	}
	it, err := s.types.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if it == nil {
		return nil, apperr.NotFound("incident_types.not_found", "incident type not found")
	}
	if err := s.applyTypeInput(it, in); err != nil {
		return nil, err
	}
	if err := s.types.Update(ctx, it); err != nil {
		return nil, apperr.Unavailable(err)
	}
	s.InvalidateType(it.ID)
	return it, nil
}

func (s *Service) applyTypeInput(it *store.IncidentType, in IncidentTypeInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := checkInput(s.validate, "incident_types", in); err != nil {
		return err
	}
	if err := ValidateFieldDefs(in.Fields); err != nil {
		return err
	}
	it.Name = in.Name
	it.Description = in.Description
	if in.Priority != nil {
		it.Priority = *in.Priority
	}
	if in.Fields != nil {
		it.Fields = in.Fields
	}
	if in.IsActive != nil {
		it.IsActive = *in.IsActive
	}
	return nil
}

func (s *Service) tenant(ctx context.Context, id string) (*store.Tenant, error) {
	if !store.ValidID(id) {
		return nil, apperr.NotFound("tenants.not_found", "tenant not found")
	}
	t, err := s.tenants.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	if t == nil {
		return nil, apperr.NotFound("tenants.not_found", "tenant not found")
	}
	return t, nil
}
