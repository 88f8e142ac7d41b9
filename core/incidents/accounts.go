package incidents

import (
	"context"
	"errors"
	"strings"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/rbac"
	"tenantdesk/core/store"
)

// CreateUser provisions an account. Only holders of users.manage may call it; clients must be
// bound to an existing tenant and operators to none.
func (s *Service) CreateUser(ctx context.Context, actor auth.Actor, in UserInput) (*store.User, error) {
	if err := s.scope.Require(actor, rbac.PermUsersManage); err != nil {
		return nil, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if in.TenantID != nil {
		id := strings.TrimSpace(*in.TenantID)
		in.TenantID = &id
		if id == "" {
			in.TenantID = nil
		}
	}
	if err := checkInput(s.validate, "users", in); err != nil {
		return nil, err
	}

	u := &store.User{Email: in.Email, Name: in.Name, Role: in.Role}
	switch in.Role {
	case rbac.RoleClient:
		if in.TenantID == nil {
			return nil, apperr.Validation("users.tenant_required", "client users must belong to a tenant")
		}
		t, err := s.tenants.Get(ctx, *in.TenantID)
		if err != nil {
			return nil, apperr.Unavailable(err)
		}
		if t == nil {
			return nil, apperr.Validation("users.unknown_tenant", "tenant does not exist")
		}
		u.TenantID = &t.ID
	case rbac.RoleOperator:
		if in.TenantID != nil {
			return nil, apperr.Validation("users.operator_tenant", "operators are not bound to a tenant")
		}
	}

	hash, err := auth.HashPassword(in.Password, s.hashCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, apperr.Validation("users.invalid_password", "password is too short")
		}
		return nil, apperr.Unavailable(err)
	}
	u.PasswordHash = hash
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation("users.email_taken", "email "+in.Email+" is already registered")
		}
		return nil, apperr.Unavailable(err)
	}
	s.logger.Printf("user %s (%s) created by %s", u.ID, u.Role, actor.ID)
	return u, nil
}
