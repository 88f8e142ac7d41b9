// Package tenancy decides which tenants an actor may see or change.
package tenancy

import (
	"strings"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/rbac"
)

const CodeAccessDenied = "tenancy.access_denied"

// Scope evaluates tenant isolation on every call. Decisions are never cached.
type Scope struct {
	policy *rbac.Policy
}

func NewScope(policy *rbac.Policy) *Scope {
	return &Scope{policy: policy}
}

func (s *Scope) Allowed(actor auth.Actor, perm rbac.Permission) bool {
	return s.policy.Allowed(actor.Role, perm)
}

// CanAccess reports whether actor may touch resources owned by tenantID.
func (s *Scope) CanAccess(actor auth.Actor, tenantID string) bool {
	if s.Allowed(actor, rbac.PermTenantsCross) {
		return true
	}
	if !actor.IsClient() {
		return false
	}
	own := strings.TrimSpace(actor.TenantID)
	return own != "" && own == strings.TrimSpace(tenantID)
}

func (s *Scope) Authorize(actor auth.Actor, tenantID string) error {
	if !s.CanAccess(actor, tenantID) {
		return apperr.AccessDenied(CodeAccessDenied)
	}
	return nil
}

// Require checks a role permission without any tenant context.
func (s *Scope) Require(actor auth.Actor, perm rbac.Permission) error {
	if !s.Allowed(actor, perm) {
		return apperr.AccessDenied("rbac." + string(perm))
	}
	return nil
}

func (s *Scope) ScopeFilter(actor auth.Actor) func(tenantID string) bool {
	return func(tenantID string) bool {
		return s.CanAccess(actor, tenantID)
	}
}

// ListTenant returns the tenant a listing must be restricted to. Clients always get their
// own tenant whatever they asked for; cross-tenant actors get the request unchanged, where
// "" means all tenants.
func (s *Scope) ListTenant(actor auth.Actor, requested string) string {
	requested = strings.TrimSpace(requested)
	if s.Allowed(actor, rbac.PermTenantsCross) {
		return requested
	}
	return strings.TrimSpace(actor.TenantID)
}
