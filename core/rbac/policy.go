package rbac

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	RoleOperator = "operator"
	RoleClient   = "client"
)

const (
	PermTenantsCross        Permission = "tenants.cross"
	PermTenantsRead         Permission = "tenants.read"
	PermTenantsManage       Permission = "tenants.manage"
	PermIncidentTypesRead   Permission = "incident_types.read"
	PermIncidentTypesManage Permission = "incident_types.manage"
	PermIncidentsCreate     Permission = "incidents.create"
	PermIncidentsRead       Permission = "incidents.read"
	PermIncidentsUpdate     Permission = "incidents.update"
	PermIncidentsAssign     Permission = "incidents.assign"
	PermCommentsCreate      Permission = "comments.create"
	PermCommentsRead        Permission = "comments.read"
	PermCommentsInternal    Permission = "comments.internal"
	PermActivityRead        Permission = "activity.read"
	PermUsersManage         Permission = "users.manage"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

type Role struct {
	Name        string
	Permissions []Permission
}

// DefaultRoles grants operators everything and clients the tenant-local subset.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleOperator, Permissions: []Permission{"*"}},
		{Name: RoleClient, Permissions: []Permission{
			PermTenantsRead,
			PermIncidentTypesRead,
			PermIncidentsCreate,
			PermIncidentsRead,
			PermIncidentsUpdate,
			PermCommentsCreate,
			PermCommentsRead,
			PermActivityRead,
		}},
	}
}

type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			obj, act := splitPermission(perm)
			if _, err := e.AddPolicy(role.Name, obj, act); err != nil {
				return nil, fmt.Errorf("rbac policy %s %s: %w", role.Name, perm, err)
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

func MustPolicy(roles []Role) *Policy {
	p, err := NewPolicy(roles)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Allowed(role string, perm Permission) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	obj, act := splitPermission(perm)
	ok, err := p.enforcer.Enforce(role, obj, act)
	return err == nil && ok
}

func ValidRole(role string) bool {
	return role == RoleOperator || role == RoleClient
}

func splitPermission(perm Permission) (string, string) {
	raw := strings.TrimSpace(string(perm))
	if raw == "*" || raw == "" {
		return "*", "*"
	}
	idx := strings.LastIndex(raw, ".")
	if idx < 0 {
		return raw, "*"
	}
	return raw[:idx], raw[idx+1:]
}
