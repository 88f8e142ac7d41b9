package auth

import (
	"context"

	"tenantdesk/core/rbac"
)

type ctxKey string

const ActorContextKey ctxKey = "actor"

// Actor is the authenticated principal for one request. Role and tenant binding come from
// the user record and never change during a session.
type Actor struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

func (a Actor) IsOperator() bool { return a.Role == rbac.RoleOperator }

func (a Actor) IsClient() bool { return a.Role == rbac.RoleClient }

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ActorContextKey).(Actor)
	return a, ok
}
