package incidents

import (
	"tenantdesk/core/auth"
	"tenantdesk/core/rbac"
	"tenantdesk/core/store"
	"tenantdesk/core/tenancy"
)

// CommentFilter hides internal comments from actors without comments.internal. Every read
// path goes through it.
type CommentFilter struct {
	scope *tenancy.Scope
}

func NewCommentFilter(scope *tenancy.Scope) *CommentFilter {
	return &CommentFilter{scope: scope}
}

func (f *CommentFilter) SeesInternal(actor auth.Actor) bool {
	return f.scope.Allowed(actor, rbac.PermCommentsInternal)
}

func (f *CommentFilter) VisibleTo(actor auth.Actor, comments []store.Comment) []store.Comment {
	if f.SeesInternal(actor) {
		return comments
	}
	out := make([]store.Comment, 0, len(comments))
	for _, c := range comments {
		if !c.IsInternal {
			out = append(out, c)
		}
	}
	return out
}
