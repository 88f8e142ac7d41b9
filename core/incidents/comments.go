package incidents

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/rbac"
	"tenantdesk/core/realtime"
	"tenantdesk/core/store"
)

// AddComment stores a comment and its activity entry. Actors without comments.internal
// always write public comments whatever they asked for.
func (s *Service) AddComment(ctx context.Context, actor auth.Actor, in CommentInput) (*CommentView, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := checkInput(s.validate, "comments", in); err != nil {
		return nil, err
	}
	if err := s.scope.Require(actor, rbac.PermCommentsCreate); err != nil {
		return nil, err
	}
	inc, err := s.load(ctx, actor, in.IncidentID, rbac.PermCommentsRead)
	if err != nil {
		return nil, err
	}
	internal := in.IsInternal && s.comments.SeesInternal(actor)
	now := s.now()
	comment := store.Comment{
		ID:         store.NewID(),
		IncidentID: inc.ID,
		UserID:     actor.ID,
		Content:    in.Content,
		IsInternal: internal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry := commentedEntry(actor, comment, now)
	if err := s.incidents.CreateComment(ctx, &comment, &entry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("incidents.not_found", "incident not found")
		}
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("comments.conflict", "incident was changed concurrently, retry")
		}
		return nil, apperr.Unavailable(err)
	}

	payload := map[string]string{"id": inc.ID, "commentId": comment.ID}
	room := realtime.IncidentRoom(inc.ID)
	if internal {
		s.publishWhere(room, EventCommented, payload, func(sub realtime.Subscriber) bool {
			return s.comments.SeesInternal(sub.Actor())
		})
	} else {
		s.publish(room, EventCommented, payload)
	}
	return &CommentView{Comment: comment, User: &UserSummary{ID: actor.ID, Name: actor.Name, Email: actor.Email}}, nil
}

func (s *Service) ListComments(ctx context.Context, actor auth.Actor, incidentID string) ([]CommentView, error) {
	inc, err := s.load(ctx, actor, incidentID, rbac.PermCommentsRead)
	if err != nil {
		return nil, err
	}
	return s.commentViews(ctx, actor, inc.ID)
}

func (s *Service) commentViews(ctx context.Context, actor auth.Actor, incidentID string) ([]CommentView, error) {
	all, err := s.incidents.ListComments(ctx, incidentID)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	visible := s.comments.VisibleTo(actor, all)
	ids := make([]string, 0, len(visible))
	for _, c := range visible {
		ids = append(ids, c.UserID)
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	out := make([]CommentView, 0, len(visible))
	for _, c := range visible {
		uid := c.UserID
		out = append(out, CommentView{Comment: c, User: lookupSummary(users, &uid)})
	}
	return out, nil
}
