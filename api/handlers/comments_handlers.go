package handlers

import (
	"net/http"

	"tenantdesk/core/incidents"
	"tenantdesk/core/utils"
)

type CommentsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewCommentsHandler(svc *incidents.Service, logger *utils.Logger) *CommentsHandler {
	return &CommentsHandler{svc: svc, logger: logger}
}

func (h *CommentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var in incidents.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.svc.AddComment(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *CommentsHandler) ListByIncident(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListComments(r.Context(), actor, urlParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
