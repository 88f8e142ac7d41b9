package handlers

import (
	"net/http"

	"tenantdesk/core/incidents"
	"tenantdesk/core/utils"
)

type UsersHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewUsersHandler(svc *incidents.Service, logger *utils.Logger) *UsersHandler {
	return &UsersHandler{svc: svc, logger: logger}
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var in incidents.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.svc.CreateUser(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}
