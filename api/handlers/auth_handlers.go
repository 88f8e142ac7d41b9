package handlers

import (
	"errors"
	"net/http"
	"strings"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/utils"
)

type AuthHandler struct {
	sessions *auth.SessionManager
	logger   *utils.Logger
}

func NewAuthHandler(sessions *auth.SessionManager, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, h.logger, apperr.Validation("auth.missing_credentials", "email and password are required"))
		return
	}
	sess, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{
				"error": {Kind: "unauthorized", Code: "auth.invalid_credentials", Message: "invalid credentials"},
			})
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Printf("login %s role=%s", sess.User.Email, sess.User.Role)
	writeJSON(w, http.StatusOK, sess)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": actor})
}
