package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/utils"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindAccessDenied:      http.StatusForbidden,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindInvalidTransition: http.StatusUnprocessableEntity,
	apperr.KindUnavailable:       http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to a status and a stable body. Anything that is not an
// apperr.Error, and the cause of unavailable errors, only reaches the log.
func writeError(w http.ResponseWriter, r *http.Request, logger *utils.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Unavailable(err)
	}
	status, known := statusByKind[e.Kind]
	if !known {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]errorBody{
		"error": {Kind: e.Kind, Code: e.Code, Message: e.Message},
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]errorBody{
		"error": {Kind: "unauthorized", Code: "auth.unauthorized", Message: "authentication required"},
	})
}

// decodeJSON reads a bounded JSON body into v. Malformed input is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Validation("request.too_large", "request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation("request.empty_body", "request body is required")
		default:
			return apperr.Validation("request.invalid_json", "request body is not valid JSON")
		}
	}
	return nil
}

// requestActor returns the actor put on the context by the session middleware. Handlers
// behind the guards always have one; direct calls without it get a 401.
func requestActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
	}
	return actor, ok
}
