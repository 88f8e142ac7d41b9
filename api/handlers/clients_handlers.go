package handlers

import (
	"net/http"

	"tenantdesk/core/incidents"
	"tenantdesk/core/utils"
)

// ClientsHandler serves tenant ("client") records and their incident types.
type ClientsHandler struct {
	svc    *incidents.Service
	logger *utils.Logger
}

func NewClientsHandler(svc *incidents.Service, logger *utils.Logger) *ClientsHandler {
	return &ClientsHandler{svc: svc, logger: logger}
}

func (h *ClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListTenants(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ClientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	tenant, err := h.svc.GetTenant(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	types, err := h.svc.ListIncidentTypes(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": tenant, "incidentTypes": types})
}

func (h *ClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var in incidents.TenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tenant, err := h.svc.CreateTenant(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (h *ClientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var in incidents.TenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tenant, err := h.svc.UpdateTenant(r.Context(), actor, urlParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *ClientsHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListIncidentTypes(r.Context(), actor, urlParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ClientsHandler) CreateType(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var in incidents.IncidentTypeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	it, err := h.svc.CreateIncidentType(r.Context(), actor, urlParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *ClientsHandler) UpdateType(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var in incidents.IncidentTypeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	it, err := h.svc.UpdateIncidentType(r.Context(), actor, urlParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}
