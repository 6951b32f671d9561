package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api/types"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

// ListHosts handles GET /hosts.
func (h *Handler) ListHosts(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.registry.Snapshot())
}

// GetHost handles GET /hosts/{id}.
func (h *Handler) GetHost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	host, ok := h.registry.Get(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "host not found")
		return
	}
	h.respondJSON(w, http.StatusOK, host)
}

// UpsertHost handles POST /hosts.
func (h *Handler) UpsertHost(w http.ResponseWriter, r *http.Request) {
	var req types.UpsertHostRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	host := hosts.Host{
		ID:      req.ID,
		Name:    req.Name,
		Address: req.Address,
		OS:      hosts.ParseOS(req.OS),
		Tags:    req.Tags,
		Enabled: true,
	}
	if req.Enabled != nil {
		host.Enabled = *req.Enabled
	}
	if prev, ok := h.registry.Get(host.ID); ok {
		host.Groups = prev.Groups
	}

	h.registry.Upsert(r.Context(), host)
	stored, _ := h.registry.Get(host.ID)
	h.respondJSON(w, http.StatusCreated, stored)
}

// DeleteHost handles DELETE /hosts/{id}.
func (h *Handler) DeleteHost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.registry.Remove(r.Context(), id); err != nil {
		h.respondError(w, http.StatusNotFound, "host not found")
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

// SetHostEnabled handles PUT /hosts/{id}/enabled.
func (h *Handler) SetHostEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid input")
		return
	}

	if err := h.registry.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		h.respondError(w, http.StatusNotFound, "host not found")
		return
	}
	host, _ := h.registry.Get(id)
	h.respondJSON(w, http.StatusOK, host)
}

// ImportHosts handles POST /hosts/import. The body is the raw CSV roster.
func (h *Handler) ImportHosts(w http.ResponseWriter, r *http.Request) {
	result, err := h.registry.ImportCSV(r.Context(), r.Body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, types.ImportResponse{
		Added:   result.Added,
		Updated: result.Updated,
		Skipped: result.Skipped,
	})
}

// ExportHosts handles GET /hosts/export.
func (h *Handler) ExportHosts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="hosts.csv"`)
	if err := h.registry.ExportCSV(w); err != nil {
		// Headers are gone at this point, nothing left to report.
		return
	}
}

// UpsertGroup handles POST /groups.
func (h *Handler) UpsertGroup(w http.ResponseWriter, r *http.Request) {
	var req types.UpsertGroupRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	group := h.registry.UpsertGroup(r.Context(), hosts.Group{
		ID:      req.ID,
		Label:   req.Label,
		HostIDs: req.HostIDs,
		Tags:    req.Tags,
	})
	h.respondJSON(w, http.StatusCreated, group)
}

// GetGroup handles GET /groups/{id}.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	group, ok := h.registry.Group(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "group not found")
		return
	}
	h.respondJSON(w, http.StatusOK, group)
}

// DeleteGroup handles DELETE /groups/{id}.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.registry.RemoveGroup(r.Context(), id); err != nil {
		h.respondError(w, http.StatusNotFound, "group not found")
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

// AssignToGroup handles PUT /groups/{id}/hosts/{hostID}.
func (h *Handler) AssignToGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	hostID := chi.URLParam(r, "hostID")

	if err := h.registry.AssignToGroup(r.Context(), groupID, hostID); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	group, _ := h.registry.Group(groupID)
	h.respondJSON(w, http.StatusOK, group)
}

// UnassignFromGroup handles DELETE /groups/{id}/hosts/{hostID}.
func (h *Handler) UnassignFromGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	hostID := chi.URLParam(r, "hostID")

	if err := h.registry.UnassignFromGroup(r.Context(), groupID, hostID); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}
