package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api/types"
)

// ListHistory handles GET /history.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusNotImplemented, "history persistence is disabled")
		return
	}

	records, err := h.history.Recent(r.Context(), getLimitParam(r))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	h.respondJSON(w, http.StatusOK, types.NewListResponse(records, len(records)))
}

// ListHostHistory handles GET /hosts/{id}/history.
func (h *Handler) ListHostHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusNotImplemented, "history persistence is disabled")
		return
	}

	hostID := chi.URLParam(r, "id")
	records, err := h.history.ByHost(r.Context(), hostID, getLimitParam(r))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	h.respondJSON(w, http.StatusOK, types.NewListResponse(records, len(records)))
}
