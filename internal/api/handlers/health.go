package handlers

import (
	"net/http"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api/types"
)

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}
