package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api/types"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
)

// CreateDeployment handles POST /deployments.
func (h *Handler) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req types.DeployRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	jobs, err := h.manager.Deploy(r.Context(), deploy.DeployRequest{
		HostIDs:    req.HostIDs,
		GroupID:    req.GroupID,
		Action:     queue.Action(req.Action),
		ProfileID:  req.ProfileID,
		SketchPath: req.SketchPath,
		HexPath:    req.HexPath,
		DryRun:     req.DryRun,
	})
	if err != nil {
		switch {
		case errors.Is(err, deploy.ErrNoProfile),
			errors.Is(err, deploy.ErrNoBinary):
			h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, deploy.ErrNoHosts):
			h.respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.respondError(w, http.StatusInternalServerError, "failed to start deployment")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, types.DeployResponse{Jobs: jobs, Count: len(jobs)})
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.manager.Snapshot())
}

// GetJob handles GET /jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, ok := h.manager.Queue().Get(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.manager.CancelJob(r.Context(), id)
	switch {
	case err == nil:
		job, _ := h.manager.Queue().Get(id)
		h.respondJSON(w, http.StatusOK, job)
	case errors.Is(err, queue.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, queue.ErrJobRunning), errors.Is(err, queue.ErrJobTerminal):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, "failed to cancel job")
	}
}

// CancelAllJobs handles POST /jobs/cancel.
func (h *Handler) CancelAllJobs(w http.ResponseWriter, r *http.Request) {
	n := h.manager.CancelAll(r.Context())
	h.respondJSON(w, http.StatusOK, types.CancelAllResponse{Cancelled: n})
}

// RetryFailedJobs handles POST /jobs/retry-failed.
func (h *Handler) RetryFailedJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.manager.RetryFailedJobs(r.Context())
	h.respondJSON(w, http.StatusOK, types.DeployResponse{Jobs: jobs, Count: len(jobs)})
}

// GetTelemetry handles GET /telemetry.
func (h *Handler) GetTelemetry(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.manager.Telemetry())
}

// RecordBuild handles POST /builds.
func (h *Handler) RecordBuild(w http.ResponseWriter, r *http.Request) {
	var req types.RecordBuildRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	meta := deploy.SketchMetadata{
		SketchPath: req.SketchPath,
		FQBN:       req.FQBN,
		HexPath:    req.HexPath,
		Checksum:   req.Checksum,
		SizeBytes:  req.SizeBytes,
	}
	if err := h.manager.RecordBuild(r.Context(), meta); err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to record build")
		return
	}
	h.respondJSON(w, http.StatusCreated, meta)
}
