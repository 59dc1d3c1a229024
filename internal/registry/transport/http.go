package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pnslabs/pns-indexer/internal/registry/domain"
	"github.com/pnslabs/pns-indexer/internal/storage"
)

// Handler handles HTTP requests for the registry read API.
type Handler struct {
	svc *domain.Service
}

// NewHandler creates the registry HTTP handler.
func NewHandler(svc *domain.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers the public read-only routes.
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/domains", h.handleListByOwner)
	r.Get("/domains/{name}", h.handleGetDomain)
	r.Get("/domains/{name}/records", h.handleListRecords)
	r.Get("/status", h.handleStatus)
}

// RegisterAdminRoutes registers the operator job routes (auth required).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/jobs", h.handleListJobs)
	r.Post("/jobs/{id}/retry", h.handleRetryJob)
}

func (h *Handler) handleListByOwner(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "MISSING_OWNER", "The owner query parameter is required")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	views, err := h.svc.ByOwner(r.Context(), owner, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "INVALID_OWNER", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list domains")
		return
	}

	data := make([]DomainResponse, len(views))
	for i, v := range views {
		data[i] = fromDomain(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromDomain(*view))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Records(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	data := make([]RecordResponse, len(views))
	for i, v := range views {
		data[i] = fromRecord(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read indexer status")
		return
	}
	status := http.StatusOK
	if !view.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, fromStatus(view))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	views, err := h.svc.Jobs(r.Context(), storage.JobFilter{
		Status:      q.Get("status"),
		TargetChain: q.Get("target"),
		JobType:     q.Get("type"),
		NameHash:    q.Get("nameHash"),
		Limit:       limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs")
		return
	}

	data := make([]JobResponse, len(views))
	for i, v := range views {
		data[i] = fromJob(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.RetryJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
		case errors.Is(err, domain.ErrJobNotFailed):
			writeError(w, http.StatusConflict, "NOT_RETRYABLE", "Only failed jobs can be retried")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retry job")
		}
		return
	}
	writeJSON(w, http.StatusOK, fromJob(*view))
}

func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Domain not found")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_NAME", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up domain")
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
