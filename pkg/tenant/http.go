package tenant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/labworks/platform/pkg/common/httpapi"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/gateway/middleware"
	"github.com/labworks/platform/pkg/observability/metrics"
	"github.com/labworks/platform/pkg/policy"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the laboratory registry on the superadmin subrouter.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/labs", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/labs", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/labs/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/labs/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	var req models.CreateLaboratoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.Name == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	lab, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"laboratory": lab})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	labs, err := h.service.List(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": labs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid laboratory id")
		return
	}
	lab, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"laboratory": lab})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid laboratory id")
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, policy.ErrInsufficientRole):
		metrics.IncAuthDenied()
		httpapi.WriteError(w, http.StatusForbidden, "insufficient_role", "operation not permitted for this role")
	case errors.Is(err, ErrLaboratoryNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "laboratory_not_found", "laboratory not found")
	case errors.Is(err, ErrLaboratoryExists):
		httpapi.WriteError(w, http.StatusConflict, "laboratory_exists", "laboratory name already exists")
	case errors.Is(err, ErrLaboratoryNotEmpty):
		httpapi.WriteError(w, http.StatusConflict, "laboratory_not_empty", "laboratory still has dependent records")
	default:
		logger.Log.WithError(err).Error("laboratory operation failed")
		httpapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
