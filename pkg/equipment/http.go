package equipment

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

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/equipment/", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/equipment/", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/equipment/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/equipment/{id}", h.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/equipment/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	var req models.CreateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.Name == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	eq, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"equipment": eq})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	items, err := h.service.List(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid equipment id")
		return
	}
	eq, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"equipment": eq})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid equipment id")
		return
	}
	var req models.UpdateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	eq, err := h.service.Update(r.Context(), actor, id, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"equipment": eq})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid equipment id")
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
	case errors.Is(err, policy.ErrCrossTenantAccess), errors.Is(err, policy.ErrNotOwner):
		metrics.IncAuthDenied()
		httpapi.WriteError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, policy.ErrNoTenant):
		httpapi.WriteError(w, http.StatusForbidden, "tenant_required", "caller has no laboratory")
	case errors.Is(err, ErrEquipmentNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "equipment_not_found", "equipment not found")
	case errors.Is(err, ErrEquipmentExists):
		httpapi.WriteError(w, http.StatusConflict, "equipment_exists", "equipment name already exists in this laboratory")
	default:
		logger.Log.WithError(err).Error("equipment operation failed")
		httpapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
