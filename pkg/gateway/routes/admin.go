package routes

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
	"github.com/labworks/platform/pkg/identity"
	"github.com/labworks/platform/pkg/observability/metrics"
	"github.com/labworks/platform/pkg/policy"
)

// AdminHandler serves the tenant-scoped administration endpoints: headcount
// stats and user management.
type AdminHandler struct {
	users *identity.Service
}

func NewAdminHandler(users *identity.Service) *AdminHandler {
	return &AdminHandler{users: users}
}

func (h *AdminHandler) RegisterStats(r *mux.Router) {
	r.HandleFunc("/stats/total-users", h.statsHandler(nil)).Methods(http.MethodGet)
	r.HandleFunc("/stats/doctors", h.statsHandler(rolePtr(models.RoleDoctor))).Methods(http.MethodGet)
	r.HandleFunc("/stats/labtechs", h.statsHandler(rolePtr(models.RoleLabTechnician))).Methods(http.MethodGet)
}

func (h *AdminHandler) RegisterUsers(r *mux.Router) {
	r.HandleFunc("/users/", h.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.handleGetUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.handleUpdateUser).Methods(http.MethodPut)
	r.HandleFunc("/users/{id}", h.handleDeleteUser).Methods(http.MethodDelete)
}

func rolePtr(role models.Role) *models.Role { return &role }

func (h *AdminHandler) statsHandler(role *models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.CurrentUser(r)
		if !ok {
			httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
			return
		}
		count, err := h.users.CountUsers(r.Context(), actor, role)
		if err != nil {
			respondAdminError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"count": count})
	}
}

func (h *AdminHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}

	var role *models.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := models.ParseRole(raw)
		if err != nil {
			httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "unknown role")
			return
		}
		role = &parsed
	}

	users, err := h.users.ListUsers(r.Context(), actor, role)
	if err != nil {
		respondAdminError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": users})
}

func (h *AdminHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid user id")
		return
	}
	user, err := h.users.GetUserInLab(r.Context(), actor, id)
	if err != nil {
		respondAdminError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AdminHandler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid user id")
		return
	}
	var req models.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	user, err := h.users.UpdateUser(r.Context(), actor, id, req)
	if err != nil {
		respondAdminError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AdminHandler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid user id")
		return
	}
	if err := h.users.DeleteUser(r.Context(), actor, id); err != nil {
		respondAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, policy.ErrInsufficientRole):
		metrics.IncAuthDenied()
		httpapi.WriteError(w, http.StatusForbidden, "insufficient_role", "operation not permitted for this role")
	case errors.Is(err, policy.ErrNoTenant):
		httpapi.WriteError(w, http.StatusForbidden, "tenant_required", "caller has no laboratory")
	case errors.Is(err, identity.ErrUserNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, identity.ErrEmailTaken):
		httpapi.WriteError(w, http.StatusConflict, "email_taken", "email already registered")
	default:
		logger.Log.WithError(err).Error("admin operation failed")
		httpapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
