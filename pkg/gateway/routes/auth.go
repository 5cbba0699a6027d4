package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/labworks/platform/pkg/auth"
	"github.com/labworks/platform/pkg/common/httpapi"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/gateway/middleware"
	"github.com/labworks/platform/pkg/identity"
	"github.com/labworks/platform/pkg/observability/metrics"
)

// AuthHandler serves login, registration, and session endpoints.
type AuthHandler struct {
	users       *identity.Service
	tokens      *auth.JWTManager
	revocations *auth.RevocationList
}

func NewAuthHandler(users *identity.Service, tokens *auth.JWTManager, revocations *auth.RevocationList) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, revocations: revocations}
}

// RegisterPublic mounts the endpoints that work without a token.
func (h *AuthHandler) RegisterPublic(r *mux.Router) {
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", h.handleRegister).Methods(http.MethodPost)
}

// RegisterProtected mounts the endpoints behind the authentication
// middleware.
func (h *AuthHandler) RegisterProtected(r *mux.Router) {
	r.HandleFunc("/auth/me", h.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", h.handleLogout).Methods(http.MethodPost)
}

// handleLogin authenticates by full name or email plus password, and for
// every role except SUPER_ADMIN the laboratory the caller claims to work
// in. No token is issued unless all checks pass.
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.FullName == "" || req.Password == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "full_name and password are required")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.FullName, req.Password, req.LabName)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			httpapi.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		case errors.Is(err, identity.ErrTenantRequired):
			httpapi.WriteError(w, http.StatusBadRequest, "tenant_required", "lab_name is required")
		case errors.Is(err, identity.ErrTenantNotFound):
			httpapi.WriteError(w, http.StatusUnauthorized, "tenant_not_found", "laboratory not found")
		case errors.Is(err, identity.ErrTenantMismatch):
			httpapi.WriteError(w, http.StatusUnauthorized, "tenant_mismatch", "user does not belong to this laboratory")
		default:
			logger.Log.WithError(err).Error("login failed")
			httpapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	token, err := h.tokens.IssueToken(user)
	if err != nil {
		logger.Log.WithError(err).Error("failed to issue token")
		httpapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	metrics.IncLogins()
	httpapi.WriteJSON(w, http.StatusOK, models.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
		User:        user,
	})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	user, err := h.users.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			httpapi.WriteError(w, http.StatusConflict, "email_taken", "email already registered")
		case errors.Is(err, identity.ErrAdminExists):
			httpapi.WriteError(w, http.StatusConflict, "admin_exists", "laboratory already has an admin")
		case errors.Is(err, identity.ErrTenantNotFound):
			httpapi.WriteError(w, http.StatusBadRequest, "tenant_not_found", "laboratory not found")
		case errors.Is(err, models.ErrUnknownRole):
			httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "unknown role")
		default:
			httpapi.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		}
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// handleLogout revokes the presented token. The denylist entry lives only
// until the token would have expired anyway.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.CurrentClaims(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	if h.revocations != nil {
		if err := h.revocations.Revoke(r.Context(), claims); err != nil {
			logger.Log.WithError(err).Warn("failed to revoke token")
		}
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"logged_out": true})
}
