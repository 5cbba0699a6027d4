package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/labworks/platform/pkg/common/httpapi"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/equipment"
	"github.com/labworks/platform/pkg/gateway/middleware"
	"github.com/labworks/platform/pkg/identity"
	"github.com/labworks/platform/pkg/observability/metrics"
	"github.com/labworks/platform/pkg/policy"
)

// maxUploadBytes caps the multipart form held in memory per upload.
const maxUploadBytes = 32 << 20

// TechnicianLister lets doctors pick an assignee from their own laboratory.
type TechnicianLister interface {
	ListColleagues(ctx context.Context, actor models.User, role models.Role) ([]models.User, error)
}

type Handler struct {
	service     *Service
	technicians TechnicianLister
}

func NewHandler(service *Service, technicians TechnicianLister) *Handler {
	return &Handler{service: service, technicians: technicians}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/doctor/submit-request/", h.handleSubmitRequest).Methods(http.MethodPost)
	r.HandleFunc("/doctor/my-requests/", h.handleMyRequests).Methods(http.MethodGet)
	r.HandleFunc("/doctor/technicians/", h.handleListTechnicians).Methods(http.MethodGet)
	r.HandleFunc("/doctor/test-results/", h.handleMyResults).Methods(http.MethodGet)
	r.HandleFunc("/doctor/test-results/{id}/seen", h.handleMarkResultSeen).Methods(http.MethodPost)
	r.HandleFunc("/doctor/share-result", h.handleShareResult).Methods(http.MethodPost)
	r.HandleFunc("/doctor/patients/", h.handleListPatients).Methods(http.MethodGet)
	r.HandleFunc("/technician/pending-requests/", h.handlePendingRequests).Methods(http.MethodGet)
	r.HandleFunc("/technician/upload-result/", h.handleUploadResult).Methods(http.MethodPost)
	r.HandleFunc("/requests/{id}/messages", h.handleGetMessages).Methods(http.MethodGet)
	r.HandleFunc("/requests/{id}/messages", h.handleAddMessage).Methods(http.MethodPost)
}

// RegisterAdmin mounts the tenant-wide listings on the admin subrouter.
func (h *Handler) RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/test-requests", h.handleAdminRequests).Methods(http.MethodGet)
	r.HandleFunc("/test-results/", h.handleAdminResults).Methods(http.MethodGet)
}

func (h *Handler) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	var req models.SubmitTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.PatientName == "" || req.TestType == "" || req.EquipmentName == "" || req.TechnicianID == uuid.Nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "patient_name, test_type, equipment_name, and technician_id are required")
		return
	}
	request, err := h.service.SubmitRequest(r.Context(), actor, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"request": request})
}

func (h *Handler) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	requests, err := h.service.MyRequests(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": requests})
}

func (h *Handler) handleListTechnicians(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	technicians, err := h.technicians.ListColleagues(r.Context(), actor, models.RoleLabTechnician)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": technicians})
}

func (h *Handler) handleMyResults(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	results, err := h.service.MyResults(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": results})
}

func (h *Handler) handleMarkResultSeen(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid result id")
		return
	}
	if err := h.service.MarkResultSeen(r.Context(), actor, id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleShareResult(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	var req models.ShareResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.ResultID == uuid.Nil || req.RecipientEmail == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "result_id and recipient_email are required")
		return
	}
	if err := h.service.ShareResult(r.Context(), actor, req); err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"shared": true})
}

func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	patients, err := h.service.ListPatients(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": patients})
}

func (h *Handler) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	requests, err := h.service.PendingRequests(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": requests})
}

// handleUploadResult accepts multipart/form-data with request_id, details,
// optional JSON data, and an optional result file.
func (h *Handler) handleUploadResult(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "multipart form required")
		return
	}

	requestID, err := uuid.Parse(r.FormValue("request_id"))
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "valid request_id is required")
		return
	}

	input := UploadResultInput{
		RequestID: requestID,
		Details:   r.FormValue("details"),
	}
	if raw := r.FormValue("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.Data); err != nil {
			httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "data must be a JSON object")
			return
		}
	}
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		input.File = file
		input.FileName = header.Filename
	}

	result, err := h.service.UploadResult(r.Context(), actor, input)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]interface{}{"result": result})
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request id")
		return
	}
	messages, err := h.service.Messages(r.Context(), actor, id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request id")
		return
	}
	var req models.AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.Message == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "message is required")
		return
	}
	request, err := h.service.AddMessage(r.Context(), actor, id, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"request": request})
}

func (h *Handler) handleAdminRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	requests, err := h.service.ListRequests(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": requests})
}

func (h *Handler) handleAdminResults(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.CurrentUser(r)
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	results, err := h.service.ListResults(r.Context(), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": results})
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, policy.ErrInsufficientRole):
		metrics.IncAuthDenied()
		httpapi.WriteError(w, http.StatusForbidden, "insufficient_role", "operation not permitted for this role")
	case errors.Is(err, policy.ErrNotOwner), errors.Is(err, policy.ErrCrossTenantAccess):
		// Ownership and tenant misses read as absence, not as a hint that
		// the entity exists.
		metrics.IncAuthDenied()
		httpapi.WriteError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, policy.ErrNoTenant):
		httpapi.WriteError(w, http.StatusForbidden, "tenant_required", "caller has no laboratory")
	case errors.Is(err, ErrRequestNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "request_not_found", "test request not found")
	case errors.Is(err, ErrResultNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "result_not_found", "test result not found")
	case errors.Is(err, equipment.ErrEquipmentNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "equipment_not_found", "equipment not found")
	case errors.Is(err, identity.ErrUserNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, ErrInvalidTechnician):
		httpapi.WriteError(w, http.StatusBadRequest, "validation_error", "assignee is not a lab technician")
	case errors.Is(err, ErrDuplicateResult):
		httpapi.WriteError(w, http.StatusConflict, "duplicate_result", "test request already has a result")
	case errors.Is(err, ErrRequestCompleted):
		httpapi.WriteError(w, http.StatusConflict, "request_completed", "test request already completed")
	case errors.Is(err, ErrCollaborator):
		logger.Log.WithError(err).Error("collaborator failure")
		httpapi.WriteError(w, http.StatusBadGateway, "collaborator_failure", "a downstream dependency failed")
	default:
		logger.Log.WithError(err).Error("workflow operation failed")
		httpapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
