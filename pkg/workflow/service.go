package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/catalog"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/delivery"
	"github.com/labworks/platform/pkg/observability/metrics"
	"github.com/labworks/platform/pkg/policy"
)

var (
	ErrInvalidTechnician = errors.New("assignee is not a lab technician")
	ErrRequestCompleted  = errors.New("test request already completed")
	ErrCollaborator      = errors.New("collaborator failure")
)

// EquipmentDirectory resolves equipment names within a laboratory.
type EquipmentDirectory interface {
	GetByName(ctx context.Context, name string, labID uuid.UUID) (models.Equipment, error)
}

// UserDirectory resolves users for technician assignment and doctor
// notification lookups.
type UserDirectory interface {
	GetUserByIDInLab(ctx context.Context, id, labID uuid.UUID) (models.User, error)
}

// EventPublisher emits domain events after the owning transaction commits.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type Service struct {
	repo      *Repository
	equipment EquipmentDirectory
	users     UserDirectory
	files     delivery.FileStore
	mailer    delivery.EmailSender
	events    EventPublisher
	catalog   catalog.Catalog
}

func NewService(
	repo *Repository,
	equipment EquipmentDirectory,
	users UserDirectory,
	files delivery.FileStore,
	mailer delivery.EmailSender,
	events EventPublisher,
	cat catalog.Catalog,
) *Service {
	return &Service{
		repo:      repo,
		equipment: equipment,
		users:     users,
		files:     files,
		mailer:    mailer,
		events:    events,
		catalog:   cat,
	}
}

// SubmitRequest validates equipment and technician before anything is
// persisted, then creates the patient (if new) and the request atomically.
func (s *Service) SubmitRequest(ctx context.Context, actor models.User, req models.SubmitTestRequest) (models.TestRequest, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor)); err != nil {
		return models.TestRequest{}, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return models.TestRequest{}, err
	}

	if req.PatientName == "" {
		return models.TestRequest{}, fmt.Errorf("patient name required")
	}
	if req.TestType == "" {
		return models.TestRequest{}, fmt.Errorf("test type required")
	}

	eq, err := s.equipment.GetByName(ctx, req.EquipmentName, labID)
	if err != nil {
		return models.TestRequest{}, err
	}

	technician, err := s.users.GetUserByIDInLab(ctx, req.TechnicianID, labID)
	if err != nil {
		return models.TestRequest{}, err
	}
	if technician.Role != models.RoleLabTechnician {
		return models.TestRequest{}, ErrInvalidTechnician
	}

	request, err := s.repo.CreateRequest(ctx, CreateRequestInput{
		LaboratoryID:         labID,
		PatientName:          req.PatientName,
		PatientDOB:           req.PatientDOB,
		PatientGender:        req.PatientGender,
		TestType:             s.catalog.Normalize(req.TestType),
		EquipmentID:          eq.ID,
		DoctorID:             actor.ID,
		TechnicianID:         technician.ID,
		MessageForTechnician: req.MessageForTechnician,
	})
	if err != nil {
		return models.TestRequest{}, err
	}

	metrics.IncRequestsSubmitted()
	s.publish(ctx, "request.submitted", map[string]interface{}{
		"request_id":    request.ID.String(),
		"laboratory_id": labID.String(),
		"doctor_id":     actor.ID.String(),
		"technician_id": technician.ID.String(),
		"test_type":     request.TestType,
	})
	return request, nil
}

func (s *Service) MyRequests(ctx context.Context, actor models.User) ([]models.TestRequest, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor)); err != nil {
		return nil, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRequestsByDoctor(ctx, actor.ID, labID)
}

// PendingRequests lists the open work queue for a technician: requests
// assigned to them that have not yet been completed.
func (s *Service) PendingRequests(ctx context.Context, actor models.User) ([]models.TestRequest, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleLabTechnician)); err != nil {
		return nil, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPendingForTechnician(ctx, actor.ID, labID)
}

func (s *Service) ListRequests(ctx context.Context, actor models.User) ([]models.TestRequest, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin)); err != nil {
		return nil, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRequestsByLab(ctx, labID)
}

func (s *Service) Messages(ctx context.Context, actor models.User, requestID uuid.UUID) (models.RequestMessages, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor, models.RoleLabTechnician, models.RoleAdmin)); err != nil {
		return models.RequestMessages{}, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return models.RequestMessages{}, err
	}

	request, err := s.repo.GetRequest(ctx, requestID, labID)
	if err != nil {
		return models.RequestMessages{}, err
	}
	if actor.Role != models.RoleAdmin && request.DoctorID != actor.ID && request.TechnicianID != actor.ID {
		return models.RequestMessages{}, ErrRequestNotFound
	}

	return models.RequestMessages{
		MessageForDoctor:     request.MessageForDoctor,
		MessageForTechnician: request.MessageForTechnician,
	}, nil
}

// AddMessage attaches a note to a request. A doctor writes the message the
// technician sees and vice versa. The first technician message moves a
// pending request to seen; completed requests are read-only.
func (s *Service) AddMessage(ctx context.Context, actor models.User, requestID uuid.UUID, message string) (models.TestRequest, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor, models.RoleLabTechnician)); err != nil {
		return models.TestRequest{}, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return models.TestRequest{}, err
	}

	request, err := s.repo.GetRequest(ctx, requestID, labID)
	if err != nil {
		return models.TestRequest{}, err
	}

	var owner uuid.UUID
	if actor.Role == models.RoleDoctor {
		owner = request.DoctorID
	} else {
		owner = request.TechnicianID
	}
	if err := policy.Authorize(actor, policy.RequireRole(actor.Role).InTenant(request.LaboratoryID).OwnedBy(owner)); err != nil {
		return models.TestRequest{}, err
	}

	if request.Status == models.StatusCompleted {
		return models.TestRequest{}, ErrRequestCompleted
	}

	input := UpdateRequestInput{}
	if actor.Role == models.RoleDoctor {
		input.MessageForTechnician = &message
	} else {
		input.MessageForDoctor = &message
		if request.Status == models.StatusPending {
			seen := models.StatusSeen
			input.Status = &seen
		}
	}

	if err := s.repo.UpdateRequest(ctx, requestID, labID, input); err != nil {
		return models.TestRequest{}, err
	}
	return s.repo.GetRequest(ctx, requestID, labID)
}

type UploadResultInput struct {
	RequestID uuid.UUID
	Details   string
	Data      map[string]interface{}
	FileName  string
	File      io.Reader
}

// UploadResult stores the attachment first, then inserts the result and
// completes the request in one transaction. A second upload for the same
// request fails with ErrDuplicateResult and leaves the stored result alone.
func (s *Service) UploadResult(ctx context.Context, actor models.User, input UploadResultInput) (models.TestResult, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleLabTechnician)); err != nil {
		return models.TestResult{}, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return models.TestResult{}, err
	}

	request, err := s.repo.GetRequest(ctx, input.RequestID, labID)
	if err != nil {
		return models.TestResult{}, err
	}
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleLabTechnician).InTenant(request.LaboratoryID).OwnedBy(request.TechnicianID)); err != nil {
		return models.TestResult{}, err
	}
	if request.Status == models.StatusCompleted {
		return models.TestResult{}, ErrDuplicateResult
	}

	var filePath string
	if input.File != nil {
		filePath, err = s.files.Save(ctx, input.FileName, input.File)
		if err != nil {
			return models.TestResult{}, fmt.Errorf("%w: store result file: %v", ErrCollaborator, err)
		}
	}

	result, err := s.repo.CreateResult(ctx, CreateResultInput{
		RequestID:    request.ID,
		Details:      input.Details,
		Data:         input.Data,
		FilePath:     filePath,
		TechnicianID: actor.ID,
		DoctorID:     request.DoctorID,
		LaboratoryID: labID,
	})
	if err != nil {
		if filePath != "" {
			if cleanupErr := s.files.Delete(ctx, filePath); cleanupErr != nil {
				logger.Log.WithError(cleanupErr).WithField("file", filePath).Warn("failed to remove orphaned result file")
			}
		}
		return models.TestResult{}, err
	}

	metrics.IncResultsUploaded()

	data := map[string]interface{}{
		"result_id":     result.ID.String(),
		"request_id":    request.ID.String(),
		"laboratory_id": labID.String(),
		"doctor_id":     request.DoctorID.String(),
		"patient_name":  request.PatientName,
		"test_type":     request.TestType,
	}
	if doctor, err := s.users.GetUserByIDInLab(ctx, request.DoctorID, labID); err == nil {
		data["doctor_email"] = doctor.Email
		data["doctor_name"] = doctor.FullName
	}
	s.publish(ctx, "result.uploaded", data)

	return result, nil
}

func (s *Service) MyResults(ctx context.Context, actor models.User) ([]models.DoctorResultView, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor)); err != nil {
		return nil, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListResultsByDoctor(ctx, actor.ID, labID)
}

func (s *Service) ListResults(ctx context.Context, actor models.User) ([]models.AdminResultView, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin)); err != nil {
		return nil, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListResultsByLab(ctx, labID)
}

func (s *Service) MarkResultSeen(ctx context.Context, actor models.User, resultID uuid.UUID) error {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor)); err != nil {
		return err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return err
	}
	return s.repo.MarkResultSeen(ctx, resultID, actor.ID, labID)
}

// ShareResult emails a result the doctor owns to an outside recipient. The
// tenant-and-owner-scoped fetch means someone else's result id reads as not
// found rather than forbidden.
func (s *Service) ShareResult(ctx context.Context, actor models.User, req models.ShareResultRequest) error {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor)); err != nil {
		return err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return err
	}
	if req.RecipientEmail == "" {
		return fmt.Errorf("recipient email required")
	}

	result, err := s.repo.GetResultOwned(ctx, req.ResultID, actor.ID, labID)
	if err != nil {
		return err
	}

	msg := delivery.EmailMessage{
		To:      req.RecipientEmail,
		Subject: "Laboratory test result",
		Body:    req.Message,
	}
	if msg.Body == "" {
		msg.Body = "A laboratory test result has been shared with you.\n\n" + result.Details
	}

	if result.FilePath != "" {
		reader, err := s.files.Open(ctx, result.FilePath)
		if err != nil {
			return fmt.Errorf("%w: open result file: %v", ErrCollaborator, err)
		}
		content, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return fmt.Errorf("%w: read result file: %v", ErrCollaborator, err)
		}
		msg.Attachment = &delivery.Attachment{Filename: result.FilePath, Content: content}
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.IncEmailsFailed()
		return fmt.Errorf("%w: send email: %v", ErrCollaborator, err)
	}

	metrics.IncEmailsSent()
	metrics.IncResultsShared()
	s.publish(ctx, "result.shared", map[string]interface{}{
		"result_id":     result.ID.String(),
		"laboratory_id": labID.String(),
		"doctor_id":     actor.ID.String(),
		"recipient":     req.RecipientEmail,
	})
	return nil
}

func (s *Service) ListPatients(ctx context.Context, actor models.User) ([]models.Patient, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor, models.RoleAdmin)); err != nil {
		return nil, err
	}
	labID, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPatients(ctx, labID)
}

// publish is fire-and-forget: the domain change is already committed, so a
// broker outage only costs the downstream notification.
func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, "workflow-service", data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to publish event")
	}
}
