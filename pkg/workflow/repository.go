package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrRequestNotFound = errors.New("test request not found")
	ErrResultNotFound  = errors.New("test result not found")
	ErrDuplicateResult = errors.New("test request already has a result")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type PatientModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	FullName     string    `gorm:"uniqueIndex:idx_patients_lab_name"`
	DateOfBirth  *time.Time
	Gender       string
	MedicalNotes string    `gorm:"type:text"`
	LaboratoryID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_patients_lab_name;index"`
	CreatedAt    time.Time
}

func (PatientModel) TableName() string { return "patients" }

type TestRequestModel struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	PatientID            uuid.UUID `gorm:"type:uuid;index"`
	PatientName          string
	TestType             string
	EquipmentID          uuid.UUID `gorm:"type:uuid"`
	DoctorID             uuid.UUID `gorm:"type:uuid;index"`
	TechnicianID         uuid.UUID `gorm:"type:uuid;index"`
	RequestedAt          time.Time
	MessageForDoctor     string    `gorm:"type:text"`
	MessageForTechnician string    `gorm:"type:text"`
	Status               string    `gorm:"index"`
	LaboratoryID         uuid.UUID `gorm:"type:uuid;index"`
}

func (TestRequestModel) TableName() string { return "test_requests" }

// RequestID carries a unique index: the schema itself enforces at most one
// result per request even under concurrent uploads.
type TestResultModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Details      string    `gorm:"type:text"`
	Data         datatypes.JSON
	FilePath     string
	TechnicianID uuid.UUID `gorm:"type:uuid;index"`
	DoctorID     uuid.UUID `gorm:"type:uuid;index"`
	UploadedAt   time.Time
	Seen         bool
	LaboratoryID uuid.UUID `gorm:"type:uuid;index"`
}

func (TestResultModel) TableName() string { return "test_results" }

func (m PatientModel) toDomain() models.Patient {
	return models.Patient{
		ID:           m.ID,
		FullName:     m.FullName,
		DateOfBirth:  m.DateOfBirth,
		Gender:       m.Gender,
		MedicalNotes: m.MedicalNotes,
		LaboratoryID: m.LaboratoryID,
		CreatedAt:    m.CreatedAt,
	}
}

func (m TestRequestModel) toDomain() models.TestRequest {
	return models.TestRequest{
		ID:                   m.ID,
		PatientID:            m.PatientID,
		PatientName:          m.PatientName,
		TestType:             m.TestType,
		EquipmentID:          m.EquipmentID,
		DoctorID:             m.DoctorID,
		TechnicianID:         m.TechnicianID,
		RequestedAt:          m.RequestedAt,
		MessageForDoctor:     m.MessageForDoctor,
		MessageForTechnician: m.MessageForTechnician,
		Status:               models.RequestStatus(m.Status),
		LaboratoryID:         m.LaboratoryID,
	}
}

func (m TestResultModel) toDomain() models.TestResult {
	result := models.TestResult{
		ID:           m.ID,
		RequestID:    m.RequestID,
		Details:      m.Details,
		FilePath:     m.FilePath,
		TechnicianID: m.TechnicianID,
		DoctorID:     m.DoctorID,
		UploadedAt:   m.UploadedAt,
		Seen:         m.Seen,
		LaboratoryID: m.LaboratoryID,
	}
	if len(m.Data) > 0 {
		var data map[string]interface{}
		if err := json.Unmarshal(m.Data, &data); err == nil {
			result.Data = data
		}
	}
	return result
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PatientModel{}, &TestRequestModel{}, &TestResultModel{})
}

type CreateRequestInput struct {
	LaboratoryID         uuid.UUID
	PatientName          string
	PatientDOB           *time.Time
	PatientGender        string
	TestType             string
	EquipmentID          uuid.UUID
	DoctorID             uuid.UUID
	TechnicianID         uuid.UUID
	MessageForTechnician string
}

// CreateRequest resolves or creates the patient and inserts the request in
// one transaction, so a failure leaves neither a stray patient nor a
// half-written request behind. Patient match is a case-sensitive exact
// name match within the laboratory.
func (r *Repository) CreateRequest(ctx context.Context, input CreateRequestInput) (models.TestRequest, error) {
	var request TestRequestModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var patient PatientModel
		err := tx.Where("full_name = ? AND laboratory_id = ?", input.PatientName, input.LaboratoryID).
			First(&patient).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			patient = PatientModel{
				ID:           uuid.New(),
				FullName:     input.PatientName,
				DateOfBirth:  input.PatientDOB,
				Gender:       input.PatientGender,
				MedicalNotes: "",
				LaboratoryID: input.LaboratoryID,
				CreatedAt:    time.Now().UTC(),
			}
			if err := tx.Create(&patient).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		request = TestRequestModel{
			ID:                   uuid.New(),
			PatientID:            patient.ID,
			PatientName:          patient.FullName,
			TestType:             input.TestType,
			EquipmentID:          input.EquipmentID,
			DoctorID:             input.DoctorID,
			TechnicianID:         input.TechnicianID,
			RequestedAt:          time.Now().UTC(),
			MessageForTechnician: input.MessageForTechnician,
			Status:               string(models.StatusPending),
			LaboratoryID:         input.LaboratoryID,
		}
		return tx.Create(&request).Error
	})
	if err != nil {
		return models.TestRequest{}, err
	}
	return request.toDomain(), nil
}

func (r *Repository) GetRequest(ctx context.Context, id, labID uuid.UUID) (models.TestRequest, error) {
	var request TestRequestModel
	err := r.db.WithContext(ctx).Where("id = ? AND laboratory_id = ?", id, labID).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TestRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return models.TestRequest{}, err
	}
	return r.withEquipmentNames(ctx, []models.TestRequest{request.toDomain()})[0], nil
}

func (r *Repository) ListRequestsByDoctor(ctx context.Context, doctorID, labID uuid.UUID) ([]models.TestRequest, error) {
	var rows []TestRequestModel
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND laboratory_id = ?", doctorID, labID).
		Order("requested_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows), nil
}

func (r *Repository) ListPendingForTechnician(ctx context.Context, technicianID, labID uuid.UUID) ([]models.TestRequest, error) {
	var rows []TestRequestModel
	err := r.db.WithContext(ctx).
		Where("technician_id = ? AND laboratory_id = ? AND status IN ?",
			technicianID, labID, []string{string(models.StatusPending), string(models.StatusSeen)}).
		Order("requested_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows), nil
}

func (r *Repository) ListRequestsByLab(ctx context.Context, labID uuid.UUID) ([]models.TestRequest, error) {
	var rows []TestRequestModel
	err := r.db.WithContext(ctx).
		Where("laboratory_id = ?", labID).
		Order("requested_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows), nil
}

func (r *Repository) collect(ctx context.Context, rows []TestRequestModel) []models.TestRequest {
	requests := make([]models.TestRequest, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, row.toDomain())
	}
	return r.withEquipmentNames(ctx, requests)
}

// withEquipmentNames decorates requests with the equipment display name in
// a single follow-up query.
func (r *Repository) withEquipmentNames(ctx context.Context, requests []models.TestRequest) []models.TestRequest {
	if len(requests) == 0 {
		return requests
	}
	ids := make([]uuid.UUID, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.EquipmentID)
	}

	var rows []struct {
		ID   uuid.UUID
		Name string
	}
	if err := r.db.WithContext(ctx).Table("equipment").
		Select("id, name").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return requests
	}

	names := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	for i := range requests {
		requests[i].EquipmentName = names[requests[i].EquipmentID]
	}
	return requests
}

type UpdateRequestInput struct {
	MessageForDoctor     *string
	MessageForTechnician *string
	Status               *models.RequestStatus
}

func (r *Repository) UpdateRequest(ctx context.Context, id, labID uuid.UUID, input UpdateRequestInput) error {
	updates := map[string]interface{}{}
	if input.MessageForDoctor != nil {
		updates["message_for_doctor"] = *input.MessageForDoctor
	}
	if input.MessageForTechnician != nil {
		updates["message_for_technician"] = *input.MessageForTechnician
	}
	if input.Status != nil {
		updates["status"] = string(*input.Status)
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&TestRequestModel{}).
		Where("id = ? AND laboratory_id = ?", id, labID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

type CreateResultInput struct {
	RequestID    uuid.UUID
	Details      string
	Data         map[string]interface{}
	FilePath     string
	TechnicianID uuid.UUID
	DoctorID     uuid.UUID
	LaboratoryID uuid.UUID
}

// CreateResult inserts the result and completes the owning request in one
// transaction. The unique index on request_id backstops the in-transaction
// duplicate check against concurrent uploads.
func (r *Repository) CreateResult(ctx context.Context, input CreateResultInput) (models.TestResult, error) {
	var result TestResultModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TestResultModel
		err := tx.Where("request_id = ?", input.RequestID).First(&existing).Error
		if err == nil {
			return ErrDuplicateResult
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		result = TestResultModel{
			ID:           uuid.New(),
			RequestID:    input.RequestID,
			Details:      input.Details,
			FilePath:     input.FilePath,
			TechnicianID: input.TechnicianID,
			DoctorID:     input.DoctorID,
			UploadedAt:   time.Now().UTC(),
			Seen:         false,
			LaboratoryID: input.LaboratoryID,
		}
		if input.Data != nil {
			if data, err := json.Marshal(input.Data); err == nil {
				result.Data = datatypes.JSON(data)
			}
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}

		return tx.Model(&TestRequestModel{}).
			Where("id = ? AND laboratory_id = ?", input.RequestID, input.LaboratoryID).
			Update("status", string(models.StatusCompleted)).Error
	})
	if err != nil {
		return models.TestResult{}, err
	}
	return result.toDomain(), nil
}

func (r *Repository) GetResultOwned(ctx context.Context, id, doctorID, labID uuid.UUID) (models.TestResult, error) {
	var result TestResultModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND doctor_id = ? AND laboratory_id = ?", id, doctorID, labID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TestResult{}, ErrResultNotFound
	}
	if err != nil {
		return models.TestResult{}, err
	}
	return result.toDomain(), nil
}

func (r *Repository) ListResultsByDoctor(ctx context.Context, doctorID, labID uuid.UUID) ([]models.DoctorResultView, error) {
	var rows []TestResultModel
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND laboratory_id = ?", doctorID, labID).
		Order("uploaded_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	requests, err := r.requestDetails(ctx, rows)
	if err != nil {
		return nil, err
	}

	views := make([]models.DoctorResultView, 0, len(rows))
	for _, row := range rows {
		result := row.toDomain()
		view := models.DoctorResultView{
			ID:         result.ID,
			RequestID:  result.RequestID,
			Details:    result.Details,
			Data:       result.Data,
			FilePath:   result.FilePath,
			UploadedAt: result.UploadedAt,
			Seen:       result.Seen,
		}
		if req, ok := requests[result.RequestID]; ok {
			view.PatientName = req.PatientName
			view.TestType = req.TestType
		}
		views = append(views, view)
	}
	return views, nil
}

func (r *Repository) ListResultsByLab(ctx context.Context, labID uuid.UUID) ([]models.AdminResultView, error) {
	var rows []TestResultModel
	err := r.db.WithContext(ctx).
		Where("laboratory_id = ?", labID).
		Order("uploaded_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	technicianIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		technicianIDs = append(technicianIDs, row.TechnicianID)
	}

	names := map[uuid.UUID]string{}
	if len(technicianIDs) > 0 {
		var users []struct {
			ID       uuid.UUID
			FullName string
		}
		if err := r.db.WithContext(ctx).Table("users").
			Select("id, full_name").Where("id IN ?", technicianIDs).Scan(&users).Error; err == nil {
			for _, u := range users {
				names[u.ID] = u.FullName
			}
		}
	}

	views := make([]models.AdminResultView, 0, len(rows))
	for _, row := range rows {
		uploadedBy := names[row.TechnicianID]
		if uploadedBy == "" {
			uploadedBy = "Unknown"
		}
		views = append(views, models.AdminResultView{
			ID:         row.ID,
			RequestID:  row.RequestID,
			UploadedBy: uploadedBy,
			Details:    row.Details,
			UploadedAt: row.UploadedAt,
		})
	}
	return views, nil
}

func (r *Repository) requestDetails(ctx context.Context, rows []TestResultModel) (map[uuid.UUID]TestRequestModel, error) {
	if len(rows) == 0 {
		return map[uuid.UUID]TestRequestModel{}, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RequestID)
	}

	var requests []TestRequestModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&requests).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]TestRequestModel, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
	}
	return byID, nil
}

func (r *Repository) MarkResultSeen(ctx context.Context, id, doctorID, labID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&TestResultModel{}).
		Where("id = ? AND doctor_id = ? AND laboratory_id = ?", id, doctorID, labID).
		Update("seen", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrResultNotFound
	}
	return nil
}

func (r *Repository) ListPatients(ctx context.Context, labID uuid.UUID) ([]models.Patient, error) {
	var rows []PatientModel
	if err := r.db.WithContext(ctx).Where("laboratory_id = ?", labID).Order("full_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	patients := make([]models.Patient, 0, len(rows))
	for _, row := range rows {
		patients = append(patients, row.toDomain())
	}
	return patients, nil
}

func (r *Repository) CountPatients(ctx context.Context, labID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PatientModel{}).
		Where("laboratory_id = ?", labID).Count(&count).Error
	return count, err
}

// CountByLaboratory reports all workflow records owned by a laboratory,
// for the tenant registry's delete check.
func (r *Repository) CountByLaboratory(ctx context.Context, labID uuid.UUID) (int64, error) {
	var total int64
	for _, model := range []interface{}{&PatientModel{}, &TestRequestModel{}, &TestResultModel{}} {
		var count int64
		if err := r.db.WithContext(ctx).Model(model).
			Where("laboratory_id = ?", labID).Count(&count).Error; err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}
