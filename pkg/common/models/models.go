package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of user roles. Comparisons are exact; the
// case-insensitive matching of older deployments is deliberately gone.
type Role string

const (
	RoleDoctor        Role = "DOCTOR"
	RoleLabTechnician Role = "LAB_TECHNICIAN"
	RoleAdmin         Role = "ADMIN"
	RoleSuperAdmin    Role = "SUPER_ADMIN"
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor, RoleLabTechnician, RoleAdmin, RoleSuperAdmin:
		return Role(s), nil
	}
	return "", ErrUnknownRole
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// RequestStatus is the test request lifecycle: pending -> seen -> completed.
// completed is terminal and only ever set by a successful result upload.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusSeen      RequestStatus = "seen"
	StatusCompleted RequestStatus = "completed"
)

type Laboratory struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type User struct {
	ID           uuid.UUID  `json:"id"`
	FullName     string     `json:"full_name"`
	Email        string     `json:"email"`
	Role         Role       `json:"role"`
	LaboratoryID *uuid.UUID `json:"laboratory_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Equipment struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type,omitempty"`
	IsAvailable  bool      `json:"is_available"`
	LastServiced time.Time `json:"last_serviced"`
	Description  string    `json:"description,omitempty"`
	LaboratoryID uuid.UUID `json:"laboratory_id"`
	AddedByID    uuid.UUID `json:"added_by_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Patient struct {
	ID           uuid.UUID  `json:"id"`
	FullName     string     `json:"full_name"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	MedicalNotes string     `json:"medical_notes,omitempty"`
	LaboratoryID uuid.UUID  `json:"laboratory_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

type TestRequest struct {
	ID                   uuid.UUID     `json:"id"`
	PatientID            uuid.UUID     `json:"patient_id"`
	PatientName          string        `json:"patient_name"`
	TestType             string        `json:"test_type"`
	EquipmentID          uuid.UUID     `json:"equipment_id"`
	EquipmentName        string        `json:"equipment_name,omitempty"`
	DoctorID             uuid.UUID     `json:"doctor_id"`
	TechnicianID         uuid.UUID     `json:"technician_id"`
	RequestedAt          time.Time     `json:"requested_at"`
	MessageForDoctor     string        `json:"message_for_doctor,omitempty"`
	MessageForTechnician string        `json:"message_for_technician,omitempty"`
	Status               RequestStatus `json:"status"`
	LaboratoryID         uuid.UUID     `json:"laboratory_id"`
}

type TestResult struct {
	ID           uuid.UUID              `json:"id"`
	RequestID    uuid.UUID              `json:"request_id"`
	Details      string                 `json:"details"`
	Data         map[string]interface{} `json:"data,omitempty"`
	FilePath     string                 `json:"file_path,omitempty"`
	TechnicianID uuid.UUID              `json:"technician_id"`
	DoctorID     uuid.UUID              `json:"doctor_id"`
	UploadedAt   time.Time              `json:"uploaded_at"`
	Seen         bool                   `json:"seen"`
	LaboratoryID uuid.UUID              `json:"laboratory_id"`
}

// DoctorResultView joins a result with its originating request for the
// doctor-facing listing.
type DoctorResultView struct {
	ID          uuid.UUID              `json:"id"`
	RequestID   uuid.UUID              `json:"request_id"`
	PatientName string                 `json:"patient_name"`
	TestType    string                 `json:"test_type"`
	Details     string                 `json:"details"`
	Data        map[string]interface{} `json:"data,omitempty"`
	FilePath    string                 `json:"file_path,omitempty"`
	UploadedAt  time.Time              `json:"uploaded_at"`
	Seen        bool                   `json:"seen"`
}

// AdminResultView is the tenant-wide result listing for administrators.
type AdminResultView struct {
	ID         uuid.UUID `json:"id"`
	RequestID  uuid.UUID `json:"request_id"`
	UploadedBy string    `json:"uploaded_by"`
	Details    string    `json:"details"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type RequestMessages struct {
	MessageForDoctor     string `json:"message_for_doctor,omitempty"`
	MessageForTechnician string `json:"message_for_technician,omitempty"`
}

// API request/response payloads

type LoginRequest struct {
	FullName string `json:"full_name"`
	Password string `json:"password"`
	LabName  string `json:"lab_name,omitempty"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        Role   `json:"role"`
	User        User   `json:"user"`
}

type RegisterRequest struct {
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Password     string    `json:"password"`
	Role         string    `json:"role"`
	LaboratoryID uuid.UUID `json:"laboratory_id"`
}

type SubmitTestRequest struct {
	PatientName          string     `json:"patient_name"`
	PatientDOB           *time.Time `json:"patient_dob,omitempty"`
	PatientGender        string     `json:"patient_gender,omitempty"`
	TestType             string     `json:"test_type"`
	EquipmentName        string     `json:"equipment_name"`
	TechnicianID         uuid.UUID  `json:"technician_id"`
	MessageForTechnician string     `json:"message_for_technician,omitempty"`
}

type AddMessageRequest struct {
	Message string `json:"message"`
}

type ShareResultRequest struct {
	ResultID       uuid.UUID `json:"result_id"`
	RecipientEmail string    `json:"recipient_email"`
	Message        string    `json:"message,omitempty"`
}

type CreateLaboratoryRequest struct {
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

type CreateEquipmentRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

type UpdateEquipmentRequest struct {
	Name         *string    `json:"name,omitempty"`
	Type         *string    `json:"type,omitempty"`
	IsAvailable  *bool      `json:"is_available,omitempty"`
	LastServiced *time.Time `json:"last_serviced,omitempty"`
	Description  *string    `json:"description,omitempty"`
}

type UpdateUserRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // request.submitted, result.uploaded, result.shared
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
