package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/catalog"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/delivery"
	"github.com/labworks/platform/pkg/equipment"
	"github.com/labworks/platform/pkg/identity"
	"github.com/labworks/platform/pkg/policy"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type recordingMailer struct {
	sent []delivery.EmailMessage
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg delivery.EmailMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	p.events = append(p.events, eventType)
	return nil
}

type fixture struct {
	service   *Service
	repo      *Repository
	equipment *equipment.Repository
	users     *identity.Repository
	mailer    *recordingMailer
	events    *recordingPublisher

	labA uuid.UUID
	labB uuid.UUID

	doctorA models.User
	techA   models.User
	adminA  models.User
	techB   models.User

	analyzerA models.Equipment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	repo := NewRepository(db)
	equipmentRepo := equipment.NewRepository(db)
	userRepo := identity.NewRepository(db)
	for _, migrate := range []func() error{repo.AutoMigrate, equipmentRepo.AutoMigrate, userRepo.AutoMigrate} {
		if err := migrate(); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}
	}

	f := &fixture{
		repo:      repo,
		equipment: equipmentRepo,
		users:     userRepo,
		mailer:    &recordingMailer{},
		events:    &recordingPublisher{},
		labA:      uuid.New(),
		labB:      uuid.New(),
	}

	files, err := delivery.NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	f.service = NewService(repo, equipmentRepo, userRepo, files, f.mailer, f.events, catalog.DefaultCatalog())

	ctx := context.Background()
	f.doctorA = f.createUser(t, ctx, "Dr Amara Okafor", "amara@labworks.test", models.RoleDoctor, f.labA)
	f.techA = f.createUser(t, ctx, "Tunde Bello", "tunde@labworks.test", models.RoleLabTechnician, f.labA)
	f.adminA = f.createUser(t, ctx, "Ngozi Eze", "ngozi@labworks.test", models.RoleAdmin, f.labA)
	f.techB = f.createUser(t, ctx, "Kemi Ade", "kemi@labworks.test", models.RoleLabTechnician, f.labB)

	f.analyzerA, err = equipmentRepo.Create(ctx, equipment.CreateEquipmentInput{
		Name:         "Hematology Analyzer",
		Type:         "hematology-analyzer",
		LaboratoryID: f.labA,
		AddedByID:    f.techA.ID,
	})
	if err != nil {
		t.Fatalf("failed to create equipment: %v", err)
	}

	return f
}

func (f *fixture) createUser(t *testing.T, ctx context.Context, name, email string, role models.Role, labID uuid.UUID) models.User {
	t.Helper()
	lab := labID
	user, err := f.users.CreateUser(ctx, identity.CreateUserInput{
		FullName:     name,
		Email:        email,
		PasswordHash: "x",
		Role:         role,
		LaboratoryID: &lab,
	})
	if err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

func (f *fixture) submit(t *testing.T, ctx context.Context) models.TestRequest {
	t.Helper()
	request, err := f.service.SubmitRequest(ctx, f.doctorA, models.SubmitTestRequest{
		PatientName:          "Chidi Obi",
		TestType:             "cbc",
		EquipmentName:        "Hematology Analyzer",
		TechnicianID:         f.techA.ID,
		MessageForTechnician: "fasting sample",
	})
	if err != nil {
		t.Fatalf("failed to submit request: %v", err)
	}
	return request
}

func TestSubmitRequestCreatesPatientAndRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	request := f.submit(t, ctx)
	if request.Status != models.StatusPending {
		t.Fatalf("expected pending status, got %s", request.Status)
	}
	if request.TestType != "Complete Blood Count" {
		t.Fatalf("expected normalized test type, got %q", request.TestType)
	}
	if request.EquipmentID != f.analyzerA.ID {
		t.Fatal("expected request bound to resolved equipment")
	}

	count, err := f.repo.CountPatients(ctx, f.labA)
	if err != nil {
		t.Fatalf("failed to count patients: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 patient, got %d", count)
	}

	// Same patient name reuses the record instead of duplicating it.
	f.submit(t, ctx)
	count, _ = f.repo.CountPatients(ctx, f.labA)
	if count != 1 {
		t.Fatalf("expected patient reuse, got %d patients", count)
	}

	if len(f.events.events) != 2 || f.events.events[0] != "request.submitted" {
		t.Fatalf("unexpected events %v", f.events.events)
	}
}

func TestSubmitRequestUnknownEquipmentPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.SubmitRequest(ctx, f.doctorA, models.SubmitTestRequest{
		PatientName:   "Chidi Obi",
		TestType:      "cbc",
		EquipmentName: "Nonexistent Analyzer",
		TechnicianID:  f.techA.ID,
	})
	if !errors.Is(err, equipment.ErrEquipmentNotFound) {
		t.Fatalf("expected equipment not found, got %v", err)
	}

	count, _ := f.repo.CountPatients(ctx, f.labA)
	if count != 0 {
		t.Fatalf("expected no patients persisted, got %d", count)
	}
	requests, _ := f.service.MyRequests(ctx, f.doctorA)
	if len(requests) != 0 {
		t.Fatalf("expected no requests persisted, got %d", len(requests))
	}
}

func TestSubmitRequestRejectsNonTechnicianAssignee(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SubmitRequest(context.Background(), f.doctorA, models.SubmitTestRequest{
		PatientName:   "Chidi Obi",
		TestType:      "cbc",
		EquipmentName: "Hematology Analyzer",
		TechnicianID:  f.adminA.ID,
	})
	if !errors.Is(err, ErrInvalidTechnician) {
		t.Fatalf("expected invalid technician, got %v", err)
	}
}

func TestSubmitRequestRequiresDoctorRole(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SubmitRequest(context.Background(), f.techA, models.SubmitTestRequest{
		PatientName:   "Chidi Obi",
		TestType:      "cbc",
		EquipmentName: "Hematology Analyzer",
		TechnicianID:  f.techA.ID,
	})
	if !errors.Is(err, policy.ErrInsufficientRole) {
		t.Fatalf("expected insufficient role, got %v", err)
	}
}

func TestPendingRequestsTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, ctx)

	pendingA, err := f.service.PendingRequests(ctx, f.techA)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pendingA) != 1 {
		t.Fatalf("expected 1 pending request for lab A technician, got %d", len(pendingA))
	}

	pendingB, err := f.service.PendingRequests(ctx, f.techB)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pendingB) != 0 {
		t.Fatalf("lab B technician must not see lab A requests, got %d", len(pendingB))
	}
}

func TestUploadResultCompletesRequestOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	result, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{
		RequestID: request.ID,
		Details:   "WBC within range",
		Data:      map[string]interface{}{"wbc": 6.1},
	})
	if err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}
	if result.DoctorID != f.doctorA.ID {
		t.Fatal("expected result routed to requesting doctor")
	}

	updated, err := f.repo.GetRequest(ctx, request.ID, f.labA)
	if err != nil {
		t.Fatalf("failed to fetch request: %v", err)
	}
	if updated.Status != models.StatusCompleted {
		t.Fatalf("expected completed status, got %s", updated.Status)
	}

	_, err = f.service.UploadResult(ctx, f.techA, UploadResultInput{
		RequestID: request.ID,
		Details:   "second attempt",
	})
	if !errors.Is(err, ErrDuplicateResult) {
		t.Fatalf("expected duplicate result, got %v", err)
	}
	updated, _ = f.repo.GetRequest(ctx, request.ID, f.labA)
	if updated.Status != models.StatusCompleted {
		t.Fatalf("duplicate upload must not change status, got %s", updated.Status)
	}
}

func TestUploadResultStoresAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	result, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{
		RequestID: request.ID,
		Details:   "see attached report",
		FileName:  "cbc report.pdf",
		File:      strings.NewReader("report-bytes"),
	})
	if err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}
	if result.FilePath == "" {
		t.Fatal("expected stored file reference")
	}
}

func TestUploadResultOnlyForAssignedTechnician(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	otherTech := f.createUser(t, ctx, "Femi Ola", "femi@labworks.test", models.RoleLabTechnician, f.labA)
	_, err := f.service.UploadResult(ctx, otherTech, UploadResultInput{
		RequestID: request.ID,
		Details:   "not my assignment",
	})
	if !errors.Is(err, policy.ErrNotOwner) {
		t.Fatalf("expected ownership denial, got %v", err)
	}
}

func TestAddMessageMovesPendingToSeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	updated, err := f.service.AddMessage(ctx, f.techA, request.ID, "sample received")
	if err != nil {
		t.Fatalf("failed to add message: %v", err)
	}
	if updated.Status != models.StatusSeen {
		t.Fatalf("expected seen status, got %s", updated.Status)
	}
	if updated.MessageForDoctor != "sample received" {
		t.Fatalf("unexpected message %q", updated.MessageForDoctor)
	}

	// A doctor note targets the technician and leaves the status alone.
	updated, err = f.service.AddMessage(ctx, f.doctorA, request.ID, "patient is fasting")
	if err != nil {
		t.Fatalf("failed to add doctor message: %v", err)
	}
	if updated.Status != models.StatusSeen {
		t.Fatalf("doctor message must not change status, got %s", updated.Status)
	}
	if updated.MessageForTechnician != "patient is fasting" {
		t.Fatalf("unexpected message %q", updated.MessageForTechnician)
	}
}

func TestAddMessageRejectedOnCompletedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	if _, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{RequestID: request.ID, Details: "done"}); err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}

	_, err := f.service.AddMessage(ctx, f.techA, request.ID, "too late")
	if !errors.Is(err, ErrRequestCompleted) {
		t.Fatalf("expected request completed, got %v", err)
	}
}

func TestMyResultsAndMarkSeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	result, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{RequestID: request.ID, Details: "all clear"})
	if err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}

	views, err := f.service.MyResults(ctx, f.doctorA)
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 result, got %d", len(views))
	}
	if views[0].PatientName != "Chidi Obi" || views[0].TestType != "Complete Blood Count" {
		t.Fatalf("expected request details on view, got %+v", views[0])
	}
	if views[0].Seen {
		t.Fatal("expected fresh result unseen")
	}

	if err := f.service.MarkResultSeen(ctx, f.doctorA, result.ID); err != nil {
		t.Fatalf("failed to mark seen: %v", err)
	}
	views, _ = f.service.MyResults(ctx, f.doctorA)
	if !views[0].Seen {
		t.Fatal("expected result marked seen")
	}
}

func TestShareResultSendsEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	result, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{RequestID: request.ID, Details: "all clear"})
	if err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}

	err = f.service.ShareResult(ctx, f.doctorA, models.ShareResultRequest{
		ResultID:       result.ID,
		RecipientEmail: "specialist@clinic.test",
	})
	if err != nil {
		t.Fatalf("failed to share result: %v", err)
	}
	if len(f.mailer.sent) != 1 || f.mailer.sent[0].To != "specialist@clinic.test" {
		t.Fatalf("unexpected outbound mail %+v", f.mailer.sent)
	}
}

func TestShareResultNotOwnedReadsAsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	result, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{RequestID: request.ID, Details: "all clear"})
	if err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}

	otherDoctor := f.createUser(t, ctx, "Dr Bode Ade", "bode@labworks.test", models.RoleDoctor, f.labA)
	err = f.service.ShareResult(ctx, otherDoctor, models.ShareResultRequest{
		ResultID:       result.ID,
		RecipientEmail: "specialist@clinic.test",
	})
	if !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestShareResultMailFailureIsCollaboratorError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	result, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{RequestID: request.ID, Details: "all clear"})
	if err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}

	f.mailer.err = errors.New("smtp down")
	err = f.service.ShareResult(ctx, f.doctorA, models.ShareResultRequest{
		ResultID:       result.ID,
		RecipientEmail: "specialist@clinic.test",
	})
	if !errors.Is(err, ErrCollaborator) {
		t.Fatalf("expected collaborator failure, got %v", err)
	}
}

func TestAdminListingsAreTenantWide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := f.submit(t, ctx)

	if _, err := f.service.UploadResult(ctx, f.techA, UploadResultInput{RequestID: request.ID, Details: "done"}); err != nil {
		t.Fatalf("failed to upload result: %v", err)
	}

	requests, err := f.service.ListRequests(ctx, f.adminA)
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}

	results, err := f.service.ListResults(ctx, f.adminA)
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].UploadedBy != "Tunde Bello" {
		t.Fatalf("expected technician name on admin view, got %q", results[0].UploadedBy)
	}

	if _, err := f.service.ListRequests(ctx, f.doctorA); !errors.Is(err, policy.ErrInsufficientRole) {
		t.Fatalf("expected role denial for doctor, got %v", err)
	}
}
