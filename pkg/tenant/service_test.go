package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/policy"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeCounter struct {
	counts map[uuid.UUID]int64
}

func (c fakeCounter) CountByLaboratory(ctx context.Context, labID uuid.UUID) (int64, error) {
	return c.counts[labID], nil
}

func newTestService(t *testing.T, counters ...ResourceCounter) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	repo := NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewService(repo, counters...)
}

func superAdmin() models.User {
	return models.User{ID: uuid.New(), Role: models.RoleSuperAdmin}
}

func TestCreateAndListLaboratories(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	actor := superAdmin()

	lab, err := service.Create(ctx, actor, models.CreateLaboratoryRequest{Name: "Mercy General"})
	if err != nil {
		t.Fatalf("failed to create laboratory: %v", err)
	}

	if _, err := service.Create(ctx, actor, models.CreateLaboratoryRequest{Name: "Mercy General"}); !errors.Is(err, ErrLaboratoryExists) {
		t.Fatalf("expected duplicate name rejected, got %v", err)
	}

	labs, err := service.List(ctx, actor)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(labs) != 1 || labs[0].ID != lab.ID {
		t.Fatalf("unexpected listing %+v", labs)
	}
}

func TestOnlySuperAdminManagesLaboratories(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	labID := uuid.New()
	admin := models.User{ID: uuid.New(), Role: models.RoleAdmin, LaboratoryID: &labID}

	if _, err := service.Create(ctx, admin, models.CreateLaboratoryRequest{Name: "Mercy General"}); !errors.Is(err, policy.ErrInsufficientRole) {
		t.Fatalf("expected role denial, got %v", err)
	}
	if _, err := service.List(ctx, admin); !errors.Is(err, policy.ErrInsufficientRole) {
		t.Fatalf("expected role denial, got %v", err)
	}
	if err := service.Delete(ctx, admin, labID); !errors.Is(err, policy.ErrInsufficientRole) {
		t.Fatalf("expected role denial, got %v", err)
	}
}

func TestDeleteRejectsNonEmptyLaboratory(t *testing.T) {
	counts := fakeCounter{counts: map[uuid.UUID]int64{}}
	service := newTestService(t, counts)
	ctx := context.Background()
	actor := superAdmin()

	lab, err := service.Create(ctx, actor, models.CreateLaboratoryRequest{Name: "Mercy General"})
	if err != nil {
		t.Fatalf("failed to create laboratory: %v", err)
	}

	counts.counts[lab.ID] = 3
	if err := service.Delete(ctx, actor, lab.ID); !errors.Is(err, ErrLaboratoryNotEmpty) {
		t.Fatalf("expected not-empty rejection, got %v", err)
	}
	if _, err := service.Get(ctx, actor, lab.ID); err != nil {
		t.Fatalf("laboratory must survive rejected delete: %v", err)
	}

	counts.counts[lab.ID] = 0
	if err := service.Delete(ctx, actor, lab.ID); err != nil {
		t.Fatalf("failed to delete empty laboratory: %v", err)
	}
	if _, err := service.Get(ctx, actor, lab.ID); !errors.Is(err, ErrLaboratoryNotFound) {
		t.Fatalf("expected laboratory gone, got %v", err)
	}
}

func TestDeleteUnknownLaboratory(t *testing.T) {
	service := newTestService(t)
	if err := service.Delete(context.Background(), superAdmin(), uuid.New()); !errors.Is(err, ErrLaboratoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
