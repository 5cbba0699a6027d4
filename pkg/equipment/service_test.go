package equipment

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

func newTestService(t *testing.T) *Service {
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
	return NewService(repo)
}

func userInLab(role models.Role, labID uuid.UUID) models.User {
	return models.User{ID: uuid.New(), Role: role, LaboratoryID: &labID}
}

func TestCreateEquipment(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	labID := uuid.New()
	tech := userInLab(models.RoleLabTechnician, labID)

	eq, err := service.Create(ctx, tech, models.CreateEquipmentRequest{
		Name: "Hematology Analyzer",
		Type: "hematology-analyzer",
	})
	if err != nil {
		t.Fatalf("failed to create equipment: %v", err)
	}
	if eq.LaboratoryID != labID {
		t.Fatal("expected laboratory stamped from actor")
	}
	if eq.AddedByID != tech.ID {
		t.Fatal("expected creator recorded")
	}
	if !eq.IsAvailable {
		t.Fatal("expected new equipment available")
	}

	if _, err := service.Create(ctx, tech, models.CreateEquipmentRequest{Name: "Hematology Analyzer"}); !errors.Is(err, ErrEquipmentExists) {
		t.Fatalf("expected duplicate name rejected, got %v", err)
	}

	doctor := userInLab(models.RoleDoctor, labID)
	if _, err := service.Create(ctx, doctor, models.CreateEquipmentRequest{Name: "Other"}); !errors.Is(err, policy.ErrInsufficientRole) {
		t.Fatalf("expected role denial for doctor, got %v", err)
	}
}

func TestEquipmentNameUniquePerLaboratoryOnly(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	techA := userInLab(models.RoleLabTechnician, uuid.New())
	techB := userInLab(models.RoleLabTechnician, uuid.New())

	if _, err := service.Create(ctx, techA, models.CreateEquipmentRequest{Name: "Centrifuge"}); err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	// Same name in a different laboratory is fine.
	if _, err := service.Create(ctx, techB, models.CreateEquipmentRequest{Name: "Centrifuge"}); err != nil {
		t.Fatalf("failed to create in other lab: %v", err)
	}
}

func TestListAndGetAreTenantScoped(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	labA := uuid.New()
	techA := userInLab(models.RoleLabTechnician, labA)
	doctorB := userInLab(models.RoleDoctor, uuid.New())

	eq, err := service.Create(ctx, techA, models.CreateEquipmentRequest{Name: "Centrifuge"})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}

	items, err := service.List(ctx, doctorB)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("lab B must not see lab A equipment, got %d", len(items))
	}

	if _, err := service.Get(ctx, doctorB, eq.ID); !errors.Is(err, ErrEquipmentNotFound) {
		t.Fatalf("expected cross-tenant fetch as not found, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	labID := uuid.New()
	tech := userInLab(models.RoleLabTechnician, labID)
	admin := userInLab(models.RoleAdmin, labID)
	doctor := userInLab(models.RoleDoctor, labID)

	eq, err := service.Create(ctx, tech, models.CreateEquipmentRequest{Name: "Centrifuge"})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}

	unavailable := false
	updated, err := service.Update(ctx, admin, eq.ID, models.UpdateEquipmentRequest{IsAvailable: &unavailable})
	if err != nil {
		t.Fatalf("failed to update: %v", err)
	}
	if updated.IsAvailable {
		t.Fatal("expected equipment marked unavailable")
	}

	if _, err := service.Update(ctx, doctor, eq.ID, models.UpdateEquipmentRequest{}); !errors.Is(err, policy.ErrInsufficientRole) {
		t.Fatalf("expected role denial for doctor update, got %v", err)
	}

	if err := service.Delete(ctx, admin, eq.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := service.Get(ctx, admin, eq.ID); !errors.Is(err, ErrEquipmentNotFound) {
		t.Fatalf("expected equipment gone, got %v", err)
	}
}
