package policy

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
)

func labUser(role models.Role, labID uuid.UUID) models.User {
	return models.User{ID: uuid.New(), Role: role, LaboratoryID: &labID}
}

func TestAuthorizeRoleMismatch(t *testing.T) {
	labID := uuid.New()
	doctor := labUser(models.RoleDoctor, labID)

	err := Authorize(doctor, RequireRole(models.RoleLabTechnician))
	if !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole, got %v", err)
	}

	if err := Authorize(doctor, RequireRole(models.RoleDoctor, models.RoleAdmin)); err != nil {
		t.Fatalf("expected allow for matching role set, got %v", err)
	}
}

func TestAuthorizeDeniesCrossTenantForEveryRole(t *testing.T) {
	labA := uuid.New()
	labB := uuid.New()

	for _, role := range []models.Role{models.RoleDoctor, models.RoleLabTechnician, models.RoleAdmin} {
		actor := labUser(role, labA)
		err := Authorize(actor, RequireRole(role).InTenant(labB))
		if !errors.Is(err, ErrCrossTenantAccess) {
			t.Fatalf("role %s: expected ErrCrossTenantAccess, got %v", role, err)
		}
	}
}

func TestAuthorizeSuperAdminExemptFromTenantCheck(t *testing.T) {
	super := models.User{ID: uuid.New(), Role: models.RoleSuperAdmin}
	if err := Authorize(super, RequireRole(models.RoleSuperAdmin).InTenant(uuid.New())); err != nil {
		t.Fatalf("expected SUPER_ADMIN to bypass tenant check, got %v", err)
	}
}

func TestAuthorizeOwnership(t *testing.T) {
	labID := uuid.New()
	doctor := labUser(models.RoleDoctor, labID)
	other := uuid.New()

	err := Authorize(doctor, RequireRole(models.RoleDoctor).InTenant(labID).OwnedBy(other))
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if err := Authorize(doctor, RequireRole(models.RoleDoctor).InTenant(labID).OwnedBy(doctor.ID)); err != nil {
		t.Fatalf("expected allow for owner, got %v", err)
	}
}

func TestAuthorizeNoLaboratory(t *testing.T) {
	orphan := models.User{ID: uuid.New(), Role: models.RoleDoctor}
	err := Authorize(orphan, RequireRole(models.RoleDoctor).InTenant(uuid.New()))
	if !errors.Is(err, ErrCrossTenantAccess) {
		t.Fatalf("expected ErrCrossTenantAccess for actor without laboratory, got %v", err)
	}
}

func TestTenantScope(t *testing.T) {
	labID := uuid.New()
	doctor := labUser(models.RoleDoctor, labID)

	scope, err := TenantScope(doctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scope != labID {
		t.Fatalf("expected scope %s, got %s", labID, scope)
	}

	super := models.User{ID: uuid.New(), Role: models.RoleSuperAdmin}
	if _, err := TenantScope(super); !errors.Is(err, ErrNoTenant) {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}
}
