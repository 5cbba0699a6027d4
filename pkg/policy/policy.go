// Package policy is the single place that decides who may touch what.
// Every mutating service operation (and the reads that expose tenant data)
// builds a Requirement and calls Authorize; handlers never re-implement
// role or tenant checks inline.
package policy

import (
	"errors"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
)

var (
	ErrInsufficientRole  = errors.New("insufficient role")
	ErrCrossTenantAccess = errors.New("cross-tenant access denied")
	ErrNotOwner          = errors.New("caller does not own this entity")
	ErrNoTenant          = errors.New("caller has no laboratory")
)

// Requirement describes the checks an operation demands: an allowed role
// set, optionally the tenant the target entity lives in, and optionally the
// user that must own the target entity.
type Requirement struct {
	roles  []models.Role
	tenant *uuid.UUID
	owner  *uuid.UUID
}

// RequireRole starts a Requirement. An empty role list admits any
// authenticated caller.
func RequireRole(roles ...models.Role) Requirement {
	return Requirement{roles: roles}
}

// InTenant adds a tenant-match check against the target entity's
// laboratory. SUPER_ADMIN is exempt from this check.
func (r Requirement) InTenant(labID uuid.UUID) Requirement {
	r.tenant = &labID
	return r
}

// OwnedBy adds a self-service ownership check (doctor_id / technician_id
// style fields) on top of the tenant check.
func (r Requirement) OwnedBy(userID uuid.UUID) Requirement {
	r.owner = &userID
	return r
}

// Authorize evaluates the requirement against the caller. Roles are
// compared exactly; the tenant check compares laboratory ids and exempts
// SUPER_ADMIN only.
func Authorize(actor models.User, req Requirement) error {
	if len(req.roles) > 0 {
		matched := false
		for _, role := range req.roles {
			if actor.Role == role {
				matched = true
				break
			}
		}
		if !matched {
			return ErrInsufficientRole
		}
	}

	if req.tenant != nil && actor.Role != models.RoleSuperAdmin {
		if actor.LaboratoryID == nil || *actor.LaboratoryID != *req.tenant {
			return ErrCrossTenantAccess
		}
	}

	if req.owner != nil && actor.ID != *req.owner {
		return ErrNotOwner
	}

	return nil
}

// TenantScope returns the laboratory id every query made on behalf of the
// actor must filter by. SUPER_ADMIN has no scope and must not reach the
// tenant-filtered query paths.
func TenantScope(actor models.User) (uuid.UUID, error) {
	if actor.LaboratoryID == nil {
		return uuid.Nil, ErrNoTenant
	}
	return *actor.LaboratoryID, nil
}
