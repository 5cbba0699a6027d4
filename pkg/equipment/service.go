package equipment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/policy"
)

var ErrEquipmentExists = errors.New("equipment name already exists in this laboratory")

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create registers new equipment in the technician's own laboratory. Only
// technicians add equipment; the laboratory is always stamped from the
// actor, never taken from the payload.
func (s *Service) Create(ctx context.Context, actor models.User, req models.CreateEquipmentRequest) (models.Equipment, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleLabTechnician)); err != nil {
		return models.Equipment{}, err
	}
	if req.Name == "" {
		return models.Equipment{}, fmt.Errorf("equipment name required")
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return models.Equipment{}, err
	}

	if _, err := s.repo.GetByName(ctx, req.Name, scope); err == nil {
		return models.Equipment{}, ErrEquipmentExists
	} else if !errors.Is(err, ErrEquipmentNotFound) {
		return models.Equipment{}, err
	}

	return s.repo.Create(ctx, CreateEquipmentInput{
		Name:         req.Name,
		Type:         req.Type,
		Description:  req.Description,
		LaboratoryID: scope,
		AddedByID:    actor.ID,
	})
}

func (s *Service) List(ctx context.Context, actor models.User) ([]models.Equipment, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor, models.RoleLabTechnician, models.RoleAdmin)); err != nil {
		return nil, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, scope)
}

func (s *Service) Get(ctx context.Context, actor models.User, id uuid.UUID) (models.Equipment, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor, models.RoleLabTechnician, models.RoleAdmin)); err != nil {
		return models.Equipment{}, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return models.Equipment{}, err
	}
	return s.repo.GetByID(ctx, id, scope)
}

func (s *Service) Update(ctx context.Context, actor models.User, id uuid.UUID, req models.UpdateEquipmentRequest) (models.Equipment, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin, models.RoleLabTechnician)); err != nil {
		return models.Equipment{}, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return models.Equipment{}, err
	}
	return s.repo.Update(ctx, id, scope, req)
}

func (s *Service) Delete(ctx context.Context, actor models.User, id uuid.UUID) error {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin, models.RoleLabTechnician)); err != nil {
		return err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, id, scope)
}
