package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/policy"
)

var (
	ErrLaboratoryExists   = errors.New("laboratory name already exists")
	ErrLaboratoryNotEmpty = errors.New("laboratory still has dependent records")
)

// ResourceCounter reports how many records of one entity type belong to a
// laboratory. Each domain repository implements it so the registry can
// refuse to delete a laboratory that still owns data.
type ResourceCounter interface {
	CountByLaboratory(ctx context.Context, labID uuid.UUID) (int64, error)
}

type Service struct {
	repo     *Repository
	counters []ResourceCounter
}

func NewService(repo *Repository, counters ...ResourceCounter) *Service {
	return &Service{repo: repo, counters: counters}
}

func (s *Service) Create(ctx context.Context, actor models.User, req models.CreateLaboratoryRequest) (models.Laboratory, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleSuperAdmin)); err != nil {
		return models.Laboratory{}, err
	}
	if req.Name == "" {
		return models.Laboratory{}, fmt.Errorf("laboratory name required")
	}

	if _, err := s.repo.GetByName(ctx, req.Name); err == nil {
		return models.Laboratory{}, ErrLaboratoryExists
	} else if !errors.Is(err, ErrLaboratoryNotFound) {
		return models.Laboratory{}, err
	}

	lab, err := s.repo.Create(ctx, req)
	if err != nil {
		return models.Laboratory{}, err
	}
	logger.Log.WithFields(map[string]interface{}{
		"laboratory_id": lab.ID,
		"name":          lab.Name,
	}).Info("laboratory created")
	return lab, nil
}

func (s *Service) List(ctx context.Context, actor models.User) ([]models.Laboratory, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleSuperAdmin)); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, actor models.User, id uuid.UUID) (models.Laboratory, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleSuperAdmin)); err != nil {
		return models.Laboratory{}, err
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a laboratory. A laboratory that still owns users,
// equipment, patients, requests, or results is rejected with
// ErrLaboratoryNotEmpty rather than cascading.
func (s *Service) Delete(ctx context.Context, actor models.User, id uuid.UUID) error {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleSuperAdmin)); err != nil {
		return err
	}

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	for _, counter := range s.counters {
		count, err := counter.CountByLaboratory(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrLaboratoryNotEmpty
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Log.WithField("laboratory_id", id).Info("laboratory deleted")
	return nil
}

// Resolve looks a laboratory up by name for login-time tenant checks.
func (s *Service) Resolve(ctx context.Context, name string) (models.Laboratory, error) {
	return s.repo.GetByName(ctx, name)
}
