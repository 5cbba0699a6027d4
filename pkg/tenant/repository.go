package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
	"gorm.io/gorm"
)

var ErrLaboratoryNotFound = errors.New("laboratory not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type LaboratoryModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"uniqueIndex"`
	Address      string
	ContactEmail string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (LaboratoryModel) TableName() string { return "laboratories" }

func (m LaboratoryModel) toDomain() models.Laboratory {
	return models.Laboratory{
		ID:           m.ID,
		Name:         m.Name,
		Address:      m.Address,
		ContactEmail: m.ContactEmail,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&LaboratoryModel{})
}

func (r *Repository) Create(ctx context.Context, req models.CreateLaboratoryRequest) (models.Laboratory, error) {
	now := time.Now().UTC()
	lab := LaboratoryModel{
		ID:           uuid.New(),
		Name:         req.Name,
		Address:      req.Address,
		ContactEmail: req.ContactEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(&lab).Error; err != nil {
		return models.Laboratory{}, err
	}
	return lab.toDomain(), nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (models.Laboratory, error) {
	var lab LaboratoryModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&lab).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Laboratory{}, ErrLaboratoryNotFound
	}
	if err != nil {
		return models.Laboratory{}, err
	}
	return lab.toDomain(), nil
}

func (r *Repository) GetByName(ctx context.Context, name string) (models.Laboratory, error) {
	var lab LaboratoryModel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&lab).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Laboratory{}, ErrLaboratoryNotFound
	}
	if err != nil {
		return models.Laboratory{}, err
	}
	return lab.toDomain(), nil
}

func (r *Repository) List(ctx context.Context) ([]models.Laboratory, error) {
	var rows []LaboratoryModel
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	labs := make([]models.Laboratory, 0, len(rows))
	for _, row := range rows {
		labs = append(labs, row.toDomain())
	}
	return labs, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&LaboratoryModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLaboratoryNotFound
	}
	return nil
}
