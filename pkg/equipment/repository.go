package equipment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
	"gorm.io/gorm"
)

var ErrEquipmentNotFound = errors.New("equipment not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type EquipmentModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"uniqueIndex:idx_equipment_lab_name"`
	Type         string
	IsAvailable  bool
	LastServiced time.Time
	Description  string
	LaboratoryID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_equipment_lab_name;index"`
	AddedByID    uuid.UUID `gorm:"type:uuid"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (EquipmentModel) TableName() string { return "equipment" }

func (m EquipmentModel) toDomain() models.Equipment {
	return models.Equipment{
		ID:           m.ID,
		Name:         m.Name,
		Type:         m.Type,
		IsAvailable:  m.IsAvailable,
		LastServiced: m.LastServiced,
		Description:  m.Description,
		LaboratoryID: m.LaboratoryID,
		AddedByID:    m.AddedByID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&EquipmentModel{})
}

type CreateEquipmentInput struct {
	Name         string
	Type         string
	Description  string
	LaboratoryID uuid.UUID
	AddedByID    uuid.UUID
}

func (r *Repository) Create(ctx context.Context, input CreateEquipmentInput) (models.Equipment, error) {
	now := time.Now().UTC()
	eq := EquipmentModel{
		ID:           uuid.New(),
		Name:         input.Name,
		Type:         input.Type,
		IsAvailable:  true,
		LastServiced: now,
		Description:  input.Description,
		LaboratoryID: input.LaboratoryID,
		AddedByID:    input.AddedByID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(&eq).Error; err != nil {
		return models.Equipment{}, err
	}
	return eq.toDomain(), nil
}

func (r *Repository) GetByID(ctx context.Context, id, labID uuid.UUID) (models.Equipment, error) {
	var eq EquipmentModel
	err := r.db.WithContext(ctx).Where("id = ? AND laboratory_id = ?", id, labID).First(&eq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Equipment{}, ErrEquipmentNotFound
	}
	if err != nil {
		return models.Equipment{}, err
	}
	return eq.toDomain(), nil
}

func (r *Repository) GetByName(ctx context.Context, name string, labID uuid.UUID) (models.Equipment, error) {
	var eq EquipmentModel
	err := r.db.WithContext(ctx).Where("name = ? AND laboratory_id = ?", name, labID).First(&eq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Equipment{}, ErrEquipmentNotFound
	}
	if err != nil {
		return models.Equipment{}, err
	}
	return eq.toDomain(), nil
}

func (r *Repository) List(ctx context.Context, labID uuid.UUID) ([]models.Equipment, error) {
	var rows []EquipmentModel
	if err := r.db.WithContext(ctx).Where("laboratory_id = ?", labID).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]models.Equipment, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (r *Repository) CountByLaboratory(ctx context.Context, labID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&EquipmentModel{}).
		Where("laboratory_id = ?", labID).Count(&count).Error
	return count, err
}

func (r *Repository) Update(ctx context.Context, id, labID uuid.UUID, req models.UpdateEquipmentRequest) (models.Equipment, error) {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.IsAvailable != nil {
		updates["is_available"] = *req.IsAvailable
	}
	if req.LastServiced != nil {
		updates["last_serviced"] = *req.LastServiced
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}

	result := r.db.WithContext(ctx).Model(&EquipmentModel{}).
		Where("id = ? AND laboratory_id = ?", id, labID).
		Updates(updates)
	if result.Error != nil {
		return models.Equipment{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Equipment{}, ErrEquipmentNotFound
	}
	return r.GetByID(ctx, id, labID)
}

func (r *Repository) Delete(ctx context.Context, id, labID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND laboratory_id = ?", id, labID).
		Delete(&EquipmentModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEquipmentNotFound
	}
	return nil
}
