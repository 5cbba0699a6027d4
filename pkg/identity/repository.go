package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type UserModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	FullName     string    `gorm:"index"`
	Email        string    `gorm:"uniqueIndex"`
	PasswordHash string
	Role         string     `gorm:"index"`
	LaboratoryID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

func (m UserModel) toDomain() models.User {
	return models.User{
		ID:           m.ID,
		FullName:     m.FullName,
		Email:        m.Email,
		Role:         models.Role(m.Role),
		LaboratoryID: m.LaboratoryID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&UserModel{})
}

type CreateUserInput struct {
	FullName     string
	Email        string
	PasswordHash string
	Role         models.Role
	LaboratoryID *uuid.UUID
}

func (r *Repository) CreateUser(ctx context.Context, input CreateUserInput) (models.User, error) {
	now := time.Now().UTC()
	user := UserModel{
		ID:           uuid.New(),
		FullName:     input.FullName,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Role:         string(input.Role),
		LaboratoryID: input.LaboratoryID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return models.User{}, err
	}
	return user.toDomain(), nil
}

func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user UserModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user.toDomain(), nil
}

func (r *Repository) GetUserByIDInLab(ctx context.Context, id, labID uuid.UUID) (models.User, error) {
	var user UserModel
	err := r.db.WithContext(ctx).Where("id = ? AND laboratory_id = ?", id, labID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user.toDomain(), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user UserModel
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user.toDomain(), nil
}

// GetUserByIdentifier resolves a login identifier, matching either the full
// name or the email address.
func (r *Repository) GetUserByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	var user UserModel
	err := r.db.WithContext(ctx).
		Where("email = ? OR full_name = ?", identifier, identifier).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user.toDomain(), nil
}

func (r *Repository) GetPasswordHash(ctx context.Context, id uuid.UUID) (string, error) {
	var user UserModel
	err := r.db.WithContext(ctx).Select("password_hash").Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return user.PasswordHash, nil
}

func (r *Repository) ListUsers(ctx context.Context, labID uuid.UUID, role *models.Role) ([]models.User, error) {
	query := r.db.WithContext(ctx).Where("laboratory_id = ?", labID)
	if role != nil {
		query = query.Where("role = ?", string(*role))
	}

	var rows []UserModel
	if err := query.Order("full_name").Find(&rows).Error; err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}

func (r *Repository) CountUsers(ctx context.Context, labID uuid.UUID, role *models.Role) (int64, error) {
	query := r.db.WithContext(ctx).Model(&UserModel{}).Where("laboratory_id = ?", labID)
	if role != nil {
		query = query.Where("role = ?", string(*role))
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// CountByLaboratory reports how many users belong to a laboratory. Used by
// the tenant registry to reject deleting a non-empty laboratory.
func (r *Repository) CountByLaboratory(ctx context.Context, labID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserModel{}).
		Where("laboratory_id = ?", labID).Count(&count).Error
	return count, err
}

func (r *Repository) AdminExists(ctx context.Context, labID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserModel{}).
		Where("role = ? AND laboratory_id = ?", string(models.RoleAdmin), labID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) SuperAdminExists(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserModel{}).
		Where("role = ?", string(models.RoleSuperAdmin)).
		Count(&count).Error
	return count > 0, err
}

type UpdateUserInput struct {
	FullName     *string
	Email        *string
	PasswordHash *string
}

func (r *Repository) UpdateUser(ctx context.Context, id, labID uuid.UUID, input UpdateUserInput) (models.User, error) {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if input.FullName != nil {
		updates["full_name"] = *input.FullName
	}
	if input.Email != nil {
		updates["email"] = *input.Email
	}
	if input.PasswordHash != nil {
		updates["password_hash"] = *input.PasswordHash
	}

	result := r.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND laboratory_id = ?", id, labID).
		Updates(updates)
	if result.Error != nil {
		return models.User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.User{}, ErrUserNotFound
	}
	return r.GetUserByIDInLab(ctx, id, labID)
}

func (r *Repository) DeleteUser(ctx context.Context, id, labID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND laboratory_id = ?", id, labID).
		Delete(&UserModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
