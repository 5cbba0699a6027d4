package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/policy"
	"github.com/labworks/platform/pkg/tenant"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAdminExists        = errors.New("laboratory already has an admin")
	ErrSuperAdminExists   = errors.New("a super admin already exists")
	ErrTenantRequired     = errors.New("laboratory name required")
	ErrTenantNotFound     = errors.New("laboratory not found")
	ErrTenantMismatch     = errors.New("user does not belong to this laboratory")
)

// LabDirectory resolves laboratories during registration and login. The
// tenant repository satisfies it.
type LabDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Laboratory, error)
	GetByName(ctx context.Context, name string) (models.Laboratory, error)
}

type Service struct {
	repo *Repository
	labs LabDirectory
}

func NewService(repo *Repository, labs LabDirectory) *Service {
	return &Service{repo: repo, labs: labs}
}

// Register admits a new DOCTOR, LAB_TECHNICIAN, or ADMIN account into a
// laboratory. SUPER_ADMIN accounts are provisioned out-of-band and never
// through this path.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		return models.User{}, fmt.Errorf("full name, email, and password required")
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		return models.User{}, fmt.Errorf("role %q: %w", req.Role, err)
	}
	if role == models.RoleSuperAdmin {
		return models.User{}, fmt.Errorf("super admin accounts cannot self-register")
	}
	if req.LaboratoryID == uuid.Nil {
		return models.User{}, fmt.Errorf("laboratory required for role %s", role)
	}

	lab, err := s.labs.GetByID(ctx, req.LaboratoryID)
	if err != nil {
		if errors.Is(err, tenant.ErrLaboratoryNotFound) {
			return models.User{}, ErrTenantNotFound
		}
		return models.User{}, err
	}

	if _, err := s.repo.GetUserByEmail(ctx, req.Email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return models.User{}, err
	}

	if role == models.RoleAdmin {
		exists, err := s.repo.AdminExists(ctx, lab.ID)
		if err != nil {
			return models.User{}, err
		}
		if exists {
			return models.User{}, ErrAdminExists
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	labID := lab.ID
	return s.repo.CreateUser(ctx, CreateUserInput{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		LaboratoryID: &labID,
	})
}

// CreateSuperAdmin provisions the single system-wide SUPER_ADMIN account.
func (s *Service) CreateSuperAdmin(ctx context.Context, fullName, email, password string) (models.User, error) {
	if fullName == "" || email == "" || password == "" {
		return models.User{}, fmt.Errorf("full name, email, and password required")
	}

	exists, err := s.repo.SuperAdminExists(ctx)
	if err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, ErrSuperAdminExists
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	return s.repo.CreateUser(ctx, CreateUserInput{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleSuperAdmin,
	})
}

// Authenticate checks credentials and the claimed laboratory. Every role
// except SUPER_ADMIN must name its laboratory and match the one on record.
func (s *Service) Authenticate(ctx context.Context, identifier, password, labName string) (models.User, error) {
	user, err := s.repo.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}

	hash, err := s.repo.GetPasswordHash(ctx, user.ID)
	if err != nil {
		return models.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}

	if user.Role == models.RoleSuperAdmin {
		return user, nil
	}

	if labName == "" {
		return models.User{}, ErrTenantRequired
	}
	lab, err := s.labs.GetByName(ctx, labName)
	if err != nil {
		if errors.Is(err, tenant.ErrLaboratoryNotFound) {
			return models.User{}, ErrTenantNotFound
		}
		return models.User{}, err
	}
	if user.LaboratoryID == nil || *user.LaboratoryID != lab.ID {
		return models.User{}, ErrTenantMismatch
	}

	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// GetUserInLab fetches a user visible to the actor's laboratory. A user in
// another laboratory comes back as not found.
func (s *Service) GetUserInLab(ctx context.Context, actor models.User, id uuid.UUID) (models.User, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin)); err != nil {
		return models.User{}, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return models.User{}, err
	}
	return s.repo.GetUserByIDInLab(ctx, id, scope)
}

func (s *Service) ListUsers(ctx context.Context, actor models.User, role *models.Role) ([]models.User, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin)); err != nil {
		return nil, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, scope, role)
}

// ListColleagues lists same-laboratory users of one role for request
// assignment pickers (a doctor choosing a technician).
func (s *Service) ListColleagues(ctx context.Context, actor models.User, role models.Role) ([]models.User, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleDoctor, models.RoleLabTechnician, models.RoleAdmin)); err != nil {
		return nil, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, scope, &role)
}

func (s *Service) CountUsers(ctx context.Context, actor models.User, role *models.Role) (int64, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin)); err != nil {
		return 0, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return 0, err
	}
	return s.repo.CountUsers(ctx, scope, role)
}

func (s *Service) UpdateUser(ctx context.Context, actor models.User, id uuid.UUID, req models.UpdateUserRequest) (models.User, error) {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin)); err != nil {
		return models.User{}, err
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return models.User{}, err
	}

	input := UpdateUserInput{FullName: req.FullName}
	if req.Email != nil {
		existing, err := s.repo.GetUserByEmail(ctx, *req.Email)
		if err == nil && existing.ID != id {
			return models.User{}, ErrEmailTaken
		}
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return models.User{}, err
		}
		input.Email = req.Email
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.User{}, err
		}
		hashed := string(hash)
		input.PasswordHash = &hashed
	}

	return s.repo.UpdateUser(ctx, id, scope, input)
}

func (s *Service) DeleteUser(ctx context.Context, actor models.User, id uuid.UUID) error {
	if err := policy.Authorize(actor, policy.RequireRole(models.RoleAdmin)); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("admins cannot delete their own account")
	}
	scope, err := policy.TenantScope(actor)
	if err != nil {
		return err
	}
	return s.repo.DeleteUser(ctx, id, scope)
}
