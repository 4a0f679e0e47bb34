package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/crypto"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist in the company.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrUserInactive is returned when a disabled agent tries to sign in.
	ErrUserInactive = apperrors.New("USER_INACTIVE", "User account is disabled", http.StatusForbidden)
)

const minPasswordLength = 8

// CreateUserInput captures the data required to create an agent.
type CreateUserInput struct {
	CompanyID string
	Name      string
	Email     string
	Password  string
	Profile   string
	IsActive  *bool
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page    int
	PerPage int
	Query   string
}

// UserService manages agents and administrators of a company.
type UserService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, now: time.Now}, nil
}

// Create provisions a new user with a bcrypt hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := newUser(input)
	if err != nil {
		return nil, err
	}
	if err := createUser(s.db.WithContext(ctx), user); err != nil {
		return nil, err
	}
	return user, nil
}

func newUser(input CreateUserInput) (*models.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if strings.TrimSpace(input.CompanyID) == "" {
		return nil, apperrors.NewBadRequest("company is required")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	profile := strings.ToLower(strings.TrimSpace(input.Profile))
	switch profile {
	case "":
		profile = models.ProfileUser
	case models.ProfileUser, models.ProfileAdmin:
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown profile %q", input.Profile))
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		CompanyID: strings.TrimSpace(input.CompanyID),
		Name:      name,
		Email:     email,
		Password:  hashed,
		Profile:   profile,
		IsActive:  true,
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	return user, nil
}

func createUser(tx *gorm.DB, user *models.User) error {
	if err := tx.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.NewConflict("email already in use")
		}
		return fmt.Errorf("user service: create user: %w", err)
	}
	// IsActive carries a database default; persist an explicit false.
	if !user.IsActive {
		if err := tx.Model(user).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("user service: deactivate user: %w", err)
		}
	}
	return nil
}

// Authenticate checks the credentials of an agent and records the login.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	if !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

// Get loads a user scoped to the company.
func (s *UserService) Get(ctx context.Context, companyID, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(&user).Error
	if err != nil {
		return nil, notFound(err, ErrUserNotFound, "user service: load user")
	}
	return &user, nil
}

// List returns the company's users ordered by name.
func (s *UserService) List(ctx context.Context, companyID string, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.User{}).Where("company_id = ?", companyID)
	if strings.TrimSpace(opts.Query) != "" {
		pattern := likePattern(opts.Query)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	perPage := sanitizePerPage(opts.PerPage)
	page := sanitizePage(opts.Page)

	var users []models.User
	if err := query.Order("name ASC").Limit(perPage).Offset((page - 1) * perPage).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}
	return users, total, nil
}
