package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

// ErrAlreadyInitialized prevents a second first-run setup.
var ErrAlreadyInitialized = apperrors.New("ALREADY_INITIALIZED", "System already initialized", http.StatusConflict)

// InitializeInput describes the first tenant and its administrator.
type InitializeInput struct {
	CompanyName string
	Timezone    string
	AdminName   string
	Email       string
	Password    string
}

// SetupService handles first-run provisioning.
type SetupService struct {
	db *gorm.DB
}

// NewSetupService constructs a SetupService instance.
func NewSetupService(db *gorm.DB) (*SetupService, error) {
	if db == nil {
		return nil, errors.New("setup service: db is required")
	}
	return &SetupService{db: db}, nil
}

// Initialized reports whether any user exists.
func (s *SetupService) Initialized(ctx context.Context) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("setup service: count users: %w", err)
	}
	return count > 0, nil
}

// Initialize creates the first company and its admin user in one transaction.
func (s *SetupService) Initialize(ctx context.Context, input InitializeInput) (*models.Company, *models.User, error) {
	ctx = ensureContext(ctx)

	company, err := newCompany(CreateCompanyInput{Name: input.CompanyName, Timezone: input.Timezone})
	if err != nil {
		return nil, nil, err
	}

	var user *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return fmt.Errorf("setup service: count users: %w", err)
		}
		if count > 0 {
			return ErrAlreadyInitialized
		}
		if err := tx.Create(company).Error; err != nil {
			return fmt.Errorf("setup service: create company: %w", err)
		}

		admin, err := newUser(CreateUserInput{
			CompanyID: company.ID,
			Name:      input.AdminName,
			Email:     input.Email,
			Password:  input.Password,
			Profile:   models.ProfileAdmin,
		})
		if err != nil {
			return err
		}
		if err := createUser(tx, admin); err != nil {
			return err
		}
		user = admin
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return company, user, nil
}
