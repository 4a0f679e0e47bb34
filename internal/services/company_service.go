package services

import (
	"context"
	"encoding/json"
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

const webhookTokenBytes = 32

var (
	// ErrCompanyNotFound indicates the requested company does not exist.
	ErrCompanyNotFound = apperrors.New("COMPANY_NOT_FOUND", "Company not found", http.StatusNotFound)
)

// CreateCompanyInput captures new tenant metadata.
type CreateCompanyInput struct {
	Name     string
	Timezone string
	Settings map[string]any
}

// UpdateCompanyInput describes mutable company fields.
type UpdateCompanyInput struct {
	Name     *string
	Timezone *string
	Settings map[string]any
}

// CompanyService manages tenants and their inbound webhook tokens.
type CompanyService struct {
	db *gorm.DB
}

// NewCompanyService constructs a CompanyService instance.
func NewCompanyService(db *gorm.DB) (*CompanyService, error) {
	if db == nil {
		return nil, errors.New("company service: db is required")
	}
	return &CompanyService{db: db}, nil
}

// Create registers a tenant with a freshly generated webhook token.
func (s *CompanyService) Create(ctx context.Context, input CreateCompanyInput) (*models.Company, error) {
	ctx = ensureContext(ctx)
	company, err := newCompany(input)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(company).Error; err != nil {
		return nil, fmt.Errorf("company service: create company: %w", err)
	}
	return company, nil
}

func newCompany(input CreateCompanyInput) (*models.Company, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("company name is required")
	}
	timezone, err := normaliseTimezone(input.Timezone)
	if err != nil {
		return nil, err
	}
	token, err := crypto.GenerateToken(webhookTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("company service: generate webhook token: %w", err)
	}
	company := &models.Company{
		Name:         name,
		Timezone:     timezone,
		WebhookToken: token,
	}
	if len(input.Settings) > 0 {
		raw, err := json.Marshal(input.Settings)
		if err != nil {
			return nil, apperrors.NewBadRequest("settings must be a JSON object")
		}
		company.Settings = raw
	}
	return company, nil
}

func normaliseTimezone(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "UTC", nil
	}
	if _, err := time.LoadLocation(value); err != nil {
		return "", apperrors.NewBadRequest(fmt.Sprintf("unknown timezone %q", value))
	}
	return value, nil
}

// Get loads a company by id.
func (s *CompanyService) Get(ctx context.Context, id string) (*models.Company, error) {
	ctx = ensureContext(ctx)

	var company models.Company
	if err := s.db.WithContext(ctx).First(&company, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrCompanyNotFound, "company service: load company")
	}
	return &company, nil
}

// Authenticate resolves the company for an inbound webhook and checks its
// token in constant time. Unknown companies and wrong tokens are reported
// the same way.
func (s *CompanyService) Authenticate(ctx context.Context, id, token string) (*models.Company, error) {
	company, err := s.Get(ctx, id)
	if errors.Is(err, ErrCompanyNotFound) {
		return nil, apperrors.ErrInvalidWebhookToken
	}
	if err != nil {
		return nil, err
	}
	if !crypto.ConstantTimeEqual(company.WebhookToken, strings.TrimSpace(token)) {
		return nil, apperrors.ErrInvalidWebhookToken
	}
	return company, nil
}

// RotateWebhookToken replaces the company's webhook token and returns the new value.
func (s *CompanyService) RotateWebhookToken(ctx context.Context, id string) (string, error) {
	ctx = ensureContext(ctx)

	company, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	token, err := crypto.GenerateToken(webhookTokenBytes)
	if err != nil {
		return "", fmt.Errorf("company service: generate webhook token: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(company).Update("webhook_token", token).Error; err != nil {
		return "", fmt.Errorf("company service: rotate webhook token: %w", err)
	}
	return token, nil
}

// Update modifies company metadata.
func (s *CompanyService) Update(ctx context.Context, id string, input UpdateCompanyInput) (*models.Company, error) {
	ctx = ensureContext(ctx)

	company, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("company name is required")
		}
		updates["name"] = name
	}
	if input.Timezone != nil {
		timezone, err := normaliseTimezone(*input.Timezone)
		if err != nil {
			return nil, err
		}
		updates["timezone"] = timezone
	}
	if input.Settings != nil {
		raw, err := json.Marshal(input.Settings)
		if err != nil {
			return nil, apperrors.NewBadRequest("settings must be a JSON object")
		}
		updates["settings"] = raw
	}
	if len(updates) == 0 {
		return company, nil
	}

	if err := s.db.WithContext(ctx).Model(company).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("company service: update company: %w", err)
	}
	return s.Get(ctx, id)
}
