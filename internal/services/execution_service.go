package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

// ErrExecutionNotFound indicates the requested execution does not exist in the company.
var ErrExecutionNotFound = apperrors.New("EXECUTION_NOT_FOUND", "Execution not found", http.StatusNotFound)

// ExecutionFilters narrows execution listings.
type ExecutionFilters struct {
	Status    string
	FlowID    string
	ContactID string
}

// ListExecutionsOptions controls execution listing.
type ListExecutionsOptions struct {
	Page    int
	PerPage int
	Filters ExecutionFilters
}

// ExecutionService exposes flow executions to the dashboard. State changes go
// through the engine.
type ExecutionService struct {
	db *gorm.DB
}

// NewExecutionService constructs an ExecutionService instance.
func NewExecutionService(db *gorm.DB) (*ExecutionService, error) {
	if db == nil {
		return nil, errors.New("execution service: db is required")
	}
	return &ExecutionService{db: db}, nil
}

// List returns a page of executions, most recently updated first.
func (s *ExecutionService) List(ctx context.Context, companyID string, opts ListExecutionsOptions) ([]models.FlowBuilderExecution, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.FlowBuilderExecution{}).Where("company_id = ?", companyID)
	if status := strings.TrimSpace(opts.Filters.Status); status != "" {
		switch status {
		case models.ExecutionActive, models.ExecutionPaused, models.ExecutionCompleted, models.ExecutionError, models.ExecutionInactive:
		default:
			return nil, 0, apperrors.NewBadRequest(fmt.Sprintf("unknown execution status %q", status))
		}
		query = query.Where("status = ?", status)
	}
	if flowID := strings.TrimSpace(opts.Filters.FlowID); flowID != "" {
		query = query.Where("flow_id = ?", flowID)
	}
	if contactID := strings.TrimSpace(opts.Filters.ContactID); contactID != "" {
		query = query.Where("contact_id = ?", contactID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("execution service: count executions: %w", err)
	}

	perPage := sanitizePerPage(opts.PerPage)
	page := sanitizePage(opts.Page)

	var executions []models.FlowBuilderExecution
	if err := query.Preload("Contact").
		Order("updated_at DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&executions).Error; err != nil {
		return nil, 0, fmt.Errorf("execution service: list executions: %w", err)
	}
	return executions, total, nil
}

// Get loads an execution with its contact and node run logs in step order.
func (s *ExecutionService) Get(ctx context.Context, companyID, id string) (*models.FlowBuilderExecution, error) {
	ctx = ensureContext(ctx)

	var execution models.FlowBuilderExecution
	err := s.db.WithContext(ctx).
		Preload("Contact").
		Preload("Logs", func(db *gorm.DB) *gorm.DB {
			return db.Order("step ASC, created_at ASC")
		}).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&execution).Error
	if err != nil {
		return nil, notFound(err, ErrExecutionNotFound, "execution service: load execution")
	}
	return &execution, nil
}
