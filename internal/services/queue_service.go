package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

var (
	// ErrQueueNotFound indicates the requested queue does not exist in the company.
	ErrQueueNotFound = apperrors.New("QUEUE_NOT_FOUND", "Queue not found", http.StatusNotFound)
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultQueueColor = "#0b7285"

// CreateQueueInput captures new queue metadata.
type CreateQueueInput struct {
	Name            string
	Color           string
	GreetingMessage string
}

// QueueService manages attendant queues.
type QueueService struct {
	db *gorm.DB
}

// NewQueueService constructs a QueueService instance.
func NewQueueService(db *gorm.DB) (*QueueService, error) {
	if db == nil {
		return nil, errors.New("queue service: db is required")
	}
	return &QueueService{db: db}, nil
}

// Create registers a queue. Names are unique per company.
func (s *QueueService) Create(ctx context.Context, companyID string, input CreateQueueInput) (*models.Queue, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("queue name is required")
	}
	color := strings.TrimSpace(input.Color)
	if color == "" {
		color = defaultQueueColor
	}
	if !colorPattern.MatchString(color) {
		return nil, apperrors.NewBadRequest("color must be a hex value such as #0b7285")
	}

	queue := &models.Queue{
		CompanyID:       companyID,
		Name:            name,
		Color:           strings.ToLower(color),
		GreetingMessage: strings.TrimSpace(input.GreetingMessage),
	}
	if err := s.db.WithContext(ctx).Create(queue).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("queue name already exists")
		}
		return nil, fmt.Errorf("queue service: create queue: %w", err)
	}
	return queue, nil
}

// List returns the company's queues ordered by name.
func (s *QueueService) List(ctx context.Context, companyID string) ([]models.Queue, error) {
	ctx = ensureContext(ctx)

	var queues []models.Queue
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("name ASC").Find(&queues).Error; err != nil {
		return nil, fmt.Errorf("queue service: list queues: %w", err)
	}
	return queues, nil
}

// Get loads a queue scoped to the company.
func (s *QueueService) Get(ctx context.Context, companyID, id string) (*models.Queue, error) {
	ctx = ensureContext(ctx)

	var queue models.Queue
	if err := s.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(&queue).Error; err != nil {
		return nil, notFound(err, ErrQueueNotFound, "queue service: load queue")
	}
	return &queue, nil
}

// Delete removes a queue. Tickets in it keep existing without a queue.
func (s *QueueService) Delete(ctx context.Context, companyID, id string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Ticket{}).
			Where("company_id = ? AND queue_id = ?", companyID, id).
			Update("queue_id", nil).Error; err != nil {
			return fmt.Errorf("queue service: detach tickets: %w", err)
		}
		result := tx.Where("company_id = ? AND id = ?", companyID, id).Delete(&models.Queue{})
		if result.Error != nil {
			return fmt.Errorf("queue service: delete queue: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrQueueNotFound
		}
		return nil
	})
}
