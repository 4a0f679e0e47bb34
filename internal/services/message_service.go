package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

// ListMessagesOptions controls conversation history listing.
type ListMessagesOptions struct {
	Page    int
	PerPage int
}

// MessageService stores and lists the WhatsApp conversation history.
type MessageService struct {
	db *gorm.DB
}

// NewMessageService constructs a MessageService instance.
func NewMessageService(db *gorm.DB) (*MessageService, error) {
	if db == nil {
		return nil, errors.New("message service: db is required")
	}
	return &MessageService{db: db}, nil
}

// Record stores an inbound or outbound message for a contact of the company.
func (s *MessageService) Record(ctx context.Context, message *models.Message) error {
	ctx = ensureContext(ctx)

	if message == nil {
		return apperrors.NewBadRequest("message is required")
	}
	switch message.Direction {
	case models.DirectionInbound, models.DirectionOutbound:
	default:
		return apperrors.NewBadRequest(fmt.Sprintf("unknown message direction %q", message.Direction))
	}
	if strings.TrimSpace(message.Body) == "" && strings.TrimSpace(message.MediaURL) == "" {
		return apperrors.NewBadRequest("message body or media is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureContact(tx, message.CompanyID, message.ContactID); err != nil {
			return err
		}
		if err := tx.Omit("Contact").Create(message).Error; err != nil {
			return fmt.Errorf("message service: record message: %w", err)
		}
		return nil
	})
}

// List returns a page of the contact's messages, oldest first.
func (s *MessageService) List(ctx context.Context, companyID, contactID string, opts ListMessagesOptions) ([]models.Message, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("company_id = ? AND contact_id = ?", companyID, contactID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("message service: count messages: %w", err)
	}

	perPage := sanitizePerPage(opts.PerPage)
	page := sanitizePage(opts.Page)

	var messages []models.Message
	if err := query.Order("created_at ASC").Limit(perPage).Offset((page - 1) * perPage).Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("message service: list messages: %w", err)
	}
	return messages, total, nil
}
