package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

var (
	// ErrTicketNotFound indicates the requested ticket does not exist in the company.
	ErrTicketNotFound = apperrors.New("TICKET_NOT_FOUND", "Ticket not found", http.StatusNotFound)
	// ErrTicketClosed is returned when closing an already closed ticket.
	ErrTicketClosed = apperrors.New("TICKET_CLOSED", "Ticket is already closed", http.StatusConflict)
)

// TicketFilters narrows ticket listings.
type TicketFilters struct {
	Status    string
	QueueID   string
	UserID    string
	ContactID string
}

// ListTicketsOptions controls ticket listing.
type ListTicketsOptions struct {
	Page    int
	PerPage int
	Filters TicketFilters
}

// TicketService manages human-attended conversations. It satisfies flow.TicketService.
type TicketService struct {
	db  *gorm.DB
	now func() time.Time
}

var _ flow.TicketService = (*TicketService)(nil)

// NewTicketService constructs a TicketService instance.
func NewTicketService(db *gorm.DB) (*TicketService, error) {
	if db == nil {
		return nil, errors.New("ticket service: db is required")
	}
	return &TicketService{db: db, now: time.Now}, nil
}

// AttendedTicket returns the contact's open ticket that sits with a queue or
// an agent, or nil when the bot owns the conversation.
func (s *TicketService) AttendedTicket(ctx context.Context, companyID, contactID string) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND contact_id = ? AND status <> ?", companyID, contactID, models.TicketStatusClosed).
		Where("user_id IS NOT NULL OR queue_id IS NOT NULL").
		Order("created_at DESC").
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: load attended ticket: %w", err)
	}
	return &ticket, nil
}

// Open returns the contact's unclosed ticket, creating a pending one when none exists.
func (s *TicketService) Open(ctx context.Context, companyID, contactID string) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	var ticket *models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureContact(tx, companyID, contactID); err != nil {
			return err
		}
		existing, err := openTicket(tx, companyID, contactID)
		if err != nil {
			return err
		}
		if existing != nil {
			ticket = existing
			return nil
		}
		ticket = &models.Ticket{CompanyID: companyID, ContactID: contactID, Status: models.TicketStatusPending}
		if err := tx.Omit("Contact", "Queue", "User").Create(ticket).Error; err != nil {
			return fmt.Errorf("ticket service: create ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Transfer hands the contact's conversation to a queue and/or agent, reusing
// the unclosed ticket when there is one. A ticket with an agent is open,
// otherwise it waits pending in the queue.
func (s *TicketService) Transfer(ctx context.Context, companyID, contactID string, queueID, userID *string, lastMessage string) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	queueID = optionalString(queueID)
	userID = optionalString(userID)

	var ticket *models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureContact(tx, companyID, contactID); err != nil {
			return err
		}
		if queueID != nil {
			if err := ensureOwned(tx, &models.Queue{}, companyID, *queueID, ErrQueueNotFound); err != nil {
				return err
			}
		}
		if userID != nil {
			if err := ensureOwned(tx, &models.User{}, companyID, *userID, ErrUserNotFound); err != nil {
				return err
			}
		}

		status := models.TicketStatusPending
		if userID != nil {
			status = models.TicketStatusOpen
		}

		existing, err := openTicket(tx, companyID, contactID)
		if err != nil {
			return err
		}
		if existing == nil {
			ticket = &models.Ticket{
				CompanyID:   companyID,
				ContactID:   contactID,
				QueueID:     queueID,
				UserID:      userID,
				Status:      status,
				LastMessage: lastMessage,
			}
			if err := tx.Omit("Contact", "Queue", "User").Create(ticket).Error; err != nil {
				return fmt.Errorf("ticket service: create ticket: %w", err)
			}
			return nil
		}

		updates := map[string]any{
			"queue_id": queueID,
			"user_id":  userID,
			"status":   status,
		}
		if lastMessage != "" {
			updates["last_message"] = lastMessage
		}
		if err := tx.Model(existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("ticket service: transfer ticket: %w", err)
		}
		if err := tx.First(existing, "id = ?", existing.ID).Error; err != nil {
			return fmt.Errorf("ticket service: reload ticket: %w", err)
		}
		ticket = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Close ends a ticket; the bot takes over the contact's next message again.
func (s *TicketService) Close(ctx context.Context, companyID, id string) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	ticket, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketStatusClosed {
		return nil, ErrTicketClosed
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(ticket).Updates(map[string]any{
		"status":    models.TicketStatusClosed,
		"closed_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("ticket service: close ticket: %w", err)
	}
	ticket.Status = models.TicketStatusClosed
	ticket.ClosedAt = &now
	return ticket, nil
}

// Get loads a ticket with its contact, queue and user.
func (s *TicketService) Get(ctx context.Context, companyID, id string) (*models.Ticket, error) {
	ctx = ensureContext(ctx)

	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Preload("Contact").Preload("Queue").Preload("User").
		Where("company_id = ? AND id = ?", companyID, id).
		First(&ticket).Error
	if err != nil {
		return nil, notFound(err, ErrTicketNotFound, "ticket service: load ticket")
	}
	return &ticket, nil
}

// List returns a page of tickets, newest first.
func (s *TicketService) List(ctx context.Context, companyID string, opts ListTicketsOptions) ([]models.Ticket, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("company_id = ?", companyID)
	if status := strings.TrimSpace(opts.Filters.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if queueID := strings.TrimSpace(opts.Filters.QueueID); queueID != "" {
		query = query.Where("queue_id = ?", queueID)
	}
	if userID := strings.TrimSpace(opts.Filters.UserID); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if contactID := strings.TrimSpace(opts.Filters.ContactID); contactID != "" {
		query = query.Where("contact_id = ?", contactID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ticket service: count tickets: %w", err)
	}

	perPage := sanitizePerPage(opts.PerPage)
	page := sanitizePage(opts.Page)

	var tickets []models.Ticket
	if err := query.Preload("Contact").
		Order("created_at DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&tickets).Error; err != nil {
		return nil, 0, fmt.Errorf("ticket service: list tickets: %w", err)
	}
	return tickets, total, nil
}

func openTicket(tx *gorm.DB, companyID, contactID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := tx.Where("company_id = ? AND contact_id = ? AND status <> ?", companyID, contactID, models.TicketStatusClosed).
		Order("created_at DESC").
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket service: load open ticket: %w", err)
	}
	return &ticket, nil
}

func ensureContact(tx *gorm.DB, companyID, contactID string) error {
	return ensureOwned(tx, &models.Contact{}, companyID, contactID, ErrContactNotFound)
}

// ensureOwned checks that the row exists inside the company.
func ensureOwned(tx *gorm.DB, model any, companyID, id string, sentinel error) error {
	var count int64
	if err := tx.Model(model).Where("company_id = ? AND id = ?", companyID, id).Count(&count).Error; err != nil {
		return fmt.Errorf("ticket service: check ownership: %w", err)
	}
	if count == 0 {
		return sentinel
	}
	return nil
}
