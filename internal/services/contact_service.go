package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/validator"
)

var (
	// ErrContactNotFound indicates the requested contact does not exist in the company.
	ErrContactNotFound = apperrors.New("CONTACT_NOT_FOUND", "Contact not found", http.StatusNotFound)
	// ErrContactExists signals a second contact with the same number.
	ErrContactExists = apperrors.New("CONTACT_EXISTS", "A contact with this number already exists", http.StatusConflict)
)

// CreateContactInput captures the data of a manually created contact.
type CreateContactInput struct {
	Number    string
	Name      string
	Email     string
	ExtraInfo map[string]any
}

// UpdateContactInput describes mutable contact fields.
type UpdateContactInput struct {
	Name      *string
	Email     *string
	ExtraInfo map[string]any
}

// ListContactsOptions controls contact listing.
type ListContactsOptions struct {
	Page    int
	PerPage int
	Query   string
}

// ContactService manages WhatsApp contacts. It satisfies flow.ContactService.
type ContactService struct {
	db *gorm.DB
}

var _ flow.ContactService = (*ContactService)(nil)

// NewContactService constructs a ContactService instance.
func NewContactService(db *gorm.DB) (*ContactService, error) {
	if db == nil {
		return nil, errors.New("contact service: db is required")
	}
	return &ContactService{db: db}, nil
}

// Upsert returns the contact identified by number, creating it when missing.
// A known contact without a name picks up the name carried by the message.
func (s *ContactService) Upsert(ctx context.Context, companyID, number, name string) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	number = validator.NormalizePhone(number)
	if !validator.IsPhone(number) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid phone number %q", number))
	}
	name = strings.TrimSpace(name)

	contact, err := s.findByNumber(ctx, companyID, number)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		contact = &models.Contact{CompanyID: companyID, Number: number, Name: name}
		err := s.db.WithContext(ctx).Create(contact).Error
		if err == nil {
			return contact, nil
		}
		if !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("contact service: create contact: %w", err)
		}
		// Another delivery for the same number won the insert.
		contact, err = s.findByNumber(ctx, companyID, number)
		if err != nil {
			return nil, err
		}
		if contact == nil {
			return nil, fmt.Errorf("contact service: contact %s vanished after conflict", number)
		}
	}

	if contact.Name == "" && name != "" {
		if err := s.db.WithContext(ctx).Model(contact).Update("name", name).Error; err != nil {
			return nil, fmt.Errorf("contact service: update contact name: %w", err)
		}
		contact.Name = name
	}
	return contact, nil
}

func (s *ContactService) findByNumber(ctx context.Context, companyID, number string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).Where("company_id = ? AND number = ?", companyID, number).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("contact service: load contact: %w", err)
	}
	return &contact, nil
}

// Create adds a contact by hand.
func (s *ContactService) Create(ctx context.Context, companyID string, input CreateContactInput) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	number := validator.NormalizePhone(input.Number)
	if !validator.IsPhone(number) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid phone number %q", input.Number))
	}
	contact := &models.Contact{
		CompanyID: companyID,
		Number:    number,
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
	}
	if len(input.ExtraInfo) > 0 {
		raw, err := json.Marshal(input.ExtraInfo)
		if err != nil {
			return nil, apperrors.NewBadRequest("extra info must be a JSON object")
		}
		contact.ExtraInfo = raw
	}

	if err := s.db.WithContext(ctx).Create(contact).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrContactExists
		}
		return nil, fmt.Errorf("contact service: create contact: %w", err)
	}
	return contact, nil
}

// Get loads a contact scoped to the company.
func (s *ContactService) Get(ctx context.Context, companyID, id string) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	var contact models.Contact
	err := s.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(&contact).Error
	if err != nil {
		return nil, notFound(err, ErrContactNotFound, "contact service: load contact")
	}
	return &contact, nil
}

// List returns a page of contacts matching the optional name/number/email query.
func (s *ContactService) List(ctx context.Context, companyID string, opts ListContactsOptions) ([]models.Contact, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Contact{}).Where("company_id = ?", companyID)
	if strings.TrimSpace(opts.Query) != "" {
		pattern := likePattern(opts.Query)
		query = query.Where("LOWER(name) LIKE ? OR number LIKE ? OR LOWER(email) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("contact service: count contacts: %w", err)
	}

	perPage := sanitizePerPage(opts.PerPage)
	page := sanitizePage(opts.Page)

	var contacts []models.Contact
	if err := query.Order("name ASC, number ASC").Limit(perPage).Offset((page - 1) * perPage).Find(&contacts).Error; err != nil {
		return nil, 0, fmt.Errorf("contact service: list contacts: %w", err)
	}
	return contacts, total, nil
}

// Update modifies contact metadata. ExtraInfo keys are merged; a nil value removes a key.
func (s *ContactService) Update(ctx context.Context, companyID, id string, input UpdateContactInput) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	contact, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		contact.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		contact.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.ExtraInfo != nil {
		extra := flow.ContactExtra(contact)
		for key, value := range input.ExtraInfo {
			if value == nil {
				delete(extra, key)
				continue
			}
			extra[key] = value
		}
		raw, err := json.Marshal(extra)
		if err != nil {
			return nil, apperrors.NewBadRequest("extra info must be a JSON object")
		}
		contact.ExtraInfo = raw
	}

	if err := s.save(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// Delete removes a contact together with its executions, tickets and messages.
func (s *ContactService) Delete(ctx context.Context, companyID, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.Contact{})
	if result.Error != nil {
		return fmt.Errorf("contact service: delete contact: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

// GetField reads name, number, email or extra.<key> from the contact.
func (s *ContactService) GetField(ctx context.Context, companyID, id, field string) (string, error) {
	contact, err := s.Get(ctx, companyID, id)
	if err != nil {
		return "", err
	}
	field = strings.TrimSpace(field)
	if field != "name" && field != "number" && field != "email" && !strings.HasPrefix(field, "extra.") {
		return "", apperrors.NewBadRequest(fmt.Sprintf("unknown contact field %q", field))
	}
	value, ok := flow.Lookup(contact, nil, field)
	if !ok {
		return "", nil
	}
	return flow.Stringify(value), nil
}

// SetField writes name, email or extra.<key> on the contact.
func (s *ContactService) SetField(ctx context.Context, companyID, id, field, value string) (*models.Contact, error) {
	ctx = ensureContext(ctx)

	contact, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := flow.SetContactField(contact, strings.TrimSpace(field), value); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}
	if err := s.save(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *ContactService) save(ctx context.Context, contact *models.Contact) error {
	err := s.db.WithContext(ctx).Model(contact).Select("name", "email", "extra_info").Updates(contact).Error
	if err != nil {
		return fmt.Errorf("contact service: update contact: %w", err)
	}
	return nil
}
