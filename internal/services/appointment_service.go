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
	// ErrAppointmentNotFound indicates the requested appointment does not exist in the company.
	ErrAppointmentNotFound = apperrors.New("APPOINTMENT_NOT_FOUND", "Appointment not found", http.StatusNotFound)
	// ErrAppointmentConflict reports an overlapping blocking appointment. It
	// unwraps to flow.ErrSlotTaken so the appointment node takes its conflict edge.
	ErrAppointmentConflict = apperrors.New("APPOINTMENT_CONFLICT", "The time slot is already booked", http.StatusConflict).
				WithInternal(flow.ErrSlotTaken)
	// ErrAppointmentTransition rejects a status change the lifecycle does not allow.
	ErrAppointmentTransition = apperrors.New("APPOINTMENT_INVALID_TRANSITION", "Appointment status change not allowed", http.StatusConflict)
)

// appointmentTransitions lists the statuses reachable from each status.
var appointmentTransitions = map[string][]string{
	models.AppointmentPending:   {models.AppointmentConfirmed, models.AppointmentCancelled, models.AppointmentNoShow},
	models.AppointmentConfirmed: {models.AppointmentCompleted, models.AppointmentCancelled, models.AppointmentNoShow},
}

// CreateAppointmentInput captures an appointment booked from the dashboard.
type CreateAppointmentInput struct {
	ContactID   string
	UserID      *string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
}

// AppointmentFilters narrows appointment listings.
type AppointmentFilters struct {
	Status    string
	ContactID string
	UserID    string
	From      *time.Time
	To        *time.Time
}

// AppointmentService books and tracks appointments. It satisfies flow.AppointmentBooker.
type AppointmentService struct {
	db  *gorm.DB
	now func() time.Time
}

var _ flow.AppointmentBooker = (*AppointmentService)(nil)

// NewAppointmentService constructs an AppointmentService instance.
func NewAppointmentService(db *gorm.DB) (*AppointmentService, error) {
	if db == nil {
		return nil, errors.New("appointment service: db is required")
	}
	return &AppointmentService{db: db, now: time.Now}, nil
}

// Book stores the appointment unless it overlaps a pending or confirmed
// appointment of the same attendant (or of the unassigned calendar when no
// attendant is set).
func (s *AppointmentService) Book(ctx context.Context, appointment *models.Appointment) error {
	ctx = ensureContext(ctx)

	if appointment == nil {
		return apperrors.NewBadRequest("appointment is required")
	}
	appointment.Title = strings.TrimSpace(appointment.Title)
	if appointment.Title == "" {
		appointment.Title = "Appointment"
	}
	appointment.StartsAt = appointment.StartsAt.UTC()
	appointment.EndsAt = appointment.EndsAt.UTC()
	if !appointment.EndsAt.After(appointment.StartsAt) {
		return apperrors.NewBadRequest("appointment must end after it starts")
	}
	appointment.UserID = optionalString(appointment.UserID)
	if appointment.Status == "" {
		appointment.Status = models.AppointmentPending
	}
	if !appointment.Blocking() {
		return apperrors.NewBadRequest("new appointments must be pending or confirmed")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureContact(tx, appointment.CompanyID, appointment.ContactID); err != nil {
			return err
		}
		if appointment.UserID != nil {
			if err := ensureOwned(tx, &models.User{}, appointment.CompanyID, *appointment.UserID, ErrUserNotFound); err != nil {
				return err
			}
		}

		query := tx.Model(&models.Appointment{}).
			Where("company_id = ? AND status IN ?", appointment.CompanyID,
				[]string{models.AppointmentPending, models.AppointmentConfirmed}).
			Where("starts_at < ? AND ends_at > ?", appointment.EndsAt, appointment.StartsAt)
		if appointment.UserID != nil {
			query = query.Where("user_id = ?", *appointment.UserID)
		} else {
			query = query.Where("user_id IS NULL")
		}
		var overlapping int64
		if err := query.Count(&overlapping).Error; err != nil {
			return fmt.Errorf("appointment service: check overlap: %w", err)
		}
		if overlapping > 0 {
			return ErrAppointmentConflict
		}

		if err := tx.Omit("Contact").Create(appointment).Error; err != nil {
			return fmt.Errorf("appointment service: create appointment: %w", err)
		}
		return nil
	})
}

// Create books an appointment on behalf of an agent.
func (s *AppointmentService) Create(ctx context.Context, companyID string, input CreateAppointmentInput) (*models.Appointment, error) {
	if !input.StartsAt.After(s.now()) {
		return nil, apperrors.NewBadRequest("appointment must start in the future")
	}
	appointment := &models.Appointment{
		CompanyID:   companyID,
		ContactID:   strings.TrimSpace(input.ContactID),
		UserID:      input.UserID,
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		StartsAt:    input.StartsAt.UTC(),
		EndsAt:      input.EndsAt.UTC(),
		Status:      models.AppointmentConfirmed,
	}
	if err := s.Book(ctx, appointment); err != nil {
		return nil, err
	}
	return appointment, nil
}

// Get loads an appointment scoped to the company.
func (s *AppointmentService) Get(ctx context.Context, companyID, id string) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	var appointment models.Appointment
	err := s.db.WithContext(ctx).Preload("Contact").
		Where("company_id = ? AND id = ?", companyID, id).
		First(&appointment).Error
	if err != nil {
		return nil, notFound(err, ErrAppointmentNotFound, "appointment service: load appointment")
	}
	return &appointment, nil
}

// List returns the company's appointments in start order.
func (s *AppointmentService) List(ctx context.Context, companyID string, filters AppointmentFilters) ([]models.Appointment, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("company_id = ?", companyID)
	if status := strings.TrimSpace(filters.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if contactID := strings.TrimSpace(filters.ContactID); contactID != "" {
		query = query.Where("contact_id = ?", contactID)
	}
	if userID := strings.TrimSpace(filters.UserID); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if filters.From != nil {
		query = query.Where("starts_at >= ?", filters.From.UTC())
	}
	if filters.To != nil {
		query = query.Where("starts_at < ?", filters.To.UTC())
	}

	var appointments []models.Appointment
	if err := query.Preload("Contact").Order("starts_at ASC").Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("appointment service: list appointments: %w", err)
	}
	return appointments, nil
}

// UpdateStatus moves an appointment through its lifecycle.
func (s *AppointmentService) UpdateStatus(ctx context.Context, companyID, id, status string) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	appointment, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !canTransition(appointment.Status, status) {
		return nil, ErrAppointmentTransition.WithMessage(
			fmt.Sprintf("Appointment cannot move from %s to %s", appointment.Status, status))
	}

	updates := map[string]any{"status": status}
	if status == models.AppointmentCancelled {
		now := s.now().UTC()
		updates["cancelled_at"] = now
		appointment.CancelledAt = &now
	}
	if err := s.db.WithContext(ctx).Model(appointment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("appointment service: update status: %w", err)
	}
	appointment.Status = status
	return appointment, nil
}

func canTransition(from, to string) bool {
	for _, allowed := range appointmentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
