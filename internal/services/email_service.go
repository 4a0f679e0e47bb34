package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/logger"
	"github.com/charlesng35/engageflow/pkg/mail"
	"github.com/charlesng35/engageflow/pkg/metrics"
	"github.com/charlesng35/engageflow/pkg/validator"
)

var (
	// ErrEmailNotFound indicates the requested outbox email does not exist in the company.
	ErrEmailNotFound = apperrors.New("EMAIL_NOT_FOUND", "Email not found", http.StatusNotFound)
	// ErrEmailNotCancellable is returned when cancelling an email that already left the queue.
	ErrEmailNotCancellable = apperrors.New("EMAIL_NOT_CANCELLABLE", "Only pending emails can be cancelled", http.StatusConflict)
)

const (
	defaultEmailMaxAttempts = 5
	defaultEmailRetryDelay  = time.Minute
	defaultEmailStaleAfter  = 10 * time.Minute
	maxEmailErrorLength     = 1000
)

// DispatchResult summarises one outbox run.
type DispatchResult struct {
	Sent    int
	Retried int
	Failed  int
}

// EmailServiceOption configures the outbox.
type EmailServiceOption func(*EmailService)

// WithEmailMaxAttempts bounds delivery attempts before an email is marked ERROR.
func WithEmailMaxAttempts(attempts int) EmailServiceOption {
	return func(s *EmailService) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithEmailRetryDelay sets the base delay of the exponential retry backoff.
func WithEmailRetryDelay(delay time.Duration) EmailServiceOption {
	return func(s *EmailService) {
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// EmailService is the email outbox. It satisfies flow.EmailQueue.
type EmailService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	maxAttempts int
	retryDelay  time.Duration
	staleAfter  time.Duration
	log         *zap.Logger
}

var _ flow.EmailQueue = (*EmailService)(nil)

// NewEmailService constructs an EmailService. mailer may be nil, in which
// case emails are queued but never dispatched.
func NewEmailService(db *gorm.DB, mailer mail.Mailer, opts ...EmailServiceOption) (*EmailService, error) {
	if db == nil {
		return nil, errors.New("email service: db is required")
	}
	svc := &EmailService{
		db:          db,
		mailer:      mailer,
		maxAttempts: defaultEmailMaxAttempts,
		retryDelay:  defaultEmailRetryDelay,
		staleAfter:  defaultEmailStaleAfter,
		log:         logger.WithModule("email-outbox"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Enqueue stores a pending email to be delivered at or after at.
func (s *EmailService) Enqueue(ctx context.Context, companyID, to, subject, body string, at time.Time) (*models.Email, error) {
	ctx = ensureContext(ctx)

	to = strings.ToLower(strings.TrimSpace(to))
	if err := validator.ValidateVar(to, "required,email"); err != nil {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid email address %q", to))
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperrors.NewBadRequest("email subject is required")
	}
	if at.IsZero() {
		at = time.Now()
	}

	email := &models.Email{
		CompanyID:   companyID,
		To:          to,
		Subject:     subject,
		Body:        body,
		Status:      models.EmailPending,
		ScheduledAt: at.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(email).Error; err != nil {
		return nil, fmt.Errorf("email service: enqueue email: %w", err)
	}
	return email, nil
}

// Cancel withdraws a pending email.
func (s *EmailService) Cancel(ctx context.Context, companyID, id string) (*models.Email, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Model(&models.Email{}).
		Where("company_id = ? AND id = ? AND status = ?", companyID, id, models.EmailPending).
		Update("status", models.EmailCancelled)
	if result.Error != nil {
		return nil, fmt.Errorf("email service: cancel email: %w", result.Error)
	}

	email, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, ErrEmailNotCancellable
	}
	return email, nil
}

// Get loads an outbox email scoped to the company.
func (s *EmailService) Get(ctx context.Context, companyID, id string) (*models.Email, error) {
	ctx = ensureContext(ctx)

	var email models.Email
	if err := s.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(&email).Error; err != nil {
		return nil, notFound(err, ErrEmailNotFound, "email service: load email")
	}
	return &email, nil
}

// List returns the company's outbox, newest first, optionally filtered by status.
func (s *EmailService) List(ctx context.Context, companyID, status string) ([]models.Email, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("company_id = ?", companyID)
	if status = strings.ToUpper(strings.TrimSpace(status)); status != "" {
		query = query.Where("status = ?", status)
	}
	var emails []models.Email
	if err := query.Order("created_at DESC").Limit(maxPerPage).Find(&emails).Error; err != nil {
		return nil, fmt.Errorf("email service: list emails: %w", err)
	}
	return emails, nil
}

// DispatchPending delivers due emails. Each email is claimed by moving it
// from PENDING to PROCESSING, then ends SENT, back in PENDING with a backoff,
// or in ERROR once its attempts are exhausted.
func (s *EmailService) DispatchPending(ctx context.Context, now time.Time, limit int) (DispatchResult, error) {
	ctx = ensureContext(ctx)

	var result DispatchResult
	if s.mailer == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = maxPerPage
	}

	if err := s.requeueStale(ctx, now); err != nil {
		return result, err
	}

	var due []models.Email
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.EmailPending, now.UTC()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&due).Error; err != nil {
		return result, fmt.Errorf("email service: load pending emails: %w", err)
	}

	var errs error
	for i := range due {
		email := &due[i]
		claimed, err := s.claim(ctx, email)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !claimed {
			continue
		}

		sendErr := s.mailer.Send(ctx, mail.Message{
			ID:      email.ID,
			To:      []string{email.To},
			Subject: email.Subject,
			Body:    email.Body,
			HTML:    looksLikeHTML(email.Body),
		})
		if errors.Is(sendErr, mail.ErrSMTPDisabled) {
			errs = multierr.Append(errs, s.release(ctx, email))
			break
		}

		outcome, err := s.settle(ctx, email, now, sendErr)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		switch outcome {
		case models.EmailSent:
			result.Sent++
			metrics.EmailsDispatched.WithLabelValues("sent").Inc()
		case models.EmailPending:
			result.Retried++
			metrics.EmailsDispatched.WithLabelValues("retry").Inc()
		case models.EmailError:
			result.Failed++
			metrics.EmailsDispatched.WithLabelValues("error").Inc()
		}
	}
	return result, errs
}

func (s *EmailService) claim(ctx context.Context, email *models.Email) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Email{}).
		Where("id = ? AND status = ?", email.ID, models.EmailPending).
		Update("status", models.EmailProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("email service: claim email %s: %w", email.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// release puts a claimed email back without counting an attempt.
func (s *EmailService) release(ctx context.Context, email *models.Email) error {
	err := s.db.WithContext(ctx).Model(&models.Email{}).
		Where("id = ? AND status = ?", email.ID, models.EmailProcessing).
		Update("status", models.EmailPending).Error
	if err != nil {
		return fmt.Errorf("email service: release email %s: %w", email.ID, err)
	}
	return nil
}

func (s *EmailService) settle(ctx context.Context, email *models.Email, now time.Time, sendErr error) (string, error) {
	attempts := email.Attempts + 1
	updates := map[string]any{"attempts": attempts}

	var status string
	switch {
	case sendErr == nil:
		status = models.EmailSent
		updates["sent_at"] = now.UTC()
		updates["last_error"] = ""
	case attempts >= s.maxAttempts:
		status = models.EmailError
		updates["last_error"] = truncate(sendErr.Error(), maxEmailErrorLength)
	default:
		status = models.EmailPending
		updates["last_error"] = truncate(sendErr.Error(), maxEmailErrorLength)
		updates["scheduled_at"] = now.Add(s.backoff(attempts)).UTC()
	}
	updates["status"] = status

	if sendErr != nil {
		s.log.Warn("email delivery failed",
			zap.String("company_id", email.CompanyID),
			zap.String("email_id", email.ID),
			zap.Int("attempts", attempts),
			zap.String("next_status", status),
			zap.Error(sendErr))
	}

	if err := s.db.WithContext(ctx).Model(&models.Email{}).Where("id = ?", email.ID).Updates(updates).Error; err != nil {
		return "", fmt.Errorf("email service: settle email %s: %w", email.ID, err)
	}
	return status, nil
}

// backoff doubles the retry delay per failed attempt.
func (s *EmailService) backoff(attempts int) time.Duration {
	delay := s.retryDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

// requeueStale returns emails left in PROCESSING by an interrupted run.
func (s *EmailService) requeueStale(ctx context.Context, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Email{}).
		Where("status = ? AND updated_at < ?", models.EmailProcessing, now.Add(-s.staleAfter).UTC()).
		Update("status", models.EmailPending)
	if res.Error != nil {
		return fmt.Errorf("email service: requeue stale emails: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Info("requeued stale outbox emails", zap.Int64("count", res.RowsAffected))
	}
	return nil
}

func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">")
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
