package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/logger"
)

// Database and appointment handles.
const (
	HandleNotFound = "not_found"
	HandleBooked   = "booked"
	HandleConflict = "conflict"
)

// AttendantConfig configures an attendant node.
type AttendantConfig struct {
	Message string `mapstructure:"message"`
	QueueID string `mapstructure:"queueId"`
	UserID  string `mapstructure:"userId"`
}

func (c *AttendantConfig) validate() error {
	if strings.TrimSpace(c.QueueID) == "" && strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("queueId or userId is required")
	}
	return nil
}

type attendantHandler struct{}

func (attendantHandler) Type() string { return TypeAttendant }

func (attendantHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[AttendantConfig](data)
}

func (h attendantHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[AttendantConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if run.svc.Tickets == nil {
		return Outcome{}, errors.New("no ticket service configured")
	}
	if err := run.SendText(ctx, cfg.Message); err != nil {
		return Outcome{}, err
	}

	ticket, err := run.svc.Tickets.Transfer(ctx, run.Company.ID, run.Contact.ID,
		optionalID(cfg.QueueID), optionalID(cfg.UserID), lastMessage(run))
	if err != nil {
		return Outcome{}, fmt.Errorf("transfer ticket: %w", err)
	}
	run.Vars.Set("ticket_id", ticket.ID)
	return Outcome{End: EndTransferred, Detail: "ticket " + ticket.ID}, nil
}

func optionalID(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func lastMessage(run *Run) string {
	value, _ := run.Vars.Get(VarLastMessage)
	return Stringify(value)
}

// Database node operations.
const (
	OperationGet = "get"
	OperationSet = "set"
)

// DatabaseConfig configures a database node that reads or writes a contact field.
type DatabaseConfig struct {
	Operation string `mapstructure:"operation"`
	Field     string `mapstructure:"field"`
	Variable  string `mapstructure:"variable"`
	Value     string `mapstructure:"value"`
}

func (c *DatabaseConfig) validate() error {
	switch c.Operation {
	case OperationGet, OperationSet:
	case "":
		c.Operation = OperationGet
	default:
		return fmt.Errorf("unknown operation %q", c.Operation)
	}

	field := strings.TrimSpace(c.Field)
	switch {
	case field == "name", field == "email":
	case field == "number":
		if c.Operation == OperationSet {
			return fmt.Errorf("the contact number cannot be changed")
		}
	case strings.HasPrefix(field, "extra.") && len(field) > len("extra."):
	default:
		return fmt.Errorf("unknown contact field %q", c.Field)
	}
	c.Field = field

	if c.Operation == OperationGet && strings.TrimSpace(c.Variable) == "" {
		return fmt.Errorf("variable is required for get")
	}
	if c.Operation == OperationSet && c.Value == "" && c.Variable == "" {
		return fmt.Errorf("value or variable is required for set")
	}
	return nil
}

type databaseHandler struct{}

func (databaseHandler) Type() string { return TypeDatabase }

func (databaseHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[DatabaseConfig](data)
}

func (h databaseHandler) Execute(_ context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[DatabaseConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}

	if cfg.Operation == OperationGet {
		value, ok := Lookup(run.Contact, nil, cfg.Field)
		if !ok || Stringify(value) == "" {
			return Outcome{Handle: HandleNotFound, Detail: cfg.Field}, nil
		}
		run.Vars.Set(cfg.Variable, value)
		return Outcome{Detail: cfg.Field}, nil
	}

	var value string
	if cfg.Value != "" {
		value = run.Render(cfg.Value)
	} else {
		raw, _ := run.Vars.Get(cfg.Variable)
		value = Stringify(raw)
	}
	if err := SetContactField(run.Contact, cfg.Field, value); err != nil {
		return Outcome{}, err
	}
	run.MarkContactChanged()
	return Outcome{Detail: cfg.Field}, nil
}

// SetContactField writes name, email or extra.<key> on the contact. Number is
// the contact identity and cannot be set.
func SetContactField(contact *models.Contact, field, value string) error {
	switch field {
	case "name":
		contact.Name = value
	case "email":
		contact.Email = strings.ToLower(strings.TrimSpace(value))
	case "number":
		return fmt.Errorf("the contact number cannot be changed")
	default:
		key := strings.TrimPrefix(field, "extra.")
		if key == field || key == "" {
			return fmt.Errorf("unknown contact field %q", field)
		}
		extra := ContactExtra(contact)
		extra[key] = value
		raw, err := json.Marshal(extra)
		if err != nil {
			return err
		}
		contact.ExtraInfo = raw
	}
	return nil
}

var appointmentLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"02/01/2006 15:04",
	"02-01-2006 15:04",
}

// AppointmentConfig configures an appointment node.
type AppointmentConfig struct {
	DateVariable        string `mapstructure:"dateVariable"`
	DurationMinutes     int    `mapstructure:"durationMinutes"`
	Title               string `mapstructure:"title"`
	Description         string `mapstructure:"description"`
	UserID              string `mapstructure:"userId"`
	Email               string `mapstructure:"email"`
	ConfirmationSubject string `mapstructure:"confirmationSubject"`
	ConfirmationBody    string `mapstructure:"confirmationBody"`
}

func (c *AppointmentConfig) validate() error {
	if strings.TrimSpace(c.DateVariable) == "" {
		return fmt.Errorf("dateVariable is required")
	}
	if c.DurationMinutes < 0 {
		return fmt.Errorf("durationMinutes cannot be negative")
	}
	if c.DurationMinutes == 0 {
		c.DurationMinutes = 30
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = "Appointment with {{name}}"
	}
	if c.Email == "" {
		c.Email = "{{email}}"
	}
	if c.ConfirmationSubject == "" {
		c.ConfirmationSubject = "Appointment confirmed"
	}
	if c.ConfirmationBody == "" {
		c.ConfirmationBody = "Hello {{name}}, your appointment is booked for {{appointment.starts_at}}."
	}
	return nil
}

// ParseAppointmentTime parses a contact supplied date-time in the given location.
func ParseAppointmentTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range appointmentLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type appointmentHandler struct{}

func (appointmentHandler) Type() string { return TypeAppointment }

func (appointmentHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[AppointmentConfig](data)
}

func (h appointmentHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[AppointmentConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if run.svc.Appointments == nil {
		return Outcome{}, errors.New("no appointment service configured")
	}

	raw, _ := run.Vars.Get(cfg.DateVariable)
	loc := run.Location()
	startsAt, ok := ParseAppointmentTime(Stringify(raw), loc)
	if !ok || !startsAt.After(run.Now) {
		return Outcome{Handle: HandleInvalid, Detail: "unparseable or past date"}, nil
	}

	execID := run.Execution.ID
	appointment := &models.Appointment{
		CompanyID:   run.Company.ID,
		ContactID:   run.Contact.ID,
		UserID:      optionalID(cfg.UserID),
		ExecutionID: &execID,
		Title:       run.Render(cfg.Title),
		Description: run.Render(cfg.Description),
		StartsAt:    startsAt.UTC(),
		EndsAt:      startsAt.Add(time.Duration(cfg.DurationMinutes) * time.Minute).UTC(),
		Status:      models.AppointmentPending,
	}
	if err := run.svc.Appointments.Book(ctx, appointment); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return Outcome{Handle: HandleConflict, Detail: startsAt.Format(time.RFC3339)}, nil
		}
		return Outcome{}, fmt.Errorf("book appointment: %w", err)
	}

	run.Vars.Set("appointment", map[string]any{
		"id":        appointment.ID,
		"starts_at": startsAt.In(loc).Format("2006-01-02 15:04"),
		"ends_at":   appointment.EndsAt.In(loc).Format("2006-01-02 15:04"),
	})

	if to := strings.TrimSpace(run.Render(cfg.Email)); to != "" && run.svc.Emails != nil {
		if _, err := run.svc.Emails.Enqueue(ctx, run.Company.ID, to,
			run.Render(cfg.ConfirmationSubject), run.Render(cfg.ConfirmationBody), run.Now); err != nil {
			if !errors.Is(err, apperrors.ErrBadRequest) {
				return Outcome{}, fmt.Errorf("enqueue confirmation: %w", err)
			}
			// The slot is already booked; a rejected address only skips the confirmation.
			logger.WithCompany("flow", run.Company.ID).Warn("appointment confirmation not queued",
				zap.String("appointment_id", appointment.ID),
				zap.String("to", to),
				zap.Error(err))
		}
	}
	return Outcome{Handle: HandleBooked, Detail: appointment.ID}, nil
}
