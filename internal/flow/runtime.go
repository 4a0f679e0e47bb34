package flow

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/metrics"
)

// EndReason explains why an execution stopped.
type EndReason string

// End reasons recorded on executions.
const (
	EndCompleted    EndReason = "completed"
	EndOfFlow       EndReason = "end_of_flow"
	EndTransferred  EndReason = "transferred"
	EndInvalidInput EndReason = "invalid_input"
	EndStepLimit    EndReason = "step_limit"
	EndInactivity   EndReason = "inactivity"
	EndCancelled    EndReason = "cancelled"
	EndError        EndReason = "error"
)

// Outcome is what a handler tells the engine after running a node.
type Outcome struct {
	// Handle selects the outgoing edge.
	Handle string
	// Wait parks the execution on this node until the contact replies.
	Wait bool
	// Pause parks the execution until the scheduler resumes it.
	Pause time.Duration
	// End finishes the execution.
	End EndReason
	// Detail is stored on the execution log.
	Detail string
}

// Input is a contact reply delivered to a waiting node.
type Input struct {
	Text      string
	MediaURL  string
	MediaType string
}

// ErrSlotTaken must be wrapped by AppointmentBooker implementations when the
// requested slot overlaps another appointment.
var ErrSlotTaken = errors.New("flow: appointment slot is taken")

// TicketService opens and inspects human-attended tickets.
type TicketService interface {
	AttendedTicket(ctx context.Context, companyID, contactID string) (*models.Ticket, error)
	Transfer(ctx context.Context, companyID, contactID string, queueID, userID *string, lastMessage string) (*models.Ticket, error)
}

// ContactService resolves contacts for inbound messages.
type ContactService interface {
	Upsert(ctx context.Context, companyID, number, name string) (*models.Contact, error)
}

// AppointmentBooker books appointments with overlap checks.
type AppointmentBooker interface {
	Book(ctx context.Context, appointment *models.Appointment) error
}

// EmailQueue enqueues outbox emails.
type EmailQueue interface {
	Enqueue(ctx context.Context, companyID, to, subject, body string, at time.Time) (*models.Email, error)
}

// FlowSource loads flows and their runnable graphs.
type FlowSource interface {
	ActiveFlows(ctx context.Context, companyID string) ([]models.FlowBuilder, error)
	GetFlow(ctx context.Context, companyID, flowID string) (*models.FlowBuilder, error)
	LoadGraph(ctx context.Context, flow *models.FlowBuilder) (*Graph, error)
}

// Publisher receives execution events for realtime delivery.
type Publisher interface {
	PublishCompany(companyID, event string, data any)
}

// HTTPDoer performs outbound HTTP requests for webhook and api nodes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Services bundles the collaborators node handlers may call.
type Services struct {
	Sender       gateway.Sender
	Tickets      TicketService
	Appointments AppointmentBooker
	Emails       EmailQueue
	HTTP         HTTPDoer
	HTTPTimeout  time.Duration
	Random       func() float64
}

// Run is the mutable state of one execution while the engine steps through it.
type Run struct {
	Company   *models.Company
	Flow      *models.FlowBuilder
	Contact   *models.Contact
	Execution *models.FlowBuilderExecution
	Graph     *Graph
	Vars      Variables
	Now       time.Time

	svc          *Services
	logs         []models.ExecutionLog
	messages     []models.Message
	contactDirty bool
	isNew        bool
	startStatus  string
}

// Services exposes handler collaborators.
func (r *Run) Services() *Services {
	return r.svc
}

// Location returns the company timezone, defaulting to UTC.
func (r *Run) Location() *time.Location {
	if r.Company != nil && strings.TrimSpace(r.Company.Timezone) != "" {
		if loc, err := time.LoadLocation(r.Company.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Render interpolates a template against the contact and variables.
func (r *Run) Render(tpl string) string {
	return Render(tpl, r.lookup)
}

// RenderJSON interpolates a JSON template with escaped values.
func (r *Run) RenderJSON(tpl string) string {
	return RenderJSON(tpl, r.lookup)
}

func (r *Run) lookup(key string) (any, bool) {
	return Lookup(r.Contact, r.Vars, key)
}

// SendText sends an interpolated text message to the contact.
func (r *Run) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(r.Render(text))
	if text == "" {
		return nil
	}
	return r.send(ctx, gateway.Message{To: r.Contact.Number, Text: text})
}

// SendMedia sends a media message with an interpolated caption.
func (r *Run) SendMedia(ctx context.Context, url, mediaType, caption, fileName string) error {
	return r.send(ctx, gateway.Message{
		To:        r.Contact.Number,
		MediaURL:  r.Render(url),
		MediaType: mediaType,
		Caption:   r.Render(caption),
		FileName:  fileName,
	})
}

func (r *Run) send(ctx context.Context, msg gateway.Message) error {
	if r.svc == nil || r.svc.Sender == nil {
		return errors.New("flow: no gateway sender configured")
	}
	externalID, err := r.svc.Sender.Send(ctx, r.Company.ID, msg)
	if err != nil {
		metrics.OutboundMessages.WithLabelValues(msg.Kind(), "error").Inc()
		return err
	}
	metrics.OutboundMessages.WithLabelValues(msg.Kind(), "ok").Inc()

	body := msg.Text
	if body == "" {
		body = msg.Caption
	}
	execID := r.Execution.ID
	r.messages = append(r.messages, models.Message{
		CompanyID:   r.Company.ID,
		ContactID:   r.Contact.ID,
		ExecutionID: &execID,
		Direction:   models.DirectionOutbound,
		Body:        body,
		MediaURL:    msg.MediaURL,
		MediaType:   msg.MediaType,
		ExternalID:  externalID,
	})
	return nil
}

// MarkContactChanged schedules the contact row to be saved with the execution.
func (r *Run) MarkContactChanged() {
	r.contactDirty = true
}

func (r *Run) appendLog(node *Node, out Outcome, result string, detail string) {
	r.logs = append(r.logs, models.ExecutionLog{
		CompanyID:   r.Execution.CompanyID,
		ExecutionID: r.Execution.ID,
		Step:        r.Execution.Steps,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Handle:      out.Handle,
		Result:      result,
		Detail:      detail,
	})
}
