package flow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/logger"
	"github.com/charlesng35/engageflow/pkg/metrics"
	"github.com/charlesng35/engageflow/pkg/validator"
)

// Inbound handling outcomes reported in Result.Reason.
const (
	ReasonStarted   = "started"
	ReasonResumed   = "resumed"
	ReasonAttendant = "attendant"
	ReasonPaused    = "paused"
	ReasonNoFlow    = "no_flow"
)

// Triggers recorded on executions.
const (
	TriggerKeyword = "keyword"
	TriggerDefault = "default"
	TriggerManual  = "manual"
)

// EventExecutionUpdated is published after every persisted execution change.
const EventExecutionUpdated = "execution.updated"

const defaultMaxSteps = 100

var (
	// ErrInvalidInbound indicates an inbound message without company or number.
	ErrInvalidInbound = errors.New("flow: inbound message requires company and number")
	// ErrCompanyNotFound indicates the tenant does not exist.
	ErrCompanyNotFound = errors.New("flow: company not found")
	// ErrContactNotFound indicates the contact does not exist in the company.
	ErrContactNotFound = errors.New("flow: contact not found")
	// ErrExecutionNotFound indicates the execution does not exist in the company.
	ErrExecutionNotFound = errors.New("flow: execution not found")
	// ErrExecutionNotLive indicates the execution already finished.
	ErrExecutionNotLive = errors.New("flow: execution is not live")
	// ErrExecutionLive indicates the contact already has a live execution.
	ErrExecutionLive = errors.New("flow: contact already has a live execution")
	// ErrContactAttended indicates an agent or queue owns the contact's conversation.
	ErrContactAttended = errors.New("flow: contact is being attended")
	// ErrInvalidTransition indicates the requested status change is not allowed.
	ErrInvalidTransition = errors.New("flow: invalid execution status transition")
)

// InboundMessage is a message received from the WhatsApp gateway.
type InboundMessage struct {
	CompanyID  string
	Number     string
	Name       string
	Text       string
	MediaURL   string
	MediaType  string
	ExternalID string
}

// Result summarises how an inbound message was handled.
type Result struct {
	Handled     bool   `json:"handled"`
	Reason      string `json:"reason"`
	ContactID   string `json:"contact_id"`
	ExecutionID string `json:"execution_id,omitempty"`
	Status      string `json:"status,omitempty"`
	EndReason   string `json:"end_reason,omitempty"`
}

// ExecutionEvent is the realtime payload for execution changes.
type ExecutionEvent struct {
	ID            string    `json:"id"`
	FlowID        string    `json:"flow_id"`
	ContactID     string    `json:"contact_id"`
	Status        string    `json:"status"`
	CurrentNodeID string    `json:"current_node_id"`
	Waiting       bool      `json:"waiting"`
	EndReason     string    `json:"end_reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Dependencies are the collaborators the engine needs.
type Dependencies struct {
	Flows        FlowSource
	Contacts     ContactService
	Tickets      TicketService
	Appointments AppointmentBooker
	Emails       EmailQueue
	Sender       gateway.Sender
}

// Engine interprets flows for inbound messages, scheduled resumes and inactivity sweeps.
type Engine struct {
	db         *gorm.DB
	deps       Dependencies
	registry   *Registry
	locks      *Locker
	publisher  Publisher
	now        func() time.Time
	random     func() float64
	http       HTTPDoer
	httpTO     time.Duration
	maxSteps   int
	inactivity InactivitySettings
	log        *zap.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxSteps bounds the number of nodes run per activation.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRandom overrides the randomizer source.
func WithRandom(fn func() float64) Option {
	return func(e *Engine) {
		if fn != nil {
			e.random = fn
		}
	}
}

// WithRegistry overrides the node handler registry.
func WithRegistry(reg *Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithPublisher sets the realtime event publisher.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithHTTPClient sets the client and per-request timeout for webhook and api nodes.
func WithHTTPClient(doer HTTPDoer, timeout time.Duration) Option {
	return func(e *Engine) {
		if doer != nil {
			e.http = doer
		}
		if timeout > 0 {
			e.httpTO = timeout
		}
	}
}

// WithInactivityDefaults sets the settings used when neither the flow nor an
// inactivity node configures a timeout.
func WithInactivityDefaults(s InactivitySettings) Option {
	return func(e *Engine) {
		e.inactivity = s
	}
}

// NewEngine constructs the flow engine.
func NewEngine(db *gorm.DB, deps Dependencies, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("flow engine: db is required")
	}
	if deps.Flows == nil || deps.Contacts == nil || deps.Tickets == nil || deps.Sender == nil {
		return nil, errors.New("flow engine: flows, contacts, tickets and sender are required")
	}

	e := &Engine{
		db:       db,
		deps:     deps,
		registry: DefaultRegistry(),
		locks:    NewLocker(),
		now:      time.Now,
		random:   rand.Float64,
		http:     &http.Client{},
		httpTO:   defaultHTTPTimeout,
		maxSteps: defaultMaxSteps,
		log:      logger.WithModule("flow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) services() *Services {
	return &Services{
		Sender:       e.deps.Sender,
		Tickets:      e.deps.Tickets,
		Appointments: e.deps.Appointments,
		Emails:       e.deps.Emails,
		HTTP:         e.http,
		HTTPTimeout:  e.httpTO,
		Random:       e.random,
	}
}

// HandleInbound routes an inbound message to the contact's live execution, a
// triggered flow or the default flow.
func (e *Engine) HandleInbound(ctx context.Context, msg InboundMessage) (*Result, error) {
	ctx = ensuredContext(ctx)

	number := validator.NormalizePhone(msg.Number)
	if strings.TrimSpace(msg.CompanyID) == "" || number == "" {
		return nil, ErrInvalidInbound
	}

	company, err := e.company(ctx, msg.CompanyID)
	if err != nil {
		return nil, err
	}
	contact, err := e.deps.Contacts.Upsert(ctx, company.ID, number, msg.Name)
	if err != nil {
		return nil, fmt.Errorf("flow engine: upsert contact: %w", err)
	}

	unlock := e.locks.Lock(contactKey(company.ID, contact.ID))
	defer unlock()

	ticket, err := e.deps.Tickets.AttendedTicket(ctx, company.ID, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("flow engine: lookup ticket: %w", err)
	}
	if err := e.recordInbound(ctx, company.ID, contact.ID, ticket, msg); err != nil {
		return nil, err
	}

	result := &Result{ContactID: contact.ID}
	if ticket != nil {
		result.Reason = ReasonAttendant
		metrics.InboundMessages.WithLabelValues(ReasonAttendant).Inc()
		return result, nil
	}

	in := Input{Text: msg.Text, MediaURL: msg.MediaURL, MediaType: msg.MediaType}

	exec, err := e.liveExecution(ctx, company.ID, contact.ID)
	if err != nil {
		return nil, err
	}
	if exec != nil {
		if exec.Status == models.ExecutionPaused {
			e.log.Debug("input ignored for paused execution",
				zap.String("company_id", company.ID),
				zap.String("execution_id", exec.ID))
			metrics.InboundMessages.WithLabelValues(ReasonPaused).Inc()
			result.Reason = ReasonPaused
			result.ExecutionID = exec.ID
			result.Status = exec.Status
			return result, nil
		}

		run, err := e.loadRun(ctx, company, contact, exec)
		if err != nil {
			return e.abandon(ctx, exec, err, result)
		}
		e.resume(ctx, run, in)
		if err := e.persist(ctx, run); err != nil {
			return nil, err
		}
		metrics.InboundMessages.WithLabelValues(ReasonResumed).Inc()
		return e.result(result, ReasonResumed, run.Execution), nil
	}

	flow, trigger, err := e.selectFlow(ctx, company.ID, msg.Text)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		metrics.InboundMessages.WithLabelValues(ReasonNoFlow).Inc()
		result.Reason = ReasonNoFlow
		return result, nil
	}

	run, err := e.newRun(ctx, company, contact, flow, trigger, nil)
	if err != nil {
		return nil, err
	}
	run.Vars.Set(VarLastMessage, msg.Text)
	e.start(ctx, run)
	if err := e.persist(ctx, run); err != nil {
		return nil, err
	}
	metrics.InboundMessages.WithLabelValues(ReasonStarted).Inc()
	return e.result(result, ReasonStarted, run.Execution), nil
}

// Start launches a flow for a contact outside of an inbound message.
func (e *Engine) Start(ctx context.Context, companyID, flowID, contactID string, vars map[string]any) (*models.FlowBuilderExecution, error) {
	ctx = ensuredContext(ctx)

	company, err := e.company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	contact, err := e.contact(ctx, companyID, contactID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(contactKey(company.ID, contact.ID))
	defer unlock()

	live, err := e.liveExecution(ctx, company.ID, contact.ID)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, ErrExecutionLive
	}
	ticket, err := e.deps.Tickets.AttendedTicket(ctx, company.ID, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("flow engine: lookup ticket: %w", err)
	}
	if ticket != nil {
		return nil, ErrContactAttended
	}

	flow, err := e.deps.Flows.GetFlow(ctx, company.ID, flowID)
	if err != nil {
		return nil, err
	}
	run, err := e.newRun(ctx, company, contact, flow, TriggerManual, vars)
	if err != nil {
		return nil, err
	}
	e.start(ctx, run)
	if err := e.persist(ctx, run); err != nil {
		return nil, err
	}
	return run.Execution, nil
}

// ResumeDue continues paused executions whose resume time is at or before now.
func (e *Engine) ResumeDue(ctx context.Context, now time.Time) (int, error) {
	ctx = ensuredContext(ctx)

	var due []models.FlowBuilderExecution
	if err := e.db.WithContext(ctx).
		Where("status = ? AND resume_at IS NOT NULL AND resume_at <= ?", models.ExecutionPaused, now).
		Order("resume_at ASC").
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("flow engine: list due executions: %w", err)
	}

	var (
		errs    error
		resumed int
	)
	for i := range due {
		ok, err := e.resumeDueOne(ctx, due[i].CompanyID, due[i].ID, now)
		errs = multierr.Append(errs, err)
		if ok {
			resumed++
		}
	}
	return resumed, errs
}

func (e *Engine) resumeDueOne(ctx context.Context, companyID, execID string, now time.Time) (bool, error) {
	exec, unlock, err := e.lockExecution(ctx, companyID, execID)
	if err != nil {
		return false, err
	}
	defer unlock()

	if exec.Status != models.ExecutionPaused || exec.ResumeAt == nil || exec.ResumeAt.After(now) {
		return false, nil
	}
	run, err := e.loadRunFor(ctx, exec)
	if err != nil {
		_, abandonErr := e.abandon(ctx, exec, err, &Result{})
		return false, abandonErr
	}
	run.Now = now
	e.continueAfterPause(ctx, run)
	if err := e.persist(ctx, run); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel stops a live execution.
func (e *Engine) Cancel(ctx context.Context, companyID, execID string) (*models.FlowBuilderExecution, error) {
	ctx = ensuredContext(ctx)
	exec, unlock, err := e.lockExecution(ctx, companyID, execID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !exec.Live() {
		return nil, ErrExecutionNotLive
	}
	run := &Run{Execution: exec, Now: e.now(), startStatus: exec.Status}
	if run.Vars, err = DecodeVariables(exec.Variables); err != nil {
		return nil, err
	}
	e.finish(run, EndCancelled)
	if err := e.persist(ctx, run); err != nil {
		return nil, err
	}
	return exec, nil
}

// Pause suspends an active execution; inbound messages are ignored until it is resumed.
func (e *Engine) Pause(ctx context.Context, companyID, execID string) (*models.FlowBuilderExecution, error) {
	ctx = ensuredContext(ctx)
	exec, unlock, err := e.lockExecution(ctx, companyID, execID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if exec.Status != models.ExecutionActive {
		return nil, ErrInvalidTransition
	}
	run := &Run{Execution: exec, Now: e.now(), startStatus: exec.Status}
	if run.Vars, err = DecodeVariables(exec.Variables); err != nil {
		return nil, err
	}
	exec.Status = models.ExecutionPaused
	exec.ResumeAt = nil
	if err := e.persist(ctx, run); err != nil {
		return nil, err
	}
	return exec, nil
}

// ResumeExecution reactivates a paused execution. A waiting execution goes back
// to waiting for input; an execution paused between nodes continues at once.
func (e *Engine) ResumeExecution(ctx context.Context, companyID, execID string) (*models.FlowBuilderExecution, error) {
	ctx = ensuredContext(ctx)
	exec, unlock, err := e.lockExecution(ctx, companyID, execID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if exec.Status != models.ExecutionPaused {
		return nil, ErrInvalidTransition
	}

	if exec.Waiting {
		run := &Run{Execution: exec, Now: e.now(), startStatus: exec.Status}
		if run.Vars, err = DecodeVariables(exec.Variables); err != nil {
			return nil, err
		}
		exec.Status = models.ExecutionActive
		exec.LastInteractionAt = run.Now
		if err := e.persist(ctx, run); err != nil {
			return nil, err
		}
		return exec, nil
	}

	run, err := e.loadRunFor(ctx, exec)
	if err != nil {
		_, abandonErr := e.abandon(ctx, exec, err, &Result{})
		return nil, multierr.Append(err, abandonErr)
	}
	e.continueAfterPause(ctx, run)
	if err := e.persist(ctx, run); err != nil {
		return nil, err
	}
	return run.Execution, nil
}

func (e *Engine) start(ctx context.Context, run *Run) {
	metrics.ExecutionsStarted.WithLabelValues(run.Execution.Trigger).Inc()
	start, ok := run.Graph.Start()
	if !ok {
		e.fail(run, EndError, "flow has no start node")
		return
	}
	e.walk(ctx, run, start.ID, 0)
}

func (e *Engine) resume(ctx context.Context, run *Run, in Input) {
	exec := run.Execution
	run.Vars.Set(VarLastMessage, in.Text)
	exec.LastInteractionAt = run.Now
	exec.WarningsSent = 0
	exec.LastWarningAt = nil

	node, ok := run.Graph.Node(exec.CurrentNodeID)
	if !ok {
		e.fail(run, EndError, fmt.Sprintf("node %q no longer exists in flow version %d", exec.CurrentNodeID, run.Flow.Version))
		return
	}
	if !exec.Waiting {
		e.walkNext(ctx, run, node, 0)
		return
	}

	handler, ok := e.registry.Get(node.Type)
	resumer, canResume := handler.(Resumer)
	if !ok || !canResume {
		e.fail(run, EndError, fmt.Sprintf("node %q (%s) cannot receive input", node.ID, node.Type))
		return
	}

	exec.Waiting = false
	exec.Steps++
	out, err := resumer.Resume(ctx, run, node, in)
	next, more := e.settle(run, node, out, err)
	if more {
		e.walk(ctx, run, next, 1)
	}
}

func (e *Engine) continueAfterPause(ctx context.Context, run *Run) {
	exec := run.Execution
	exec.Status = models.ExecutionActive
	exec.ResumeAt = nil
	exec.LastInteractionAt = run.Now

	node, ok := run.Graph.Node(exec.CurrentNodeID)
	if !ok {
		e.fail(run, EndError, fmt.Sprintf("node %q no longer exists", exec.CurrentNodeID))
		return
	}
	e.walkNext(ctx, run, node, 0)
}

func (e *Engine) walkNext(ctx context.Context, run *Run, node *Node, used int) {
	next := run.Graph.Next(node.ID, HandleDefault)
	if next == "" {
		e.finish(run, EndOfFlow)
		return
	}
	e.walk(ctx, run, next, used)
}

// walk runs nodes from nodeID until one waits, pauses or ends the execution.
func (e *Engine) walk(ctx context.Context, run *Run, nodeID string, used int) {
	for steps := used; ; steps++ {
		if steps >= e.maxSteps {
			e.fail(run, EndStepLimit, fmt.Sprintf("step limit of %d exceeded", e.maxSteps))
			return
		}
		node, ok := run.Graph.Node(nodeID)
		if !ok {
			e.fail(run, EndError, fmt.Sprintf("node %q not found", nodeID))
			return
		}
		handler, ok := e.registry.Get(node.Type)
		if !ok {
			e.fail(run, EndError, fmt.Sprintf("node %q has unknown type %q", node.ID, node.Type))
			return
		}

		run.Execution.CurrentNodeID = node.ID
		run.Execution.Steps++
		out, err := handler.Execute(ctx, run, node)
		next, more := e.settle(run, node, out, err)
		if !more {
			return
		}
		nodeID = next
	}
}

// settle applies a handler outcome and returns the next node when the walk continues.
func (e *Engine) settle(run *Run, node *Node, out Outcome, err error) (string, bool) {
	exec := run.Execution
	if err != nil {
		metrics.NodeRuns.WithLabelValues(node.Type, "error").Inc()
		run.appendLog(node, Outcome{Handle: HandleError}, "error", err.Error())
		if run.Graph.HasEdge(node.ID, HandleError) {
			run.Vars.Set(VarLastError, err.Error())
			return run.Graph.Next(node.ID, HandleError), true
		}
		e.fail(run, EndError, fmt.Sprintf("node %q (%s): %v", node.ID, node.Type, err))
		return "", false
	}
	metrics.NodeRuns.WithLabelValues(node.Type, "ok").Inc()

	switch {
	case out.End != "":
		run.appendLog(node, out, "end", out.Detail)
		e.finish(run, out.End)
		return "", false
	case out.Wait:
		run.appendLog(node, out, "wait", out.Detail)
		exec.Waiting = true
		exec.Status = models.ExecutionActive
		return "", false
	case out.Pause > 0:
		run.appendLog(node, out, "pause", out.Detail)
		resumeAt := run.Now.Add(out.Pause)
		exec.Status = models.ExecutionPaused
		exec.Waiting = false
		exec.ResumeAt = &resumeAt
		return "", false
	}

	run.appendLog(node, out, "ok", out.Detail)
	next := run.Graph.Next(node.ID, out.Handle)
	if next == "" {
		e.finish(run, EndOfFlow)
		return "", false
	}
	return next, true
}

func (e *Engine) finish(run *Run, reason EndReason) {
	exec := run.Execution
	exec.Status = models.ExecutionCompleted
	if reason == EndInactivity {
		exec.Status = models.ExecutionInactive
	}
	exec.EndReason = string(reason)
	exec.Waiting = false
	exec.ResumeAt = nil
	finished := run.Now
	exec.FinishedAt = &finished
}

func (e *Engine) fail(run *Run, reason EndReason, message string) {
	exec := run.Execution
	exec.Status = models.ExecutionError
	exec.EndReason = string(reason)
	exec.ErrorMessage = message
	exec.Waiting = false
	exec.ResumeAt = nil
	finished := run.Now
	exec.FinishedAt = &finished
}

// abandon marks an execution as failed when its flow can no longer be loaded.
func (e *Engine) abandon(ctx context.Context, exec *models.FlowBuilderExecution, cause error, result *Result) (*Result, error) {
	run := &Run{Execution: exec, Now: e.now(), startStatus: exec.Status}
	vars, err := DecodeVariables(exec.Variables)
	if err != nil {
		vars = Variables{}
	}
	run.Vars = vars
	e.fail(run, EndError, cause.Error())
	if err := e.persist(ctx, run); err != nil {
		return nil, err
	}
	return e.result(result, ReasonResumed, exec), nil
}

func (e *Engine) result(r *Result, reason string, exec *models.FlowBuilderExecution) *Result {
	r.Handled = true
	r.Reason = reason
	r.ExecutionID = exec.ID
	r.Status = exec.Status
	r.EndReason = exec.EndReason
	return r
}

func (e *Engine) newRun(ctx context.Context, company *models.Company, contact *models.Contact, flow *models.FlowBuilder, trigger string, vars map[string]any) (*Run, error) {
	graph, err := e.graph(ctx, flow)
	if err != nil {
		return nil, err
	}

	now := e.now()
	exec := &models.FlowBuilderExecution{
		CompanyID:         company.ID,
		FlowID:            flow.ID,
		FlowVersion:       flow.Version,
		ContactID:         contact.ID,
		Status:            models.ExecutionActive,
		Trigger:           trigger,
		LastInteractionAt: now,
	}
	exec.ID = uuid.NewString()

	bag := Variables{}
	for key, value := range vars {
		bag[key] = value
	}

	return &Run{
		Company:   company,
		Flow:      flow,
		Contact:   contact,
		Execution: exec,
		Graph:     graph,
		Vars:      bag,
		Now:       now,
		svc:       e.services(),
		isNew:     true,
	}, nil
}

func (e *Engine) loadRun(ctx context.Context, company *models.Company, contact *models.Contact, exec *models.FlowBuilderExecution) (*Run, error) {
	flow, err := e.deps.Flows.GetFlow(ctx, exec.CompanyID, exec.FlowID)
	if err != nil {
		return nil, err
	}
	graph, err := e.graph(ctx, flow)
	if err != nil {
		return nil, err
	}
	vars, err := DecodeVariables(exec.Variables)
	if err != nil {
		return nil, err
	}
	return &Run{
		Company:     company,
		Flow:        flow,
		Contact:     contact,
		Execution:   exec,
		Graph:       graph,
		Vars:        vars,
		Now:         e.now(),
		svc:         e.services(),
		startStatus: exec.Status,
	}, nil
}

func (e *Engine) loadRunFor(ctx context.Context, exec *models.FlowBuilderExecution) (*Run, error) {
	company, err := e.company(ctx, exec.CompanyID)
	if err != nil {
		return nil, err
	}
	contact, err := e.contact(ctx, exec.CompanyID, exec.ContactID)
	if err != nil {
		return nil, err
	}
	return e.loadRun(ctx, company, contact, exec)
}

func (e *Engine) graph(ctx context.Context, flow *models.FlowBuilder) (*Graph, error) {
	graph, err := e.deps.Flows.LoadGraph(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("flow engine: load graph for flow %s: %w", flow.ID, err)
	}
	if err := graph.ValidateWith(e.registry); err != nil {
		return nil, fmt.Errorf("flow engine: flow %s is invalid: %w", flow.ID, err)
	}
	return graph, nil
}

// selectFlow picks an active exact-keyword flow matching the text, then a
// contains-keyword flow, then the company default flow. Ties go to the
// oldest flow.
func (e *Engine) selectFlow(ctx context.Context, companyID, text string) (*models.FlowBuilder, string, error) {
	flows, err := e.deps.Flows.ActiveFlows(ctx, companyID)
	if err != nil {
		return nil, "", fmt.Errorf("flow engine: list active flows: %w", err)
	}

	for _, trigger := range []string{models.TriggerExact, models.TriggerContains} {
		for i := range flows {
			if flows[i].TriggerType == trigger && MatchesTrigger(&flows[i], text) {
				return &flows[i], TriggerKeyword, nil
			}
		}
	}
	for i := range flows {
		if flows[i].IsDefault {
			return &flows[i], TriggerDefault, nil
		}
	}
	return nil, "", nil
}

// MatchesTrigger reports whether text triggers the flow. Matching is case-insensitive.
func MatchesTrigger(flow *models.FlowBuilder, text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, keyword := range flow.Keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		switch flow.TriggerType {
		case models.TriggerExact:
			if text == keyword {
				return true
			}
		case models.TriggerContains:
			if strings.Contains(text, keyword) {
				return true
			}
		}
	}
	return false
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
