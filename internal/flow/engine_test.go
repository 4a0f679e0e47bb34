package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/database/testutil"
	"github.com/charlesng35/engageflow/internal/models"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type dbFlows struct{ db *gorm.DB }

func (f dbFlows) ActiveFlows(ctx context.Context, companyID string) ([]models.FlowBuilder, error) {
	var flows []models.FlowBuilder
	err := f.db.WithContext(ctx).Where("company_id = ? AND active = ?", companyID, true).
		Order("created_at ASC").Find(&flows).Error
	return flows, err
}

func (f dbFlows) GetFlow(ctx context.Context, companyID, flowID string) (*models.FlowBuilder, error) {
	var flow models.FlowBuilder
	if err := f.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, flowID).First(&flow).Error; err != nil {
		return nil, err
	}
	return &flow, nil
}

func (dbFlows) LoadGraph(_ context.Context, flow *models.FlowBuilder) (*Graph, error) {
	return ParseGraph(flow.Nodes, flow.Edges)
}

type dbContacts struct{ db *gorm.DB }

func (c dbContacts) Upsert(ctx context.Context, companyID, number, name string) (*models.Contact, error) {
	contact := models.Contact{CompanyID: companyID, Number: number, Name: name}
	err := c.db.WithContext(ctx).
		Where(models.Contact{CompanyID: companyID, Number: number}).
		FirstOrCreate(&contact).Error
	return &contact, err
}

type dbTickets struct{ db *gorm.DB }

func (t dbTickets) AttendedTicket(ctx context.Context, companyID, contactID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := t.db.WithContext(ctx).
		Where("company_id = ? AND contact_id = ? AND status <> ? AND (user_id IS NOT NULL OR queue_id IS NOT NULL)",
			companyID, contactID, models.TicketStatusClosed).
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (t dbTickets) Transfer(ctx context.Context, companyID, contactID string, queueID, userID *string, lastMessage string) (*models.Ticket, error) {
	ticket := &models.Ticket{
		CompanyID:   companyID,
		ContactID:   contactID,
		QueueID:     queueID,
		UserID:      userID,
		Status:      models.TicketStatusPending,
		LastMessage: lastMessage,
	}
	return ticket, t.db.WithContext(ctx).Omit("Contact", "Queue", "User").Create(ticket).Error
}

type fakeBooker struct {
	mu     sync.Mutex
	booked []*models.Appointment
}

func (b *fakeBooker) Book(_ context.Context, appt *models.Appointment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.booked {
		if appt.StartsAt.Before(existing.EndsAt) && existing.StartsAt.Before(appt.EndsAt) {
			return fmt.Errorf("book: %w", ErrSlotTaken)
		}
	}
	appt.ID = uuid.NewString()
	b.booked = append(b.booked, appt)
	return nil
}

type queuedEmail struct {
	to, subject, body string
}

type fakeEmails struct {
	mu     sync.Mutex
	sent   []queuedEmail
	reject error
}

func (f *fakeEmails) Enqueue(_ context.Context, companyID, to, subject, body string, _ time.Time) (*models.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != nil {
		return nil, f.reject
	}
	f.sent = append(f.sent, queuedEmail{to: to, subject: subject, body: body})
	return &models.Email{CompanyID: companyID, To: to, Subject: subject, Body: body, Status: models.EmailPending}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ExecutionEvent
}

func (p *recordingPublisher) PublishCompany(_ string, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event == EventExecutionUpdated {
		p.events = append(p.events, data.(ExecutionEvent))
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

type engineEnv struct {
	db        *gorm.DB
	engine    *Engine
	company   *models.Company
	sender    *recordingSender
	clock     *fakeClock
	booker    *fakeBooker
	emails    *fakeEmails
	publisher *recordingPublisher
}

func newEngineEnv(t *testing.T, opts ...Option) *engineEnv {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	env := &engineEnv{
		db:        db,
		company:   testutil.MustCreateCompany(t, db, "Acme"),
		sender:    &recordingSender{},
		clock:     &fakeClock{now: testNow},
		booker:    &fakeBooker{},
		emails:    &fakeEmails{},
		publisher: &recordingPublisher{},
	}
	base := []Option{WithClock(env.clock.Now), WithPublisher(env.publisher)}
	engine, err := NewEngine(db, Dependencies{
		Flows:        dbFlows{db: db},
		Contacts:     dbContacts{db: db},
		Tickets:      dbTickets{db: db},
		Appointments: env.booker,
		Emails:       env.emails,
		Sender:       env.sender,
	}, append(base, opts...)...)
	require.NoError(t, err)
	env.engine = engine
	return env
}

func (env *engineEnv) flow(t *testing.T, nodes, edges string, mutate func(*models.FlowBuilder)) *models.FlowBuilder {
	t.Helper()
	flow := &models.FlowBuilder{
		CompanyID: env.company.ID,
		Name:      "flow-" + uuid.NewString()[:8],
		Version:   1,
		Active:    true,
		IsDefault: true,
		Nodes:     datatypes.JSON(nodes),
		Edges:     datatypes.JSON(edges),
	}
	if mutate != nil {
		mutate(flow)
	}
	require.NoError(t, env.db.Create(flow).Error)
	return flow
}

func (env *engineEnv) inbound(t *testing.T, number, text string) *Result {
	t.Helper()
	res, err := env.engine.HandleInbound(context.Background(), InboundMessage{
		CompanyID: env.company.ID,
		Number:    number,
		Name:      "Ana",
		Text:      text,
	})
	require.NoError(t, err)
	return res
}

func (env *engineEnv) execution(t *testing.T, id string) *models.FlowBuilderExecution {
	t.Helper()
	var exec models.FlowBuilderExecution
	require.NoError(t, env.db.First(&exec, "id = ?", id).Error)
	return &exec
}

func (env *engineEnv) vars(t *testing.T, id string) Variables {
	t.Helper()
	vars, err := DecodeVariables(env.execution(t, id).Variables)
	require.NoError(t, err)
	return vars
}

const questionNodes = `[
	{"id":"start","type":"start"},
	{"id":"hello","type":"message","data":{"text":"Hi {{name}}"}},
	{"id":"ask","type":"question","data":{"text":"Your email?","variable":"email_answer","validation":"email","errorMessage":"That is not an email","maxAttempts":2}},
	{"id":"thanks","type":"end","data":{"message":"Thanks, we will write to {{email_answer}}"}},
	{"id":"giveup","type":"message","data":{"text":"Let us try later"}}
]`

const questionEdges = `[
	{"id":"e1","source":"start","target":"hello"},
	{"id":"e2","source":"hello","target":"ask"},
	{"id":"e3","source":"ask","target":"thanks"},
	{"id":"e4","source":"ask","target":"giveup","sourceHandle":"invalid"}
]`

func TestHandleInboundQuestionFlow(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, questionNodes, questionEdges, nil)

	res := env.inbound(t, "+55 11 99999-0000", "hello")
	require.True(t, res.Handled)
	require.Equal(t, ReasonStarted, res.Reason)
	require.Equal(t, models.ExecutionActive, res.Status)
	require.Equal(t, []string{"Hi Ana", "Your email?"}, env.sender.texts())

	exec := env.execution(t, res.ExecutionID)
	require.True(t, exec.Waiting)
	require.Equal(t, "ask", exec.CurrentNodeID)
	require.Equal(t, TriggerDefault, exec.Trigger)
	require.Equal(t, "hello", env.vars(t, exec.ID)[VarLastMessage])

	res = env.inbound(t, "5511999990000", "not an email")
	require.Equal(t, ReasonResumed, res.Reason)
	require.Equal(t, "That is not an email", env.sender.last())
	require.Equal(t, 1, env.execution(t, res.ExecutionID).Attempts)

	res = env.inbound(t, "5511999990000", "Ana@Example.com")
	require.Equal(t, models.ExecutionCompleted, res.Status)
	require.Equal(t, string(EndCompleted), res.EndReason)
	require.Equal(t, "Thanks, we will write to ana@example.com", env.sender.last())
	require.Equal(t, "ana@example.com", env.vars(t, res.ExecutionID)["email_answer"])

	var logs []models.ExecutionLog
	require.NoError(t, env.db.Where("execution_id = ?", res.ExecutionID).Order("step").Find(&logs).Error)
	require.NotEmpty(t, logs)
	require.Equal(t, "start", logs[0].NodeID)
	require.Equal(t, "thanks", logs[len(logs)-1].NodeID)

	var inbound, outbound int64
	env.db.Model(&models.Message{}).Where("direction = ?", models.DirectionInbound).Count(&inbound)
	env.db.Model(&models.Message{}).Where("direction = ?", models.DirectionOutbound).Count(&outbound)
	require.EqualValues(t, 3, inbound)
	require.EqualValues(t, 4, outbound)

	var contacts int64
	env.db.Model(&models.Contact{}).Count(&contacts)
	require.EqualValues(t, 1, contacts, "numbers are normalised before upsert")
}

func TestInvalidAnswersFollowInvalidEdge(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, questionNodes, questionEdges, nil)

	env.inbound(t, "5511999990000", "hi")
	env.inbound(t, "5511999990000", "nope")
	res := env.inbound(t, "5511999990000", "still nope")

	require.Equal(t, models.ExecutionCompleted, res.Status)
	require.Equal(t, string(EndOfFlow), res.EndReason)
	require.Equal(t, "Let us try later", env.sender.last())
}

func TestInvalidAnswersWithoutInvalidEdgeEndExecution(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"ask","type":"question","data":{"text":"Age?","variable":"age","validation":"number","maxAttempts":1}}
	]`, `[{"id":"e1","source":"start","target":"ask"}]`, nil)

	env.inbound(t, "5511999990000", "hi")
	res := env.inbound(t, "5511999990000", "old")
	require.Equal(t, models.ExecutionCompleted, res.Status)
	require.Equal(t, string(EndInvalidInput), res.EndReason)
}

func TestMenuRoutesByNumberAndLabel(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"menu","type":"menu","data":{"text":"Choose","variable":"choice","options":[{"label":"Sales","value":"sales"},{"label":"Support"}]}},
		{"id":"sales","type":"end","data":{"message":"Sales here"}},
		{"id":"support","type":"end","data":{"message":"Support here"}}
	]`, `[
		{"id":"e1","source":"start","target":"menu"},
		{"id":"e2","source":"menu","target":"sales","sourceHandle":"1"},
		{"id":"e3","source":"menu","target":"support","sourceHandle":"2"}
	]`, nil)

	env.inbound(t, "5511000000001", "hi")
	require.Equal(t, "Choose\n\n1 - Sales\n2 - Support", env.sender.last())
	res := env.inbound(t, "5511000000001", "2")
	require.Equal(t, "Support here", env.sender.last())
	require.Equal(t, models.ExecutionCompleted, res.Status)
	require.Equal(t, "Support", env.vars(t, res.ExecutionID)["choice"])

	env.inbound(t, "5511000000002", "hi")
	res = env.inbound(t, "5511000000002", "SALES")
	require.Equal(t, "Sales here", env.sender.last())
	require.Equal(t, "sales", env.vars(t, res.ExecutionID)["choice"])
}

func TestFlowSelectionByKeywordThenDefault(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[{"id":"start","type":"start"},{"id":"m","type":"message","data":{"text":"default flow"}}]`,
		`[{"id":"e1","source":"start","target":"m"}]`, nil)
	env.flow(t, `[{"id":"start","type":"start"},{"id":"m","type":"message","data":{"text":"price flow"}}]`,
		`[{"id":"e1","source":"start","target":"m"}]`, func(f *models.FlowBuilder) {
			f.IsDefault = false
			f.TriggerType = models.TriggerContains
			f.Keywords = datatypes.JSONSlice[string]{"price"}
		})
	env.flow(t, `[{"id":"start","type":"start"},{"id":"m","type":"message","data":{"text":"exact flow"}}]`,
		`[{"id":"e1","source":"start","target":"m"}]`, func(f *models.FlowBuilder) {
			f.IsDefault = false
			f.TriggerType = models.TriggerExact
			f.Keywords = datatypes.JSONSlice[string]{"menu"}
		})

	res := env.inbound(t, "5511000000001", "What is the PRICE?")
	require.Equal(t, "price flow", env.sender.last())
	require.Equal(t, TriggerKeyword, env.execution(t, res.ExecutionID).Trigger)

	env.inbound(t, "5511000000002", "show me the menu")
	require.Equal(t, "default flow", env.sender.last(), "exact keywords must match the whole text")

	env.inbound(t, "5511000000003", " Menu ")
	require.Equal(t, "exact flow", env.sender.last())
}

func TestExactKeywordBeatsOlderContainsFlow(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[{"id":"start","type":"start"},{"id":"m","type":"message","data":{"text":"contains flow"}}]`,
		`[{"id":"e1","source":"start","target":"m"}]`, func(f *models.FlowBuilder) {
			f.IsDefault = false
			f.TriggerType = models.TriggerContains
			f.Keywords = datatypes.JSONSlice[string]{"order"}
		})
	env.flow(t, `[{"id":"start","type":"start"},{"id":"m","type":"message","data":{"text":"exact flow"}}]`,
		`[{"id":"e1","source":"start","target":"m"}]`, func(f *models.FlowBuilder) {
			f.IsDefault = false
			f.TriggerType = models.TriggerExact
			f.Keywords = datatypes.JSONSlice[string]{"order status"}
		})

	env.inbound(t, "5511000000001", "Order Status")
	require.Equal(t, "exact flow", env.sender.last())

	env.inbound(t, "5511000000002", "where is my order status?")
	require.Equal(t, "contains flow", env.sender.last())
}

func TestNoFlowAvailable(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[{"id":"start","type":"start"}]`, `[]`, func(f *models.FlowBuilder) {
		f.IsDefault = false
	})

	res := env.inbound(t, "5511000000001", "hello")
	require.False(t, res.Handled)
	require.Equal(t, ReasonNoFlow, res.Reason)
	require.NotEmpty(t, res.ContactID)
	require.Empty(t, env.sender.texts())
}

func TestInboundValidation(t *testing.T) {
	env := newEngineEnv(t)
	_, err := env.engine.HandleInbound(context.Background(), InboundMessage{CompanyID: env.company.ID})
	require.ErrorIs(t, err, ErrInvalidInbound)
	_, err = env.engine.HandleInbound(context.Background(), InboundMessage{CompanyID: uuid.NewString(), Number: "5511000000001"})
	require.ErrorIs(t, err, ErrCompanyNotFound)
}

func TestStepLimitFailsExecution(t *testing.T) {
	env := newEngineEnv(t, WithMaxSteps(5))
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"a","type":"switch","data":{"conditions":[{"variable":"x","operator":"exists"}]}},
		{"id":"b","type":"switch","data":{"conditions":[{"variable":"x","operator":"exists"}]}}
	]`, `[
		{"id":"e1","source":"start","target":"a"},
		{"id":"e2","source":"a","target":"b"},
		{"id":"e3","source":"b","target":"a"}
	]`, nil)

	res := env.inbound(t, "5511000000001", "loop")
	require.Equal(t, models.ExecutionError, res.Status)
	require.Equal(t, string(EndStepLimit), res.EndReason)
	exec := env.execution(t, res.ExecutionID)
	require.Equal(t, 5, exec.Steps)
	require.Contains(t, exec.ErrorMessage, "step limit")
	require.NotNil(t, exec.FinishedAt)
}

const webhookNodes = `[
	{"id":"start","type":"start"},
	{"id":"hook","type":"webhook","data":{"url":"https://crm.example.com/hook"}},
	{"id":"ok","type":"end","data":{"message":"synced"}},
	{"id":"failed","type":"end","data":{"message":"failed: {{last_error}}"}}
]`

func TestHandlerErrorFollowsErrorEdge(t *testing.T) {
	failing := doerFunc(func(*http.Request) (*http.Response, error) { return nil, errors.New("connection refused") })
	env := newEngineEnv(t, WithHTTPClient(failing, time.Second))
	env.flow(t, webhookNodes, `[
		{"id":"e1","source":"start","target":"hook"},
		{"id":"e2","source":"hook","target":"ok"},
		{"id":"e3","source":"hook","target":"failed","sourceHandle":"error"}
	]`, nil)

	res := env.inbound(t, "5511000000001", "go")
	require.Equal(t, models.ExecutionCompleted, res.Status)
	require.Contains(t, env.sender.last(), "connection refused")
	require.Contains(t, env.vars(t, res.ExecutionID)[VarLastError], "connection refused")

	var errorLogs int64
	env.db.Model(&models.ExecutionLog{}).Where("execution_id = ? AND result = ?", res.ExecutionID, "error").Count(&errorLogs)
	require.EqualValues(t, 1, errorLogs)
}

func TestHandlerErrorWithoutErrorEdgeFailsExecution(t *testing.T) {
	failing := doerFunc(func(*http.Request) (*http.Response, error) { return nil, errors.New("timeout") })
	env := newEngineEnv(t, WithHTTPClient(failing, time.Second))
	env.flow(t, webhookNodes, `[
		{"id":"e1","source":"start","target":"hook"},
		{"id":"e2","source":"hook","target":"ok"}
	]`, nil)

	res := env.inbound(t, "5511000000001", "go")
	require.Equal(t, models.ExecutionError, res.Status)
	require.Equal(t, string(EndError), res.EndReason)
	require.Contains(t, env.execution(t, res.ExecutionID).ErrorMessage, "timeout")
}

func TestAttendantHandoffSuppressesFlow(t *testing.T) {
	env := newEngineEnv(t)
	queue := &models.Queue{CompanyID: env.company.ID, Name: "Support"}
	require.NoError(t, env.db.Create(queue).Error)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"human","type":"attendant","data":{"message":"Connecting you to {{name}}'s agent","queueId":"`+queue.ID+`"}}
	]`, `[{"id":"e1","source":"start","target":"human"}]`, nil)

	res := env.inbound(t, "5511000000001", "I need help")
	require.Equal(t, models.ExecutionCompleted, res.Status)
	require.Equal(t, string(EndTransferred), res.EndReason)

	var ticket models.Ticket
	require.NoError(t, env.db.Where("contact_id = ?", res.ContactID).First(&ticket).Error)
	require.Equal(t, queue.ID, *ticket.QueueID)
	require.Equal(t, "I need help", ticket.LastMessage)
	require.Equal(t, ticket.ID, env.vars(t, res.ExecutionID)["ticket_id"])

	sent := len(env.sender.texts())
	res = env.inbound(t, "5511000000001", "hello?")
	require.False(t, res.Handled)
	require.Equal(t, ReasonAttendant, res.Reason)
	require.Len(t, env.sender.texts(), sent)

	var executions int64
	env.db.Model(&models.FlowBuilderExecution{}).Count(&executions)
	require.EqualValues(t, 1, executions)

	var msg models.Message
	require.NoError(t, env.db.Where("body = ?", "hello?").First(&msg).Error)
	require.Equal(t, ticket.ID, *msg.TicketID)
}

func TestAtMostOneLiveExecutionPerContact(t *testing.T) {
	env := newEngineEnv(t)
	testutil.MustCreateContact(t, env.db, env.company.ID, "5511000000001", "Ana")
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"menu","type":"menu","data":{"text":"Pick","maxAttempts":100,"options":[{"label":"Only"}]}}
	]`, `[{"id":"e1","source":"start","target":"menu"}]`, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.engine.HandleInbound(context.Background(), InboundMessage{
				CompanyID: env.company.ID, Number: "5511000000001", Text: fmt.Sprintf("zzz-%d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var executions []models.FlowBuilderExecution
	require.NoError(t, env.db.Find(&executions).Error)
	require.Len(t, executions, 1)
	require.Equal(t, models.ExecutionActive, executions[0].Status)
	require.Equal(t, 9, executions[0].Attempts)
}

func TestIntervalPauseAndResumeDue(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"before","type":"message","data":{"text":"before"}},
		{"id":"wait","type":"interval","data":{"seconds":60}},
		{"id":"after","type":"message","data":{"text":"after"}}
	]`, `[
		{"id":"e1","source":"start","target":"before"},
		{"id":"e2","source":"before","target":"wait"},
		{"id":"e3","source":"wait","target":"after"}
	]`, nil)

	res := env.inbound(t, "5511000000001", "hi")
	require.Equal(t, models.ExecutionPaused, res.Status)
	exec := env.execution(t, res.ExecutionID)
	require.NotNil(t, exec.ResumeAt)
	require.True(t, exec.ResumeAt.Equal(testNow.Add(time.Minute)))

	res = env.inbound(t, "5511000000001", "are you there?")
	require.Equal(t, ReasonPaused, res.Reason)
	require.Equal(t, []string{"before"}, env.sender.texts())

	resumed, err := env.engine.ResumeDue(context.Background(), env.clock.Advance(30*time.Second))
	require.NoError(t, err)
	require.Zero(t, resumed)

	resumed, err = env.engine.ResumeDue(context.Background(), env.clock.Advance(31*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, resumed)
	require.Equal(t, []string{"before", "after"}, env.sender.texts())

	exec = env.execution(t, exec.ID)
	require.Equal(t, models.ExecutionCompleted, exec.Status)
	require.Equal(t, string(EndOfFlow), exec.EndReason)
	require.Nil(t, exec.ResumeAt)
}

func TestInactivityWarnsThenTransfers(t *testing.T) {
	env := newEngineEnv(t)
	queue := &models.Queue{CompanyID: env.company.ID, Name: "Follow-up"}
	require.NoError(t, env.db.Create(queue).Error)
	env.flow(t, questionNodes, questionEdges, func(f *models.FlowBuilder) {
		f.InactivityTimeout = 60
		f.InactivityMaxWarnings = 1
		f.InactivityWarningMessage = "Still there, {{name}}?"
		f.InactivityEndMessage = "Closing for now"
		f.InactivityTransferQueueID = &queue.ID
	})

	res := env.inbound(t, "5511000000001", "hi")

	swept, err := env.engine.SweepInactive(context.Background(), env.clock.Advance(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, swept)

	swept, err = env.engine.SweepInactive(context.Background(), env.clock.Advance(31*time.Second))
	require.NoError(t, err)
	require.Equal(t, SweepResult{Warned: 1}, swept)
	require.Equal(t, "Still there, Ana?", env.sender.last())

	swept, err = env.engine.SweepInactive(context.Background(), env.clock.Advance(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, swept, "the warning restarts the timeout")

	swept, err = env.engine.SweepInactive(context.Background(), env.clock.Advance(31*time.Second))
	require.NoError(t, err)
	require.Equal(t, SweepResult{Ended: 1}, swept)
	require.Equal(t, "Closing for now", env.sender.last())

	exec := env.execution(t, res.ExecutionID)
	require.Equal(t, models.ExecutionInactive, exec.Status)
	require.Equal(t, string(EndInactivity), exec.EndReason)

	var ticket models.Ticket
	require.NoError(t, env.db.Where("contact_id = ?", res.ContactID).First(&ticket).Error)
	require.Equal(t, queue.ID, *ticket.QueueID)
	require.Equal(t, models.TicketStatusPending, ticket.Status)
}

func TestReplyResetsInactivityWarnings(t *testing.T) {
	env := newEngineEnv(t, WithInactivityDefaults(InactivitySettings{Timeout: 60, MaxWarnings: 2}))
	env.flow(t, questionNodes, questionEdges, nil)

	res := env.inbound(t, "5511000000001", "hi")
	swept, err := env.engine.SweepInactive(context.Background(), env.clock.Advance(61*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, swept.Warned)
	require.Equal(t, DefaultWarningMessage, env.sender.last())
	require.Equal(t, 1, env.execution(t, res.ExecutionID).WarningsSent)

	env.inbound(t, "5511000000001", "not an email")
	exec := env.execution(t, res.ExecutionID)
	require.Zero(t, exec.WarningsSent)
	require.Nil(t, exec.LastWarningAt)
	require.True(t, exec.LastInteractionAt.Equal(env.clock.Now()))
}

func TestInactivityNodeOverridesFlowSettings(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"idle","type":"inactivity","data":{"timeout":10,"maxWarnings":0,"endMessage":"Too slow"}},
		{"id":"ask","type":"question","data":{"text":"Name?","variable":"n"}}
	]`, `[
		{"id":"e1","source":"start","target":"idle"},
		{"id":"e2","source":"idle","target":"ask"}
	]`, func(f *models.FlowBuilder) {
		f.InactivityTimeout = 3600
		f.InactivityMaxWarnings = 3
	})

	res := env.inbound(t, "5511000000001", "hi")
	swept, err := env.engine.SweepInactive(context.Background(), env.clock.Advance(11*time.Second))
	require.NoError(t, err)
	require.Equal(t, SweepResult{Ended: 1}, swept)
	require.Equal(t, "Too slow", env.sender.last())
	require.Equal(t, models.ExecutionInactive, env.execution(t, res.ExecutionID).Status)
}

func TestPauseResumeAndCancel(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, questionNodes, questionEdges, nil)
	ctx := context.Background()

	res := env.inbound(t, "5511000000001", "hi")

	exec, err := env.engine.Pause(ctx, env.company.ID, res.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionPaused, exec.Status)
	_, err = env.engine.Pause(ctx, env.company.ID, res.ExecutionID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.Equal(t, ReasonPaused, env.inbound(t, "5511000000001", "ana@example.com").Reason)

	exec, err = env.engine.ResumeExecution(ctx, env.company.ID, res.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionActive, exec.Status)
	require.True(t, exec.Waiting)

	exec, err = env.engine.Cancel(ctx, env.company.ID, res.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, exec.Status)
	require.Equal(t, string(EndCancelled), exec.EndReason)

	_, err = env.engine.Cancel(ctx, env.company.ID, res.ExecutionID)
	require.ErrorIs(t, err, ErrExecutionNotLive)

	other := testutil.MustCreateCompany(t, env.db, "Other")
	_, err = env.engine.Cancel(ctx, other.ID, res.ExecutionID)
	require.ErrorIs(t, err, ErrExecutionNotFound)

	res = env.inbound(t, "5511000000001", "hi again")
	require.Equal(t, ReasonStarted, res.Reason, "a cancelled execution releases the contact")
}

func TestResumeExecutionContinuesInterruptedWalk(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"wait","type":"interval","data":{"seconds":3600}},
		{"id":"after","type":"message","data":{"text":"resumed early"}}
	]`, `[
		{"id":"e1","source":"start","target":"wait"},
		{"id":"e2","source":"wait","target":"after"}
	]`, nil)

	res := env.inbound(t, "5511000000001", "hi")
	exec, err := env.engine.ResumeExecution(context.Background(), env.company.ID, res.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, exec.Status)
	require.Equal(t, "resumed early", env.sender.last())
}

func TestStartManualExecution(t *testing.T) {
	env := newEngineEnv(t)
	flow := env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"promo","type":"message","data":{"text":"Hi {{name}}, use code {{coupon}}"}},
		{"id":"ask","type":"question","data":{"text":"Interested?","variable":"answer"}}
	]`, `[
		{"id":"e1","source":"start","target":"promo"},
		{"id":"e2","source":"promo","target":"ask"}
	]`, func(f *models.FlowBuilder) { f.IsDefault = false })
	contact := testutil.MustCreateContact(t, env.db, env.company.ID, "5511000000001", "Ana")

	exec, err := env.engine.Start(context.Background(), env.company.ID, flow.ID, contact.ID, map[string]any{"coupon": "SPRING"})
	require.NoError(t, err)
	require.Equal(t, TriggerManual, exec.Trigger)
	require.Equal(t, "Interested?", env.sender.last())
	require.Contains(t, env.sender.texts(), "Hi Ana, use code SPRING")

	_, err = env.engine.Start(context.Background(), env.company.ID, flow.ID, contact.ID, nil)
	require.ErrorIs(t, err, ErrExecutionLive)

	_, err = env.engine.Start(context.Background(), env.company.ID, flow.ID, uuid.NewString(), nil)
	require.ErrorIs(t, err, ErrContactNotFound)
}

func (env *engineEnv) agent(t *testing.T) string {
	t.Helper()
	user := &models.User{
		CompanyID: env.company.ID,
		Name:      "Agent",
		Email:     uuid.NewString() + "@example.com",
		Password:  "hashed",
		Profile:   models.ProfileUser,
		IsActive:  true,
	}
	require.NoError(t, env.db.Create(user).Error)
	return user.ID
}

func TestStartRefusesAttendedContact(t *testing.T) {
	env := newEngineEnv(t)
	flow := env.flow(t, questionNodes, questionEdges, func(f *models.FlowBuilder) { f.IsDefault = false })
	contact := testutil.MustCreateContact(t, env.db, env.company.ID, "5511000000001", "Ana")
	agent := env.agent(t)
	require.NoError(t, env.db.Create(&models.Ticket{
		CompanyID: env.company.ID,
		ContactID: contact.ID,
		UserID:    &agent,
		Status:    models.TicketStatusOpen,
	}).Error)

	_, err := env.engine.Start(context.Background(), env.company.ID, flow.ID, contact.ID, nil)
	require.ErrorIs(t, err, ErrContactAttended)
	require.Empty(t, env.sender.texts())

	var count int64
	require.NoError(t, env.db.Model(&models.FlowBuilderExecution{}).Where("contact_id = ?", contact.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestSweepLeavesAttendedContactsAlone(t *testing.T) {
	env := newEngineEnv(t)
	queue := &models.Queue{CompanyID: env.company.ID, Name: "Follow-up"}
	require.NoError(t, env.db.Create(queue).Error)
	env.flow(t, questionNodes, questionEdges, func(f *models.FlowBuilder) {
		f.InactivityTimeout = 60
		f.InactivityMaxWarnings = 1
		f.InactivityTransferQueueID = &queue.ID
	})

	res := env.inbound(t, "5511000000001", "hi")
	sent := len(env.sender.texts())

	agent := env.agent(t)
	ticket := &models.Ticket{
		CompanyID: env.company.ID,
		ContactID: res.ContactID,
		UserID:    &agent,
		Status:    models.TicketStatusOpen,
	}
	require.NoError(t, env.db.Create(ticket).Error)

	for i := 0; i < 3; i++ {
		swept, err := env.engine.SweepInactive(context.Background(), env.clock.Advance(61*time.Second))
		require.NoError(t, err)
		require.Equal(t, SweepResult{}, swept)
	}
	require.Len(t, env.sender.texts(), sent)
	require.Equal(t, models.ExecutionActive, env.execution(t, res.ExecutionID).Status)

	var stored models.Ticket
	require.NoError(t, env.db.First(&stored, "id = ?", ticket.ID).Error)
	require.Equal(t, agent, *stored.UserID)
}

func TestAppointmentBookingAndConflict(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"when","type":"question","data":{"text":"When?","variable":"slot"}},
		{"id":"book","type":"appointment","data":{"dateVariable":"slot","durationMinutes":60,"email":"{{email}}"}},
		{"id":"booked","type":"end","data":{"message":"Booked for {{appointment.starts_at}}"}},
		{"id":"taken","type":"end","data":{"message":"Slot taken"}},
		{"id":"bad","type":"end","data":{"message":"Bad date"}}
	]`, `[
		{"id":"e1","source":"start","target":"when"},
		{"id":"e2","source":"when","target":"book"},
		{"id":"e3","source":"book","target":"booked","sourceHandle":"booked"},
		{"id":"e4","source":"book","target":"taken","sourceHandle":"conflict"},
		{"id":"e5","source":"book","target":"bad","sourceHandle":"invalid"}
	]`, nil)

	first := env.inbound(t, "5511000000001", "book")
	require.NoError(t, env.db.Model(&models.Contact{}).Where("id = ?", first.ContactID).Update("email", "ana@example.com").Error)
	env.inbound(t, "5511000000001", "2025-03-11 15:00")
	require.Equal(t, "Booked for 2025-03-11 15:00", env.sender.last())
	require.Len(t, env.booker.booked, 1)
	require.Len(t, env.emails.sent, 1)
	require.Equal(t, "ana@example.com", env.emails.sent[0].to)

	env.inbound(t, "5511000000002", "book")
	env.inbound(t, "5511000000002", "2025-03-11 15:30")
	require.Equal(t, "Slot taken", env.sender.last())

	env.inbound(t, "5511000000003", "book")
	env.inbound(t, "5511000000003", "2020-01-01 10:00")
	require.Equal(t, "Bad date", env.sender.last())
}

func TestAppointmentBookedDespiteRejectedEmail(t *testing.T) {
	env := newEngineEnv(t)
	env.emails.reject = apperrors.NewBadRequest(`invalid email address "not-an-email"`)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"when","type":"question","data":{"text":"When?","variable":"slot"}},
		{"id":"book","type":"appointment","data":{"dateVariable":"slot","durationMinutes":60,"email":"{{email}}"}},
		{"id":"booked","type":"end","data":{"message":"Booked for {{appointment.starts_at}}"}}
	]`, `[
		{"id":"e1","source":"start","target":"when"},
		{"id":"e2","source":"when","target":"book"},
		{"id":"e3","source":"book","target":"booked","sourceHandle":"booked"}
	]`, nil)

	first := env.inbound(t, "5511000000001", "book")
	require.NoError(t, env.db.Model(&models.Contact{}).Where("id = ?", first.ContactID).Update("email", "not-an-email").Error)
	res := env.inbound(t, "5511000000001", "2025-03-11 15:00")

	require.NotEqual(t, models.ExecutionError, res.Status)
	require.Empty(t, env.execution(t, res.ExecutionID).ErrorMessage)
	require.Equal(t, "Booked for 2025-03-11 15:00", env.sender.last())
	require.Len(t, env.booker.booked, 1)
	require.Empty(t, env.emails.sent)
}

func TestAppointmentEmailStoreFailureIsAnError(t *testing.T) {
	env := newEngineEnv(t)
	env.emails.reject = errors.New("disk full")
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"when","type":"question","data":{"text":"When?","variable":"slot"}},
		{"id":"book","type":"appointment","data":{"dateVariable":"slot","durationMinutes":60,"email":"ana@example.com"}}
	]`, `[
		{"id":"e1","source":"start","target":"when"},
		{"id":"e2","source":"when","target":"book"}
	]`, nil)

	env.inbound(t, "5511000000001", "book")
	res := env.inbound(t, "5511000000001", "2025-03-11 15:00")
	require.Equal(t, models.ExecutionError, res.Status)
	require.Contains(t, env.execution(t, res.ExecutionID).ErrorMessage, "disk full")
}

func TestDatabaseNodePersistsContactChanges(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, `[
		{"id":"start","type":"start"},
		{"id":"ask","type":"question","data":{"text":"Email?","variable":"mail","validation":"email"}},
		{"id":"save","type":"database","data":{"operation":"set","field":"email","variable":"mail"}},
		{"id":"tag","type":"database","data":{"operation":"set","field":"extra.source","value":"whatsapp"}}
	]`, `[
		{"id":"e1","source":"start","target":"ask"},
		{"id":"e2","source":"ask","target":"save"},
		{"id":"e3","source":"save","target":"tag"}
	]`, nil)

	res := env.inbound(t, "5511000000001", "hi")
	env.inbound(t, "5511000000001", "new@example.com")

	var contact models.Contact
	require.NoError(t, env.db.First(&contact, "id = ?", res.ContactID).Error)
	require.Equal(t, "new@example.com", contact.Email)
	require.Equal(t, "whatsapp", ContactExtra(&contact)["source"])
}

func TestSendFailureMarksExecutionError(t *testing.T) {
	env := newEngineEnv(t)
	env.sender.fail = errors.New("gateway unavailable")
	env.flow(t, `[{"id":"start","type":"start"},{"id":"m","type":"message","data":{"text":"hi"}}]`,
		`[{"id":"e1","source":"start","target":"m"}]`, nil)

	res := env.inbound(t, "5511000000001", "hi")
	require.Equal(t, models.ExecutionError, res.Status)
	require.Contains(t, env.execution(t, res.ExecutionID).ErrorMessage, "gateway unavailable")
}

func TestPublishesExecutionEvents(t *testing.T) {
	env := newEngineEnv(t)
	env.flow(t, questionNodes, questionEdges, nil)

	res := env.inbound(t, "5511000000001", "hi")
	env.inbound(t, "5511000000001", "ana@example.com")

	env.publisher.mu.Lock()
	defer env.publisher.mu.Unlock()
	require.Len(t, env.publisher.events, 2)
	require.Equal(t, res.ExecutionID, env.publisher.events[0].ID)
	require.True(t, env.publisher.events[0].Waiting)
	require.Equal(t, models.ExecutionCompleted, env.publisher.events[1].Status)
}

func TestInvalidStoredGraphAbandonsExecution(t *testing.T) {
	env := newEngineEnv(t)
	flow := env.flow(t, questionNodes, questionEdges, nil)
	res := env.inbound(t, "5511000000001", "hi")

	require.NoError(t, env.db.Model(flow).Update("nodes", datatypes.JSON(`[{"id":"x","type":"bogus"}]`)).Error)
	res = env.inbound(t, "5511000000001", "ana@example.com")
	require.Equal(t, models.ExecutionError, res.Status)
	require.Contains(t, env.execution(t, res.ExecutionID).ErrorMessage, "invalid")
}

func TestMatchesTrigger(t *testing.T) {
	flow := &models.FlowBuilder{TriggerType: models.TriggerContains, Keywords: datatypes.JSONSlice[string]{"", "Refund"}}
	require.True(t, MatchesTrigger(flow, "I want a refund please"))
	require.False(t, MatchesTrigger(flow, ""))
	flow.TriggerType = ""
	require.False(t, MatchesTrigger(flow, "refund"), "flows without a trigger type only run as default")
}
