package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/cache"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/vault"
	"github.com/charlesng35/engageflow/pkg/mail"
)

// SetConfig carries the optional collaborators of the service set.
type SetConfig struct {
	GraphCache    cache.Store
	GraphCacheTTL time.Duration
	Vault         *vault.Crypto
	Mailer        mail.Mailer

	EmailMaxAttempts int
	EmailRetryDelay  time.Duration
}

// Set bundles the services shared by the HTTP handlers, the engine and the
// background jobs.
type Set struct {
	Companies    *CompanyService
	Users        *UserService
	Setup        *SetupService
	Flows        *FlowService
	Executions   *ExecutionService
	Contacts     *ContactService
	Queues       *QueueService
	Tickets      *TicketService
	Appointments *AppointmentService
	Messages     *MessageService
	Emails       *EmailService
}

// NewSet constructs every service against db.
func NewSet(db *gorm.DB, cfg SetConfig) (*Set, error) {
	var (
		set Set
		err error
	)
	if set.Companies, err = NewCompanyService(db); err != nil {
		return nil, err
	}
	if set.Users, err = NewUserService(db); err != nil {
		return nil, err
	}
	if set.Setup, err = NewSetupService(db); err != nil {
		return nil, err
	}

	flowOpts := []FlowServiceOption{WithVault(cfg.Vault)}
	if cfg.GraphCache != nil {
		flowOpts = append(flowOpts, WithGraphCache(cfg.GraphCache, cfg.GraphCacheTTL))
	}
	if set.Flows, err = NewFlowService(db, flowOpts...); err != nil {
		return nil, err
	}
	if set.Executions, err = NewExecutionService(db); err != nil {
		return nil, err
	}
	if set.Contacts, err = NewContactService(db); err != nil {
		return nil, err
	}
	if set.Queues, err = NewQueueService(db); err != nil {
		return nil, err
	}
	if set.Tickets, err = NewTicketService(db); err != nil {
		return nil, err
	}
	if set.Appointments, err = NewAppointmentService(db); err != nil {
		return nil, err
	}
	if set.Messages, err = NewMessageService(db); err != nil {
		return nil, err
	}
	if set.Emails, err = NewEmailService(db, cfg.Mailer,
		WithEmailMaxAttempts(cfg.EmailMaxAttempts),
		WithEmailRetryDelay(cfg.EmailRetryDelay),
	); err != nil {
		return nil, err
	}
	return &set, nil
}

// EngineDependencies wires the set into the flow engine's collaborators.
func (s *Set) EngineDependencies(sender gateway.Sender) flow.Dependencies {
	return flow.Dependencies{
		Flows:        s.Flows,
		Contacts:     s.Contacts,
		Tickets:      s.Tickets,
		Appointments: s.Appointments,
		Emails:       s.Emails,
		Sender:       sender,
	}
}
