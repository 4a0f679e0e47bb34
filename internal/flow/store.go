package flow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/logger"
	"github.com/charlesng35/engageflow/pkg/metrics"
)

func (e *Engine) company(ctx context.Context, companyID string) (*models.Company, error) {
	var company models.Company
	if err := e.db.WithContext(ctx).First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("flow engine: load company: %w", err)
	}
	return &company, nil
}

func (e *Engine) contact(ctx context.Context, companyID, contactID string) (*models.Contact, error) {
	var contact models.Contact
	err := e.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, contactID).
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("flow engine: load contact: %w", err)
	}
	return &contact, nil
}

func (e *Engine) execution(ctx context.Context, companyID, execID string) (*models.FlowBuilderExecution, error) {
	var exec models.FlowBuilderExecution
	err := e.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, execID).
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("flow engine: load execution: %w", err)
	}
	return &exec, nil
}

// lockExecution takes the contact lock of an execution and reloads it under the lock.
func (e *Engine) lockExecution(ctx context.Context, companyID, execID string) (*models.FlowBuilderExecution, func(), error) {
	exec, err := e.execution(ctx, companyID, execID)
	if err != nil {
		return nil, nil, err
	}
	unlock := e.locks.Lock(contactKey(exec.CompanyID, exec.ContactID))
	exec, err = e.execution(ctx, companyID, execID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return exec, unlock, nil
}

func (e *Engine) liveExecution(ctx context.Context, companyID, contactID string) (*models.FlowBuilderExecution, error) {
	var exec models.FlowBuilderExecution
	err := e.db.WithContext(ctx).
		Where("company_id = ? AND contact_id = ? AND status IN ?", companyID, contactID,
			[]string{models.ExecutionActive, models.ExecutionPaused}).
		Order("created_at DESC").
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("flow engine: load live execution: %w", err)
	}
	return &exec, nil
}

func (e *Engine) recordInbound(ctx context.Context, companyID, contactID string, ticket *models.Ticket, msg InboundMessage) error {
	record := models.Message{
		CompanyID:  companyID,
		ContactID:  contactID,
		Direction:  models.DirectionInbound,
		Body:       msg.Text,
		MediaURL:   msg.MediaURL,
		MediaType:  msg.MediaType,
		ExternalID: msg.ExternalID,
	}
	if ticket != nil {
		ticketID := ticket.ID
		record.TicketID = &ticketID
	}
	if err := e.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("flow engine: record inbound message: %w", err)
	}
	return nil
}

// persist writes the execution with its logs, outbound messages and contact
// changes in one transaction, then publishes the new state.
func (e *Engine) persist(ctx context.Context, run *Run) error {
	exec := run.Execution
	vars, err := run.Vars.Encode()
	if err != nil {
		return err
	}
	exec.Variables = vars

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if run.isNew {
			if err := tx.Omit(clause.Associations).Create(exec).Error; err != nil {
				return fmt.Errorf("create execution: %w", err)
			}
		} else if err := tx.Omit(clause.Associations).Save(exec).Error; err != nil {
			return fmt.Errorf("save execution: %w", err)
		}

		if len(run.logs) > 0 {
			if err := tx.Create(&run.logs).Error; err != nil {
				return fmt.Errorf("create execution logs: %w", err)
			}
		}
		if len(run.messages) > 0 {
			if err := tx.Omit(clause.Associations).Create(&run.messages).Error; err != nil {
				return fmt.Errorf("create outbound messages: %w", err)
			}
		}
		if run.contactDirty && run.Contact != nil {
			if err := tx.Model(&models.Contact{}).
				Where("id = ?", run.Contact.ID).
				Updates(map[string]any{
					"name":       run.Contact.Name,
					"email":      run.Contact.Email,
					"extra_info": run.Contact.ExtraInfo,
				}).Error; err != nil {
				return fmt.Errorf("update contact: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("flow engine: persist execution %s: %w", exec.ID, err)
	}

	run.isNew = false
	run.logs = nil
	run.messages = nil
	run.contactDirty = false

	if (run.startStatus == "" || live(run.startStatus)) && !exec.Live() {
		metrics.ExecutionsFinished.WithLabelValues(exec.Status).Inc()
	}
	run.startStatus = exec.Status

	logger.WithCompany("flow", exec.CompanyID).Debug("execution updated",
		zap.String("execution_id", exec.ID),
		zap.String("flow_id", exec.FlowID),
		zap.String("status", exec.Status),
		zap.String("node_id", exec.CurrentNodeID),
		zap.String("end_reason", exec.EndReason))

	if e.publisher != nil {
		e.publisher.PublishCompany(exec.CompanyID, EventExecutionUpdated, ExecutionEvent{
			ID:            exec.ID,
			FlowID:        exec.FlowID,
			ContactID:     exec.ContactID,
			Status:        exec.Status,
			CurrentNodeID: exec.CurrentNodeID,
			Waiting:       exec.Waiting,
			EndReason:     exec.EndReason,
			UpdatedAt:     exec.UpdatedAt,
		})
	}
	return nil
}

func live(status string) bool {
	return status == models.ExecutionActive || status == models.ExecutionPaused
}
