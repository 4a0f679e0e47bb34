package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/metrics"
)

// Default inactivity messages used when none is configured.
const (
	DefaultWarningMessage = "Are you still there? Reply to continue."
	DefaultEndMessage     = "We closed this conversation due to inactivity."
)

// SweepResult counts what an inactivity sweep did.
type SweepResult struct {
	Warned int `json:"warned"`
	Ended  int `json:"ended"`
}

// SweepInactive warns or releases executions whose contact stopped replying.
func (e *Engine) SweepInactive(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx = ensuredContext(ctx)

	var waiting []models.FlowBuilderExecution
	if err := e.db.WithContext(ctx).
		Preload("Flow").
		Where("status = ? AND waiting = ?", models.ExecutionActive, true).
		Find(&waiting).Error; err != nil {
		return SweepResult{}, fmt.Errorf("flow engine: list waiting executions: %w", err)
	}

	var (
		result SweepResult
		errs   error
	)
	for i := range waiting {
		settings, err := e.effectiveInactivity(&waiting[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !idle(&waiting[i], settings, now) {
			continue
		}
		action, err := e.sweepOne(ctx, waiting[i].CompanyID, waiting[i].ID, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		switch action {
		case sweepWarned:
			result.Warned++
		case sweepEnded:
			result.Ended++
		}
	}

	e.refreshActiveGauge(ctx)
	return result, errs
}

type sweepAction int

const (
	sweepSkipped sweepAction = iota
	sweepWarned
	sweepEnded
)

func (e *Engine) sweepOne(ctx context.Context, companyID, execID string, now time.Time) (sweepAction, error) {
	exec, unlock, err := e.lockExecution(ctx, companyID, execID)
	if err != nil {
		return sweepSkipped, err
	}
	defer unlock()

	flow, err := e.deps.Flows.GetFlow(ctx, exec.CompanyID, exec.FlowID)
	if err != nil {
		return sweepSkipped, err
	}
	exec.Flow = flow
	settings, err := e.effectiveInactivity(exec)
	if err != nil {
		return sweepSkipped, err
	}
	if exec.Status != models.ExecutionActive || !exec.Waiting || !idle(exec, settings, now) {
		return sweepSkipped, nil
	}
	// An agent owns the conversation; the bot must not warn or transfer.
	ticket, err := e.deps.Tickets.AttendedTicket(ctx, exec.CompanyID, exec.ContactID)
	if err != nil {
		return sweepSkipped, fmt.Errorf("flow engine: lookup ticket: %w", err)
	}
	if ticket != nil {
		return sweepSkipped, nil
	}

	company, err := e.company(ctx, exec.CompanyID)
	if err != nil {
		return sweepSkipped, err
	}
	contact, err := e.contact(ctx, exec.CompanyID, exec.ContactID)
	if err != nil {
		return sweepSkipped, err
	}
	vars, err := DecodeVariables(exec.Variables)
	if err != nil {
		return sweepSkipped, err
	}
	run := &Run{
		Company:     company,
		Flow:        flow,
		Contact:     contact,
		Execution:   exec,
		Vars:        vars,
		Now:         now,
		svc:         e.services(),
		startStatus: exec.Status,
	}
	node := &Node{ID: exec.CurrentNodeID, Type: TypeInactivity}

	if exec.WarningsSent < settings.MaxWarnings {
		if err := run.SendText(ctx, settings.WarningMessage); err != nil {
			return sweepSkipped, fmt.Errorf("flow engine: send inactivity warning: %w", err)
		}
		exec.WarningsSent++
		warnedAt := now
		exec.LastWarningAt = &warnedAt
		metrics.InactivityWarnings.Inc()
		run.appendLog(node, Outcome{}, "warning", fmt.Sprintf("warning %d of %d", exec.WarningsSent, settings.MaxWarnings))
		return sweepWarned, e.persist(ctx, run)
	}

	if err := run.SendText(ctx, settings.EndMessage); err != nil {
		e.log.Warn("failed to send inactivity end message",
			zap.String("company_id", exec.CompanyID),
			zap.String("execution_id", exec.ID),
			zap.Error(err))
	}
	detail := "ended after inactivity"
	if queueID := strings.TrimSpace(settings.TransferQueueID); queueID != "" {
		ticket, err := e.deps.Tickets.Transfer(ctx, exec.CompanyID, exec.ContactID, &queueID, nil, Stringify(vars[VarLastMessage]))
		if err != nil {
			return sweepSkipped, fmt.Errorf("flow engine: transfer inactive contact: %w", err)
		}
		run.Vars.Set("ticket_id", ticket.ID)
		detail = "transferred to queue " + queueID
	}
	run.appendLog(node, Outcome{}, "end", detail)
	e.finish(run, EndInactivity)
	return sweepEnded, e.persist(ctx, run)
}

// effectiveInactivity layers the execution override over the flow settings
// over the engine defaults.
func (e *Engine) effectiveInactivity(exec *models.FlowBuilderExecution) (InactivitySettings, error) {
	settings := e.inactivity

	if flow := exec.Flow; flow != nil && flow.InactivityTimeout > 0 {
		settings = overlay(settings, InactivitySettings{
			Timeout:         flow.InactivityTimeout,
			MaxWarnings:     flow.InactivityMaxWarnings,
			WarningMessage:  flow.InactivityWarningMessage,
			EndMessage:      flow.InactivityEndMessage,
			TransferQueueID: deref(flow.InactivityTransferQueueID),
		})
	}

	override, err := DecodeInactivity(exec.Inactivity)
	if err != nil {
		return InactivitySettings{}, err
	}
	if override != nil && override.Timeout > 0 {
		settings = overlay(settings, *override)
	}

	if settings.WarningMessage == "" {
		settings.WarningMessage = DefaultWarningMessage
	}
	if settings.EndMessage == "" {
		settings.EndMessage = DefaultEndMessage
	}
	return settings, nil
}

func overlay(base, top InactivitySettings) InactivitySettings {
	base.Timeout = top.Timeout
	base.MaxWarnings = top.MaxWarnings
	if top.WarningMessage != "" {
		base.WarningMessage = top.WarningMessage
	}
	if top.EndMessage != "" {
		base.EndMessage = top.EndMessage
	}
	if top.TransferQueueID != "" {
		base.TransferQueueID = top.TransferQueueID
	}
	return base
}

func idle(exec *models.FlowBuilderExecution, settings InactivitySettings, now time.Time) bool {
	timeout := settings.TimeoutDuration()
	if timeout <= 0 {
		return false
	}
	reference := exec.LastInteractionAt
	if exec.WarningsSent > 0 && exec.LastWarningAt != nil && exec.LastWarningAt.After(reference) {
		reference = *exec.LastWarningAt
	}
	return now.After(reference.Add(timeout))
}

func (e *Engine) refreshActiveGauge(ctx context.Context) {
	var count int64
	if err := e.db.WithContext(ctx).
		Model(&models.FlowBuilderExecution{}).
		Where("status IN ?", []string{models.ExecutionActive, models.ExecutionPaused}).
		Count(&count).Error; err != nil {
		e.log.Warn("failed to count live executions", zap.Error(err))
		return
	}
	metrics.ActiveExecutions.Set(float64(count))
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
