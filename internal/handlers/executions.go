package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// ExecutionHandler lists executions and forwards state changes to the engine.
type ExecutionHandler struct {
	executions *services.ExecutionService
	engine     *flow.Engine
}

// NewExecutionHandler constructs an ExecutionHandler.
func NewExecutionHandler(executions *services.ExecutionService, engine *flow.Engine) *ExecutionHandler {
	return &ExecutionHandler{executions: executions, engine: engine}
}

// GET /api/executions
func (h *ExecutionHandler) List(c *gin.Context) {
	opts := services.ListExecutionsOptions{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 25),
		Filters: services.ExecutionFilters{
			Status:    c.Query("status"),
			FlowID:    c.Query("flow_id"),
			ContactID: c.Query("contact_id"),
		},
	}
	executions, total, err := h.executions.List(requestContext(c), companyID(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, executions, response.NewMeta(opts.Page, opts.PerPage, total))
}

// GET /api/executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	execution, err := h.executions.Get(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, execution)
}

// POST /api/executions/:id/pause
func (h *ExecutionHandler) Pause(c *gin.Context) {
	h.transition(c, h.engine.Pause)
}

// POST /api/executions/:id/resume
func (h *ExecutionHandler) Resume(c *gin.Context) {
	h.transition(c, h.engine.ResumeExecution)
}

// POST /api/executions/:id/cancel
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	h.transition(c, h.engine.Cancel)
}

type executionTransition func(ctx context.Context, companyID, execID string) (*models.FlowBuilderExecution, error)

func (h *ExecutionHandler) transition(c *gin.Context, fn executionTransition) {
	execution, err := fn(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, engineError(err))
		return
	}
	response.Success(c, http.StatusOK, execution)
}
