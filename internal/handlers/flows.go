package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// FlowHandler manages flow graphs and starts executions by hand.
type FlowHandler struct {
	flows  *services.FlowService
	engine *flow.Engine
}

// NewFlowHandler constructs a FlowHandler.
func NewFlowHandler(flows *services.FlowService, engine *flow.Engine) *FlowHandler {
	return &FlowHandler{flows: flows, engine: engine}
}

type flowRequest struct {
	Name        string          `json:"name" validate:"required,min=1,max=128"`
	Description string          `json:"description" validate:"omitempty,max=1024"`
	TriggerType string          `json:"trigger_type" validate:"omitempty,oneof=exact contains"`
	Keywords    []string        `json:"keywords" validate:"omitempty,max=50,dive,max=64"`
	Nodes       json.RawMessage `json:"nodes" validate:"required"`
	Edges       json.RawMessage `json:"edges"`

	InactivityTimeout         int     `json:"inactivity_timeout" validate:"gte=0"`
	InactivityMaxWarnings     int     `json:"inactivity_max_warnings" validate:"gte=0,lte=10"`
	InactivityWarningMessage  string  `json:"inactivity_warning_message" validate:"omitempty,max=1024"`
	InactivityEndMessage      string  `json:"inactivity_end_message" validate:"omitempty,max=1024"`
	InactivityTransferQueueID *string `json:"inactivity_transfer_queue_id" validate:"omitempty,uuid"`
}

func (r flowRequest) input() services.FlowInput {
	return services.FlowInput{
		Name:                      strings.TrimSpace(r.Name),
		Description:               strings.TrimSpace(r.Description),
		TriggerType:               r.TriggerType,
		Keywords:                  r.Keywords,
		Nodes:                     r.Nodes,
		Edges:                     r.Edges,
		InactivityTimeout:         r.InactivityTimeout,
		InactivityMaxWarnings:     r.InactivityMaxWarnings,
		InactivityWarningMessage:  r.InactivityWarningMessage,
		InactivityEndMessage:      r.InactivityEndMessage,
		InactivityTransferQueueID: r.InactivityTransferQueueID,
	}
}

type validateFlowRequest struct {
	Nodes json.RawMessage `json:"nodes" validate:"required"`
	Edges json.RawMessage `json:"edges"`
}

type startFlowRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Variables map[string]any `json:"variables"`
}

// GET /api/flows
func (h *FlowHandler) List(c *gin.Context) {
	flows, err := h.flows.List(requestContext(c), companyID(c), services.ListFlowsOptions{
		Active: parseBoolQuery(c, "active"),
		Query:  strings.TrimSpace(c.Query("q")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, flows)
}

// GET /api/flows/:id
func (h *FlowHandler) Get(c *gin.Context) {
	flowModel, err := h.flows.GetFlow(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, flowModel)
}

// POST /api/flows
func (h *FlowHandler) Create(c *gin.Context) {
	var body flowRequest
	if !bindAndValidate(c, &body) {
		return
	}
	flowModel, err := h.flows.Create(requestContext(c), companyID(c), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, flowModel)
}

// PUT /api/flows/:id
func (h *FlowHandler) Update(c *gin.Context) {
	var body flowRequest
	if !bindAndValidate(c, &body) {
		return
	}
	flowModel, err := h.flows.Update(requestContext(c), companyID(c), c.Param("id"), body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, flowModel)
}

// DELETE /api/flows/:id
func (h *FlowHandler) Delete(c *gin.Context) {
	if err := h.flows.Delete(requestContext(c), companyID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/flows/validate
func (h *FlowHandler) Validate(c *gin.Context) {
	var body validateFlowRequest
	if !bindAndValidate(c, &body) {
		return
	}
	problems := h.flows.Validate(body.Nodes, body.Edges)
	if problems == nil {
		problems = []string{}
	}
	response.Success(c, http.StatusOK, gin.H{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

// POST /api/flows/:id/activate
func (h *FlowHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// POST /api/flows/:id/deactivate
func (h *FlowHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *FlowHandler) setActive(c *gin.Context, active bool) {
	flowModel, err := h.flows.SetActive(requestContext(c), companyID(c), c.Param("id"), active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, flowModel)
}

// POST /api/flows/:id/default
func (h *FlowHandler) SetDefault(c *gin.Context) {
	flowModel, err := h.flows.SetDefault(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, flowModel)
}

// POST /api/flows/:id/start
func (h *FlowHandler) Start(c *gin.Context) {
	var body startFlowRequest
	if !bindAndValidate(c, &body) {
		return
	}
	exec, err := h.engine.Start(requestContext(c), companyID(c), c.Param("id"), body.ContactID, body.Variables)
	if err != nil {
		response.Error(c, engineError(err))
		return
	}
	response.Success(c, http.StatusCreated, exec)
}
