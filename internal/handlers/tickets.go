package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/realtime"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/response"
)

// TicketHandler manages human-attended conversations.
type TicketHandler struct {
	tickets   *services.TicketService
	publisher flow.Publisher
}

// NewTicketHandler constructs a TicketHandler. publisher may be nil.
func NewTicketHandler(tickets *services.TicketService, publisher flow.Publisher) *TicketHandler {
	return &TicketHandler{tickets: tickets, publisher: publisher}
}

type openTicketRequest struct {
	ContactID string `json:"contact_id" validate:"required,uuid"`
}

type transferTicketRequest struct {
	QueueID *string `json:"queue_id" validate:"omitempty,uuid"`
	UserID  *string `json:"user_id" validate:"omitempty,uuid"`
}

// GET /api/tickets
func (h *TicketHandler) List(c *gin.Context) {
	opts := services.ListTicketsOptions{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 25),
		Filters: services.TicketFilters{
			Status:    c.Query("status"),
			QueueID:   c.Query("queue_id"),
			UserID:    c.Query("user_id"),
			ContactID: c.Query("contact_id"),
		},
	}
	tickets, total, err := h.tickets.List(requestContext(c), companyID(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, tickets, response.NewMeta(opts.Page, opts.PerPage, total))
}

// POST /api/tickets returns the contact's unclosed ticket or opens a pending one.
func (h *TicketHandler) Open(c *gin.Context) {
	var body openTicketRequest
	if !bindAndValidate(c, &body) {
		return
	}
	ticket, err := h.tickets.Open(requestContext(c), companyID(c), body.ContactID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.publish(ticket)
	response.Success(c, http.StatusOK, ticket)
}

// GET /api/tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.tickets.Get(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, ticket)
}

// POST /api/tickets/:id/transfer
func (h *TicketHandler) Transfer(c *gin.Context) {
	var body transferTicketRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body.QueueID == nil && body.UserID == nil {
		response.Error(c, errors.NewBadRequest("queue_id or user_id is required"))
		return
	}

	ctx := requestContext(c)
	current, err := h.tickets.Get(ctx, companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if current.Status == models.TicketStatusClosed {
		response.Error(c, services.ErrTicketClosed)
		return
	}
	ticket, err := h.tickets.Transfer(ctx, current.CompanyID, current.ContactID, body.QueueID, body.UserID, current.LastMessage)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.publish(ticket)
	response.Success(c, http.StatusOK, ticket)
}

// POST /api/tickets/:id/close
func (h *TicketHandler) Close(c *gin.Context) {
	ticket, err := h.tickets.Close(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.publish(ticket)
	response.Success(c, http.StatusOK, ticket)
}

func (h *TicketHandler) publish(ticket *models.Ticket) {
	if h.publisher == nil || ticket == nil {
		return
	}
	h.publisher.PublishCompany(ticket.CompanyID, realtime.EventTicketUpdated, ticket)
}
