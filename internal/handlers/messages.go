package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/metrics"
	"github.com/charlesng35/engageflow/pkg/response"
)

// MessageHandler lists a contact's conversation and sends agent replies.
type MessageHandler struct {
	messages *services.MessageService
	contacts *services.ContactService
	tickets  *services.TicketService
	sender   gateway.Sender
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(messages *services.MessageService, contacts *services.ContactService, tickets *services.TicketService, sender gateway.Sender) *MessageHandler {
	return &MessageHandler{messages: messages, contacts: contacts, tickets: tickets, sender: sender}
}

type sendMessageRequest struct {
	Body      string `json:"body" validate:"required_without=MediaURL,max=4096"`
	MediaURL  string `json:"media_url" validate:"omitempty,url"`
	MediaType string `json:"media_type" validate:"omitempty,oneof=image audio video document"`
}

// GET /api/contacts/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	opts := services.ListMessagesOptions{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 50),
	}
	messages, total, err := h.messages.List(requestContext(c), companyID(c), c.Param("id"), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, messages, response.NewMeta(opts.Page, opts.PerPage, total))
}

// POST /api/contacts/:id/messages
func (h *MessageHandler) Send(c *gin.Context) {
	var body sendMessageRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ctx := requestContext(c)
	contact, err := h.contacts.Get(ctx, companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	outbound := gateway.Message{
		To:        contact.Number,
		Text:      strings.TrimSpace(body.Body),
		MediaURL:  strings.TrimSpace(body.MediaURL),
		MediaType: body.MediaType,
	}
	externalID, err := h.sender.Send(ctx, contact.CompanyID, outbound)
	if err != nil {
		metrics.OutboundMessages.WithLabelValues(outbound.Kind(), "error").Inc()
		response.Error(c, errors.New("GATEWAY_UNAVAILABLE", "Message could not be delivered", http.StatusBadGateway).WithInternal(err))
		return
	}
	metrics.OutboundMessages.WithLabelValues(outbound.Kind(), "ok").Inc()

	message := &models.Message{
		CompanyID:  contact.CompanyID,
		ContactID:  contact.ID,
		Direction:  models.DirectionOutbound,
		Body:       outbound.Text,
		MediaURL:   outbound.MediaURL,
		MediaType:  outbound.MediaType,
		ExternalID: externalID,
	}
	if ticket, err := h.tickets.AttendedTicket(ctx, contact.CompanyID, contact.ID); err == nil && ticket != nil {
		message.TicketID = &ticket.ID
	}
	if err := h.messages.Record(ctx, message); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, message)
}
