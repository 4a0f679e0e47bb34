package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/realtime"
	"github.com/charlesng35/engageflow/pkg/response"
)

// WebhookHandler receives inbound WhatsApp messages from the gateway.
type WebhookHandler struct {
	engine    *flow.Engine
	publisher flow.Publisher
}

// NewWebhookHandler constructs a WebhookHandler. publisher may be nil.
func NewWebhookHandler(engine *flow.Engine, publisher flow.Publisher) *WebhookHandler {
	return &WebhookHandler{engine: engine, publisher: publisher}
}

type inboundRequest struct {
	Number    string `json:"number" validate:"required,phone"`
	Name      string `json:"name" validate:"omitempty,max=128"`
	Body      string `json:"body" validate:"max=4096"`
	MediaURL  string `json:"media_url" validate:"omitempty,url"`
	MediaType string `json:"media_type" validate:"omitempty,max=16"`
	MessageID string `json:"message_id" validate:"omitempty,max=128"`
}

// POST /webhooks/inbound/:companyID
func (h *WebhookHandler) Inbound(c *gin.Context) {
	var body inboundRequest
	if !bindAndValidate(c, &body) {
		return
	}

	company := companyID(c)
	result, err := h.engine.HandleInbound(requestContext(c), flow.InboundMessage{
		CompanyID:  company,
		Number:     body.Number,
		Name:       strings.TrimSpace(body.Name),
		Text:       body.Body,
		MediaURL:   strings.TrimSpace(body.MediaURL),
		MediaType:  body.MediaType,
		ExternalID: body.MessageID,
	})
	if err != nil {
		response.Error(c, engineError(err))
		return
	}

	if h.publisher != nil {
		h.publisher.PublishCompany(company, realtime.EventMessageReceived, gin.H{
			"contact_id": result.ContactID,
			"body":       body.Body,
			"media_url":  body.MediaURL,
			"handled":    result.Handled,
			"reason":     result.Reason,
		})
	}
	response.Success(c, http.StatusOK, result)
}
