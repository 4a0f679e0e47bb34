package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// EmailHandler exposes the company's email outbox.
type EmailHandler struct {
	emails *services.EmailService
}

// NewEmailHandler constructs an EmailHandler.
func NewEmailHandler(emails *services.EmailService) *EmailHandler {
	return &EmailHandler{emails: emails}
}

type enqueueEmailRequest struct {
	To          string     `json:"to" validate:"required,email"`
	Subject     string     `json:"subject" validate:"required,max=255"`
	Body        string     `json:"body" validate:"required"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// GET /api/emails
func (h *EmailHandler) List(c *gin.Context) {
	emails, err := h.emails.List(requestContext(c), companyID(c), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, emails)
}

// GET /api/emails/:id
func (h *EmailHandler) Get(c *gin.Context) {
	email, err := h.emails.Get(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, email)
}

// POST /api/emails
func (h *EmailHandler) Enqueue(c *gin.Context) {
	var body enqueueEmailRequest
	if !bindAndValidate(c, &body) {
		return
	}
	var at time.Time
	if body.ScheduledAt != nil {
		at = *body.ScheduledAt
	}
	email, err := h.emails.Enqueue(requestContext(c), companyID(c), body.To, body.Subject, body.Body, at)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, email)
}

// POST /api/emails/:id/cancel
func (h *EmailHandler) Cancel(c *gin.Context) {
	email, err := h.emails.Cancel(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, email)
}
