package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// AppointmentHandler books and tracks appointments.
type AppointmentHandler struct {
	appointments *services.AppointmentService
}

// NewAppointmentHandler constructs an AppointmentHandler.
func NewAppointmentHandler(appointments *services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

type createAppointmentRequest struct {
	ContactID   string    `json:"contact_id" validate:"required"`
	UserID      *string   `json:"user_id" validate:"omitempty,uuid"`
	Title       string    `json:"title" validate:"required,max=255"`
	Description string    `json:"description" validate:"omitempty,max=2048"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
}

type appointmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed completed cancelled no_show"`
}

// GET /api/appointments
func (h *AppointmentHandler) List(c *gin.Context) {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	appointments, err := h.appointments.List(requestContext(c), companyID(c), services.AppointmentFilters{
		Status:    c.Query("status"),
		ContactID: c.Query("contact_id"),
		UserID:    c.Query("user_id"),
		From:      from,
		To:        to,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, appointments)
}

// GET /api/appointments/:id
func (h *AppointmentHandler) Get(c *gin.Context) {
	appointment, err := h.appointments.Get(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, appointment)
}

// POST /api/appointments
func (h *AppointmentHandler) Create(c *gin.Context) {
	var body createAppointmentRequest
	if !bindAndValidate(c, &body) {
		return
	}
	appointment, err := h.appointments.Create(requestContext(c), companyID(c), services.CreateAppointmentInput{
		ContactID:   body.ContactID,
		UserID:      body.UserID,
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		StartsAt:    body.StartsAt,
		EndsAt:      body.EndsAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, appointment)
}

// PATCH /api/appointments/:id/status
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	var body appointmentStatusRequest
	if !bindAndValidate(c, &body) {
		return
	}
	appointment, err := h.appointments.UpdateStatus(requestContext(c), companyID(c), c.Param("id"), body.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, appointment)
}
