package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// QueueHandler manages attendant queues.
type QueueHandler struct {
	queues *services.QueueService
}

// NewQueueHandler constructs a QueueHandler.
func NewQueueHandler(queues *services.QueueService) *QueueHandler {
	return &QueueHandler{queues: queues}
}

type createQueueRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=64"`
	Color           string `json:"color" validate:"omitempty,hexcolor"`
	GreetingMessage string `json:"greeting_message" validate:"omitempty,max=1024"`
}

// GET /api/queues
func (h *QueueHandler) List(c *gin.Context) {
	queues, err := h.queues.List(requestContext(c), companyID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, queues)
}

// GET /api/queues/:id
func (h *QueueHandler) Get(c *gin.Context) {
	queue, err := h.queues.Get(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, queue)
}

// POST /api/queues
func (h *QueueHandler) Create(c *gin.Context) {
	var body createQueueRequest
	if !bindAndValidate(c, &body) {
		return
	}
	queue, err := h.queues.Create(requestContext(c), companyID(c), services.CreateQueueInput{
		Name:            strings.TrimSpace(body.Name),
		Color:           body.Color,
		GreetingMessage: strings.TrimSpace(body.GreetingMessage),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, queue)
}

// DELETE /api/queues/:id
func (h *QueueHandler) Delete(c *gin.Context) {
	if err := h.queues.Delete(requestContext(c), companyID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
