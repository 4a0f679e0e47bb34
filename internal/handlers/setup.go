package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// SetupHandler provisions the first company and its administrator.
type SetupHandler struct {
	setup *services.SetupService
}

// NewSetupHandler constructs a SetupHandler.
func NewSetupHandler(setup *services.SetupService) *SetupHandler {
	return &SetupHandler{setup: setup}
}

type initializeRequest struct {
	CompanyName string `json:"company_name" validate:"required,min=2,max=128"`
	Timezone    string `json:"timezone" validate:"omitempty,max=64"`
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
}

// GET /api/setup/status
func (h *SetupHandler) Status(c *gin.Context) {
	initialized, err := h.setup.Initialized(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"initialized": initialized})
}

// POST /api/setup/initialize
func (h *SetupHandler) Initialize(c *gin.Context) {
	var body initializeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	company, user, err := h.setup.Initialize(requestContext(c), services.InitializeInput{
		CompanyName: strings.TrimSpace(body.CompanyName),
		Timezone:    strings.TrimSpace(body.Timezone),
		AdminName:   strings.TrimSpace(body.Name),
		Email:       body.Email,
		Password:    body.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"company":       company,
		"user":          user,
		"webhook_token": company.WebhookToken,
	})
}
