package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// CompanyHandler exposes the caller's own tenant.
type CompanyHandler struct {
	companies *services.CompanyService
}

// NewCompanyHandler constructs a CompanyHandler.
func NewCompanyHandler(companies *services.CompanyService) *CompanyHandler {
	return &CompanyHandler{companies: companies}
}

type updateCompanyRequest struct {
	Name     *string        `json:"name" validate:"omitempty,min=2,max=128"`
	Timezone *string        `json:"timezone" validate:"omitempty,timezone"`
	Settings map[string]any `json:"settings"`
}

// GET /api/company
func (h *CompanyHandler) Get(c *gin.Context) {
	company, err := h.companies.Get(requestContext(c), companyID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, company)
}

// PATCH /api/company
func (h *CompanyHandler) Update(c *gin.Context) {
	var body updateCompanyRequest
	if !bindAndValidate(c, &body) {
		return
	}
	company, err := h.companies.Update(requestContext(c), companyID(c), services.UpdateCompanyInput{
		Name:     body.Name,
		Timezone: body.Timezone,
		Settings: body.Settings,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, company)
}

// POST /api/company/webhook-token/rotate
func (h *CompanyHandler) RotateWebhookToken(c *gin.Context) {
	token, err := h.companies.RotateWebhookToken(requestContext(c), companyID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"webhook_token": token})
}
