package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/response"
)

// ContactHandler manages WhatsApp contacts.
type ContactHandler struct {
	contacts *services.ContactService
}

// NewContactHandler constructs a ContactHandler.
func NewContactHandler(contacts *services.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

type createContactRequest struct {
	Number    string         `json:"number" validate:"required,phone"`
	Name      string         `json:"name" validate:"omitempty,max=128"`
	Email     string         `json:"email" validate:"omitempty,email"`
	ExtraInfo map[string]any `json:"extra_info"`
}

type updateContactRequest struct {
	Name      *string        `json:"name" validate:"omitempty,max=128"`
	Email     *string        `json:"email" validate:"omitempty,email"`
	ExtraInfo map[string]any `json:"extra_info"`
}

type setFieldRequest struct {
	Value string `json:"value"`
}

// GET /api/contacts
func (h *ContactHandler) List(c *gin.Context) {
	opts := services.ListContactsOptions{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 25),
		Query:   strings.TrimSpace(c.Query("q")),
	}
	contacts, total, err := h.contacts.List(requestContext(c), companyID(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, contacts, response.NewMeta(opts.Page, opts.PerPage, total))
}

// GET /api/contacts/:id
func (h *ContactHandler) Get(c *gin.Context) {
	contact, err := h.contacts.Get(requestContext(c), companyID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, contact)
}

// POST /api/contacts
func (h *ContactHandler) Create(c *gin.Context) {
	var body createContactRequest
	if !bindAndValidate(c, &body) {
		return
	}
	contact, err := h.contacts.Create(requestContext(c), companyID(c), services.CreateContactInput{
		Number:    body.Number,
		Name:      strings.TrimSpace(body.Name),
		Email:     strings.TrimSpace(body.Email),
		ExtraInfo: body.ExtraInfo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, contact)
}

// PATCH /api/contacts/:id
func (h *ContactHandler) Update(c *gin.Context) {
	var body updateContactRequest
	if !bindAndValidate(c, &body) {
		return
	}
	contact, err := h.contacts.Update(requestContext(c), companyID(c), c.Param("id"), services.UpdateContactInput{
		Name:      body.Name,
		Email:     body.Email,
		ExtraInfo: body.ExtraInfo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, contact)
}

// DELETE /api/contacts/:id
func (h *ContactHandler) Delete(c *gin.Context) {
	if err := h.contacts.Delete(requestContext(c), companyID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/contacts/:id/fields/:field
func (h *ContactHandler) GetField(c *gin.Context) {
	value, err := h.contacts.GetField(requestContext(c), companyID(c), c.Param("id"), c.Param("field"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"field": c.Param("field"), "value": value})
}

// PUT /api/contacts/:id/fields/:field
func (h *ContactHandler) SetField(c *gin.Context) {
	var body setFieldRequest
	if !bindAndValidate(c, &body) {
		return
	}
	contact, err := h.contacts.SetField(requestContext(c), companyID(c), c.Param("id"), c.Param("field"), body.Value)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, contact)
}
