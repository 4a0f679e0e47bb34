package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/middleware"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// companyID returns the tenant of the authenticated request.
func companyID(c *gin.Context) string {
	return middleware.CompanyID(c)
}

// engineError maps flow engine sentinels onto API errors.
func engineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, flow.ErrExecutionNotFound):
		return apperrors.New("EXECUTION_NOT_FOUND", "Execution not found", http.StatusNotFound).WithInternal(err)
	case errors.Is(err, flow.ErrContactNotFound):
		return apperrors.New("CONTACT_NOT_FOUND", "Contact not found", http.StatusNotFound).WithInternal(err)
	case errors.Is(err, flow.ErrCompanyNotFound):
		return apperrors.New("COMPANY_NOT_FOUND", "Company not found", http.StatusNotFound).WithInternal(err)
	case errors.Is(err, flow.ErrExecutionLive):
		return apperrors.ErrConflict.WithMessage("Contact already has a live execution").WithInternal(err)
	case errors.Is(err, flow.ErrContactAttended):
		return apperrors.ErrConflict.WithMessage("Contact is being attended by an agent").WithInternal(err)
	case errors.Is(err, flow.ErrExecutionNotLive):
		return apperrors.ErrConflict.WithMessage("Execution already finished").WithInternal(err)
	case errors.Is(err, flow.ErrInvalidTransition):
		return apperrors.ErrConflict.WithMessage("Execution status change not allowed").WithInternal(err)
	case errors.Is(err, flow.ErrInvalidInbound):
		return apperrors.NewBadRequest("number is required")
	}
	return err
}
