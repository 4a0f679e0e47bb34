package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/response"
)

// WebhookTokenHeader carries the company's inbound webhook token.
const WebhookTokenHeader = "X-Webhook-Token"

// WebhookAuthenticator resolves a company from its webhook credentials.
type WebhookAuthenticator interface {
	Authenticate(ctx context.Context, companyID, token string) (*models.Company, error)
}

// WebhookToken authenticates gateway callbacks addressed to /:companyID and
// scopes the request to that company.
func WebhookToken(companies WebhookAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(WebhookTokenHeader))
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			response.Error(c, errors.ErrInvalidWebhookToken)
			c.Abort()
			return
		}

		company, err := companies.Authenticate(c.Request.Context(), c.Param("companyID"), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxCompanyIDKey, company.ID)
		c.Next()
	}
}
