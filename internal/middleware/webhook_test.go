package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/pkg/errors"
)

type stubCompanies struct {
	token string
}

func (s stubCompanies) Authenticate(_ context.Context, companyID, token string) (*models.Company, error) {
	if token != s.token {
		return nil, errors.ErrInvalidWebhookToken
	}
	return &models.Company{BaseModel: models.BaseModel{ID: companyID}}, nil
}

func TestWebhookToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/webhooks/:companyID", WebhookToken(stubCompanies{token: "s3cret"}), func(c *gin.Context) {
		c.String(http.StatusOK, CompanyID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/acme", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/acme", nil)
	req.Header.Set(WebhookTokenHeader, "wrong")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks/acme", nil)
	req.Header.Set(WebhookTokenHeader, "s3cret")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "acme", w.Body.String())
}
