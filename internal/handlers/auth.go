package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/internal/middleware"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/metrics"
	"github.com/charlesng35/engageflow/pkg/response"
)

// AuthHandler signs agents in and describes the current agent.
type AuthHandler struct {
	users     *services.UserService
	companies *services.CompanyService
	jwt       *iauth.JWTService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService, companies *services.CompanyService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, companies: companies, jwt: jwt}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Profile:   user.Profile,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"token": tokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(h.jwt.TTL().Seconds()),
		},
		"user": user,
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := requestContext(c)
	user, err := h.users.Get(ctx, companyID(c), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	company, err := h.companies.Get(ctx, user.CompanyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user, "company": company})
}
