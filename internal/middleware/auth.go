package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxCompanyIDKey = "companyID"
	CtxProfileKey   = "profile"
)

// Auth enforces JWT authentication and scopes the request to the token's
// company. WebSocket upgrades may pass the token in the "token" query
// parameter since browsers cannot set headers on them.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxCompanyIDKey, claims.CompanyID)
		c.Set(CtxProfileKey, claims.Profile)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if c.IsWebsocket() {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}

// CompanyID returns the tenant the request is scoped to.
func CompanyID(c *gin.Context) string {
	return c.GetString(CtxCompanyIDKey)
}

// UserID returns the authenticated agent, if any.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
