package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/response"
)

// RequireProfile allows the request only when the agent's profile is one of profiles.
func RequireProfile(profiles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(profiles))
	for _, profile := range profiles {
		allowed[strings.ToLower(profile)] = struct{}{}
	}

	return func(c *gin.Context) {
		if UserID(c) == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[c.GetString(CtxProfileKey)]; !ok {
			response.Error(c, errors.ErrForbidden.WithMessage("This action requires the admin profile"))
			c.Abort()
			return
		}
		c.Next()
	}
}
