package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/security"
	"github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/response"
)

// SecurityHandler serves the deployment audit to company administrators.
type SecurityHandler struct {
	audit *security.AuditService
}

func NewSecurityHandler(audit *security.AuditService) *SecurityHandler {
	return &SecurityHandler{audit: audit}
}

// Audit runs every check. ?status=warn,fail narrows the returned checks while
// the summary still counts all of them.
//
// GET /api/security/audit
func (h *SecurityHandler) Audit(c *gin.Context) {
	wanted := map[security.CheckStatus]bool{}
	for _, raw := range strings.Split(c.Query("status"), ",") {
		switch status := security.CheckStatus(strings.ToLower(strings.TrimSpace(raw))); status {
		case "":
		case security.StatusPass, security.StatusWarn, security.StatusFail:
			wanted[status] = true
		default:
			response.Error(c, errors.NewBadRequest("status must be pass, warn or fail"))
			return
		}
	}

	result := h.audit.Run(requestContext(c))
	if len(wanted) > 0 {
		filtered := make([]security.Check, 0, len(result.Checks))
		for _, check := range result.Checks {
			if wanted[check.Status] {
				filtered = append(filtered, check)
			}
		}
		result.Checks = filtered
	}
	response.Success(c, http.StatusOK, result)
}
