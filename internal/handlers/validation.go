package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/response"
	appValidator "github.com/charlesng35/engageflow/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and applies its validate
// tags. On failure the 400 envelope lists every failed field under
// details.fields and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	err := appValidator.ValidateStruct(dest)
	if err == nil {
		return true
	}
	var failures appValidator.ValidationErrors
	if errors.As(err, &failures) && len(failures) > 0 {
		response.Error(c, appErrors.NewBadRequest(failures.Error()).
			WithDetails(map[string]any{"fields": failures}))
		return false
	}
	response.Error(c, appErrors.NewBadRequest("invalid request payload"))
	return false
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// parseBoolQuery returns nil when the parameter is absent or not a boolean.
func parseBoolQuery(c *gin.Context, key string) *bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &parsed
}

// parseTimeQuery reads an RFC 3339 timestamp. A malformed value is reported
// as an error so callers can answer 400.
func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, appErrors.NewBadRequest(fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
	}
	return &parsed, nil
}
