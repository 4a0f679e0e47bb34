package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/middleware"
	"github.com/charlesng35/engageflow/internal/realtime"
	"github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/response"
)

// RealtimeHandler upgrades authenticated requests into company event streams.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream serves GET /api/ws. The optional "streams" query parameter is a
// comma separated subset of the realtime streams; all streams are sent when
// it is absent.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	var streams []string
	for _, stream := range strings.Split(c.Query("streams"), ",") {
		if stream = strings.TrimSpace(stream); stream != "" {
			streams = append(streams, stream)
		}
	}

	h.hub.Serve(companyID(c), middleware.UserID(c), streams, c.Writer, c.Request)
}
