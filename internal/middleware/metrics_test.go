package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/engageflow/pkg/metrics"
)

func TestMetricsRecordsRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics("/health/live"))
	r.GET("/metrics-test/flows/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })

	series := func() int { return promtest.CollectAndCount(metrics.APILatency) }
	before := series()

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics-test/flows/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
	require.Equal(t, before+1, series(), "both ids share the route template series")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, before+1, series(), "skipped paths are not recorded")
}
