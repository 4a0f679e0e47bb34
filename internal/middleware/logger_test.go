package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/engageflow/pkg/logger"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, recorded := observer.New(zap.DebugLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })
	return recorded
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorded := observeLogs(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CtxCompanyIDKey, "company-1")
		c.Next()
	}, Logger())
	r.GET("/api/flows/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/flows/abc?token=secret", nil))
	require.Equal(t, http.StatusOK, w.Code)

	entries := recorded.FilterMessage("request").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	require.Equal(t, "/api/flows/abc", fields["path"])
	require.Equal(t, "/api/flows/:id", fields["route"])
	require.Equal(t, "company-1", fields["company_id"])
	require.Equal(t, int64(http.StatusOK), fields["status"])
}

func TestLoggerLevelFollowsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorded := observeLogs(t)

	r := gin.New()
	r.Use(Logger())
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/bad", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := recorded.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
