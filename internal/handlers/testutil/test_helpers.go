package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/api"
	"github.com/charlesng35/engageflow/internal/app"
	iauth "github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/internal/cache"
	sharedtestutil "github.com/charlesng35/engageflow/internal/database/testutil"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/middleware"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/monitoring"
	"github.com/charlesng35/engageflow/internal/monitoring/checks"
	"github.com/charlesng35/engageflow/internal/realtime"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/internal/vault"
	"github.com/charlesng35/engageflow/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Services *services.Set
	Engine   *flow.Engine
	Hub      *realtime.Hub

	mu   sync.Mutex
	sent []gateway.Message
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Vault: app.VaultConfig{EncryptionKey: "0123456789abcdef0123456789abcdef"},
		Auth: app.AuthConfig{JWT: app.JWTSettings{
			Secret: jwtSecret,
			Issuer: "test-suite",
			TTL:    time.Hour,
		}},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	key, err := cfg.Vault.MasterKey()
	require.NoError(t, err)
	crypto, err := vault.NewCrypto(key)
	require.NoError(t, err)

	set, err := services.NewSet(db, services.SetConfig{
		GraphCache: cache.NewMemoryStore(),
		Vault:      crypto,
	})
	require.NoError(t, err)

	env := &Env{T: t, DB: db, JWT: jwtSvc, Services: set, Hub: realtime.NewHub()}

	engine, err := flow.NewEngine(db, set.EngineDependencies(gateway.SenderFunc(env.capture)),
		flow.WithPublisher(env.Hub))
	require.NoError(t, err)
	env.Engine = engine

	health := monitoring.NewHealthManager()
	health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	health.RegisterReadiness(checks.Database(db, time.Second))

	env.Router, err = api.NewRouter(api.Dependencies{
		DB:        db,
		Config:    cfg,
		JWT:       jwtSvc,
		Services:  set,
		Engine:    engine,
		Sender:    gateway.SenderFunc(env.capture),
		Hub:       env.Hub,
		Health:    health,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return env
}

func (e *Env) capture(_ context.Context, _ string, msg gateway.Message) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, msg)
	return "wamid-" + uuid.NewString(), nil
}

// Sent returns the messages handed to the gateway so far.
func (e *Env) Sent() []gateway.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]gateway.Message(nil), e.sent...)
}

// Tenant is a company with a signed-in agent.
type Tenant struct {
	Company *models.Company
	User    *models.User
	Token   string
}

// CreateTenant inserts a company with one agent of the given profile and
// returns an access token for that agent.
func (e *Env) CreateTenant(name, profile string) Tenant {
	e.T.Helper()

	company, err := e.Services.Companies.Create(context.Background(), services.CreateCompanyInput{Name: name})
	require.NoError(e.T, err)

	user := e.CreateUser(company.ID, profile)
	return Tenant{Company: company, User: user, Token: e.TokenFor(user)}
}

// CreateUser inserts an active agent with the password "Password123!".
func (e *Env) CreateUser(companyID, profile string) *models.User {
	e.T.Helper()

	id := uuid.NewString()
	user, err := e.Services.Users.Create(context.Background(), services.CreateUserInput{
		CompanyID: companyID,
		Name:      "Agent " + id[:8],
		Email:     "agent-" + id + "@example.com",
		Password:  "Password123!",
		Profile:   profile,
	})
	require.NoError(e.T, err)
	return user
}

// TokenFor issues an access token for user.
func (e *Env) TokenFor(user *models.User) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Profile:   user.Profile,
	})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.RequestWithHeaders(method, path, body, token, nil)
}

// RequestWithHeaders is Request with extra headers.
func (e *Env) RequestWithHeaders(method, path string, body any, token string, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// MustData asserts the response status and decodes its data payload into dest.
func MustData[T any](t *testing.T, w *httptest.ResponseRecorder, status int, dest *T) APIResponse {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())
	if dest != nil {
		DecodeInto(t, resp.Data, dest)
	}
	return resp
}
