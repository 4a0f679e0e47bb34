package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/app"
	iauth "github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/gateway"
	"github.com/charlesng35/engageflow/internal/handlers"
	"github.com/charlesng35/engageflow/internal/middleware"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/monitoring"
	"github.com/charlesng35/engageflow/internal/realtime"
	"github.com/charlesng35/engageflow/internal/security"
	"github.com/charlesng35/engageflow/internal/services"
)

// Dependencies are the long-lived collaborators the router mounts.
type Dependencies struct {
	DB        *gorm.DB
	Config    *app.Config
	JWT       *iauth.JWTService
	Services  *services.Set
	Engine    *flow.Engine
	Sender    gateway.Sender
	Hub       *realtime.Hub
	Health    *monitoring.HealthManager
	RateStore middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.JWT == nil:
		return errors.New("jwt service must be provided")
	case d.Services == nil:
		return errors.New("services must be provided")
	case d.Engine == nil:
		return errors.New("flow engine must be provided")
	case d.Sender == nil:
		return errors.New("gateway sender must be provided")
	}
	return nil
}

func metricsEndpoint(cfg *app.Config) string {
	if endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint); endpoint != "" {
		return endpoint
	}
	return "/metrics"
}

// scrapePaths are polled by orchestrators and Prometheus and stay out of the latency histogram.
func scrapePaths(cfg *app.Config) []string {
	return []string{"/health", "/health/live", "/health/ready", metricsEndpoint(cfg)}
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(scrapePaths(cfg)...))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	registerHealthRoutes(r, cfg, deps.Health)
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsEndpoint(cfg), gin.WrapH(promhttp.Handler()))
	}

	var publisher flow.Publisher
	if deps.Hub != nil {
		publisher = deps.Hub
	}
	svc := deps.Services

	webhook := handlers.NewWebhookHandler(deps.Engine, publisher)
	r.POST("/webhooks/inbound/:companyID", middleware.WebhookToken(svc.Companies), webhook.Inbound)

	setup := handlers.NewSetupHandler(svc.Setup)
	r.GET("/api/setup/status", setup.Status)
	r.POST("/api/setup/initialize", setup.Initialize)

	auth := handlers.NewAuthHandler(svc.Users, svc.Companies, deps.JWT)
	r.POST("/api/auth/login", auth.Login)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	admin := middleware.RequireProfile(models.ProfileAdmin)

	api.GET("/auth/me", auth.Me)
	if deps.Hub != nil {
		api.GET("/ws", handlers.NewRealtimeHandler(deps.Hub).Stream)
	}

	registerCompanyRoutes(api, handlers.NewCompanyHandler(svc.Companies), admin)
	registerUserRoutes(api, handlers.NewUserHandler(svc.Users), admin)
	registerFlowRoutes(api, handlers.NewFlowHandler(svc.Flows, deps.Engine), admin)
	registerExecutionRoutes(api, handlers.NewExecutionHandler(svc.Executions, deps.Engine))
	registerContactRoutes(api,
		handlers.NewContactHandler(svc.Contacts),
		handlers.NewMessageHandler(svc.Messages, svc.Contacts, svc.Tickets, deps.Sender))
	registerQueueRoutes(api, handlers.NewQueueHandler(svc.Queues), admin)
	registerTicketRoutes(api, handlers.NewTicketHandler(svc.Tickets, publisher))
	registerAppointmentRoutes(api, handlers.NewAppointmentHandler(svc.Appointments))
	registerEmailRoutes(api, handlers.NewEmailHandler(svc.Emails))

	audit := security.NewAuditService(deps.DB, deps.JWT, cfg)
	api.GET("/security/audit", admin, handlers.NewSecurityHandler(audit).Audit)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
