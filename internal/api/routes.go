package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/engageflow/internal/app"
	"github.com/charlesng35/engageflow/internal/handlers"
	"github.com/charlesng35/engageflow/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	if !cfg.Monitoring.Health.Enabled || manager == nil {
		r.GET("/health", handlers.DisabledHealth)
		r.GET("/health/live", handlers.DisabledHealth)
		r.GET("/health/ready", handlers.DisabledHealth)
		return
	}

	health := handlers.NewHealthHandler(manager)
	r.GET("/health", health.Overall)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
}

func registerCompanyRoutes(api *gin.RouterGroup, handler *handlers.CompanyHandler, admin gin.HandlerFunc) {
	company := api.Group("/company")
	{
		company.GET("", handler.Get)
		company.PATCH("", admin, handler.Update)
		company.POST("/webhook-token/rotate", admin, handler.RotateWebhookToken)
	}
}

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, admin gin.HandlerFunc) {
	users := api.Group("/users")
	{
		users.GET("", handler.List)
		users.GET("/:id", handler.Get)
		users.POST("", admin, handler.Create)
	}
}

func registerFlowRoutes(api *gin.RouterGroup, handler *handlers.FlowHandler, admin gin.HandlerFunc) {
	flows := api.Group("/flows")
	{
		flows.GET("", handler.List)
		flows.POST("/validate", handler.Validate)
		flows.GET("/:id", handler.Get)
		flows.POST("", admin, handler.Create)
		flows.PUT("/:id", admin, handler.Update)
		flows.DELETE("/:id", admin, handler.Delete)
		flows.POST("/:id/activate", admin, handler.Activate)
		flows.POST("/:id/deactivate", admin, handler.Deactivate)
		flows.POST("/:id/default", admin, handler.SetDefault)
		flows.POST("/:id/start", handler.Start)
	}
}

func registerExecutionRoutes(api *gin.RouterGroup, handler *handlers.ExecutionHandler) {
	executions := api.Group("/executions")
	{
		executions.GET("", handler.List)
		executions.GET("/:id", handler.Get)
		executions.POST("/:id/pause", handler.Pause)
		executions.POST("/:id/resume", handler.Resume)
		executions.POST("/:id/cancel", handler.Cancel)
	}
}

func registerContactRoutes(api *gin.RouterGroup, contacts *handlers.ContactHandler, messages *handlers.MessageHandler) {
	group := api.Group("/contacts")
	{
		group.GET("", contacts.List)
		group.POST("", contacts.Create)
		group.GET("/:id", contacts.Get)
		group.PATCH("/:id", contacts.Update)
		group.DELETE("/:id", contacts.Delete)
		group.GET("/:id/fields/:field", contacts.GetField)
		group.PUT("/:id/fields/:field", contacts.SetField)
		group.GET("/:id/messages", messages.List)
		group.POST("/:id/messages", messages.Send)
	}
}

func registerQueueRoutes(api *gin.RouterGroup, handler *handlers.QueueHandler, admin gin.HandlerFunc) {
	queues := api.Group("/queues")
	{
		queues.GET("", handler.List)
		queues.GET("/:id", handler.Get)
		queues.POST("", admin, handler.Create)
		queues.DELETE("/:id", admin, handler.Delete)
	}
}

func registerTicketRoutes(api *gin.RouterGroup, handler *handlers.TicketHandler) {
	tickets := api.Group("/tickets")
	{
		tickets.GET("", handler.List)
		tickets.POST("", handler.Open)
		tickets.GET("/:id", handler.Get)
		tickets.POST("/:id/transfer", handler.Transfer)
		tickets.POST("/:id/close", handler.Close)
	}
}

func registerAppointmentRoutes(api *gin.RouterGroup, handler *handlers.AppointmentHandler) {
	appointments := api.Group("/appointments")
	{
		appointments.GET("", handler.List)
		appointments.POST("", handler.Create)
		appointments.GET("/:id", handler.Get)
		appointments.PATCH("/:id/status", handler.UpdateStatus)
	}
}

func registerEmailRoutes(api *gin.RouterGroup, handler *handlers.EmailHandler) {
	emails := api.Group("/emails")
	{
		emails.GET("", handler.List)
		emails.POST("", handler.Enqueue)
		emails.GET("/:id", handler.Get)
		emails.POST("/:id/cancel", handler.Cancel)
	}
}
