package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records agent login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InboundMessages counts gateway webhook deliveries by outcome
	// (handled|attendant|no_flow|paused|error).
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_inbound_messages_total",
			Help: "Total number of inbound messages received from the gateway",
		},
		[]string{"outcome"},
	)

	// OutboundMessages counts messages handed to the gateway by kind (text|media) and result.
	OutboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_outbound_messages_total",
			Help: "Total number of outbound messages sent through the gateway",
		},
		[]string{"kind", "result"},
	)

	// ExecutionsStarted counts new executions by trigger (keyword|default|manual).
	ExecutionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_executions_started_total",
			Help: "Total number of flow executions started",
		},
		[]string{"trigger"},
	)

	// ExecutionsFinished counts executions reaching a terminal status.
	ExecutionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_executions_finished_total",
			Help: "Total number of flow executions finished",
		},
		[]string{"status"},
	)

	// NodeRuns counts node handler invocations by node type and result (ok|error).
	NodeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_node_runs_total",
			Help: "Total number of node handler invocations",
		},
		[]string{"type", "result"},
	)

	// InactivityWarnings counts warnings sent to idle contacts.
	InactivityWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engageflow_inactivity_warnings_total",
			Help: "Total number of inactivity warnings sent",
		},
	)

	// ActiveExecutions tracks live (active or paused) executions observed by the last sweep.
	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engageflow_active_executions",
			Help: "Number of live flow executions",
		},
	)

	// EmailsDispatched counts outbox deliveries by result (sent|error).
	EmailsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_emails_dispatched_total",
			Help: "Total number of outbox emails processed",
		},
		[]string{"result"},
	)

	// MaintenanceRuns counts scheduled job runs by job and result (success|failure).
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engageflow_maintenance_runs_total",
			Help: "Total number of scheduled maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// RealtimeConnections tracks open dashboard WebSocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engageflow_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	// RealtimeDropped counts clients disconnected for falling behind.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engageflow_realtime_dropped_total",
			Help: "Total number of realtime clients dropped for slow reads",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engageflow_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
