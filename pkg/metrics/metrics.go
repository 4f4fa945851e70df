package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_sessions_live",
			Help: "Number of live sessions by transport",
		},
		[]string{"transport"},
	)

	SessionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sessions_accepted_total",
			Help: "Total number of accepted sessions by transport",
		},
		[]string{"transport"},
	)

	SessionsDeclined = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sessions_declined_total",
			Help: "Total number of declined or rejected sessions by transport",
		},
		[]string{"transport"},
	)

	// Connection container metrics
	ConnectionSlotsInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_connection_slots_in_use",
			Help: "Connection ring slots currently outstanding by class",
		},
		[]string{"class"},
	)

	// Scheduler metrics
	TasksExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_tasks_executed_total",
			Help: "Total number of tasks executed by the scheduler",
		},
	)

	TasksStolen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_tasks_stolen_total",
			Help: "Total number of tasks stolen across workers",
		},
	)

	SchedulerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_scheduler_queue_depth",
			Help: "Tasks currently queued across every scheduler queue",
		},
	)

	// Registry metrics
	RegisteredSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_registered_sessions",
			Help: "Sessions currently visible in the session registry",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SessionsLive)
	prometheus.MustRegister(SessionsAccepted)
	prometheus.MustRegister(SessionsDeclined)
	prometheus.MustRegister(ConnectionSlotsInUse)
	prometheus.MustRegister(TasksExecuted)
	prometheus.MustRegister(TasksStolen)
	prometheus.MustRegister(SchedulerQueueDepth)
	prometheus.MustRegister(RegisteredSessions)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
