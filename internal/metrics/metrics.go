package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	SessionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "zalohub",
		Name:      "sessions_active",
		Help:      "Protocol sessions currently logged in.",
	})

	SessionLogins = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zalohub",
		Name:      "session_logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	Events = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zalohub",
		Name:      "events_total",
		Help:      "Inbound protocol events by type and outcome.",
	}, []string{"event", "outcome"})

	SocketConnections = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "zalohub",
		Name:      "socket_connections",
		Help:      "Browser sockets currently connected.",
	})

	SocketDeliveries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zalohub",
		Name:      "socket_deliveries_total",
		Help:      "Targeted account deliveries by outcome.",
	}, []string{"outcome"})

	CleanupFiles = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zalohub",
		Name:      "cleanup_files_total",
		Help:      "Dead-letter files processed by the cleanup job.",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
	return gin.WrapH(h)
}

const (
	OutcomeOK       = "ok"
	OutcomeDropped  = "dropped"
	OutcomeFailed   = "failed"
	OutcomeRetained = "retained"
	OutcomeMissing  = "missing"
)
