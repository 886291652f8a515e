package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the push server's collectors.
type Metrics struct {
	Clients         prometheus.Gauge
	Sent            *prometheus.CounterVec
	SlowDisconnects prometheus.Counter
	Rejected        prometheus.Counter
	Pongs           prometheus.Counter
	Evicted         prometheus.Counter
}

// NewMetrics registers the collectors on reg, or on a private registry when
// reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "vsense_ws_clients",
			Help: "Connected realtime clients.",
		}),
		Sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vsense_ws_messages_sent_total",
			Help: "Frames queued to clients by message type.",
		}, []string{"type"}),
		SlowDisconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "vsense_ws_slow_client_disconnects_total",
			Help: "Clients dropped because their send buffer was full.",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "vsense_ws_rejected_connections_total",
			Help: "Upgrades refused by the connection limit.",
		}),
		Pongs: f.NewCounter(prometheus.CounterOpts{
			Name: "vsense_ws_pongs_total",
			Help: "Application-level pong frames received.",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "vsense_ws_stale_client_evictions_total",
			Help: "Clients dropped for not answering pings.",
		}),
	}
}
