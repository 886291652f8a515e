package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the client's prometheus collectors.
type Metrics struct {
	Frames              *prometheus.CounterVec
	Dropped             *prometheus.CounterVec
	ReconnectsScheduled prometheus.Counter
	ConnectionState     prometheus.Gauge
	TrackedStreams      prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg gets a private
// registry so the client works without a metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vsense_realtime_frames_total",
			Help: "Inbound realtime frames by message type.",
		}, []string{"type"}),

		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vsense_realtime_frames_dropped_total",
			Help: "Inbound frames dropped without a callback.",
		}, []string{"reason"}), // decode, invalid

		ReconnectsScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "vsense_realtime_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after abnormal closure.",
		}),

		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "vsense_realtime_connection_state",
			Help: "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting).",
		}),

		TrackedStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "vsense_realtime_tracked_streams",
			Help: "Streams held in the latest-score cache. Never pruned within a session.",
		}),
	}
}
