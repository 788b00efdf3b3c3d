package chatclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes recorded by Metrics.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomeInvalid = "invalid"
)

// Metrics records RPC and connection metrics. A nil *Metrics is a no-op.
type Metrics struct {
	calls     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	connected prometheus.Gauge
	idle      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg, if non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "totem",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "RPC calls by event and outcome.",
		}, []string{"event", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "totem",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency, including precondition waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "totem",
			Subsystem: "transport",
			Name:      "connected",
			Help:      "1 while the transport is connected.",
		}),
		idle: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "totem",
			Subsystem: "transport",
			Name:      "idle_disconnects_total",
			Help:      "Disconnects triggered by the idle timer.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.duration, m.connected, m.idle)
	}
	return m
}

func (m *Metrics) observeCall(event, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(event, outcome).Inc()
	if outcome != outcomeInvalid {
		m.duration.WithLabelValues(event).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) setConnected(v bool) {
	if m == nil {
		return
	}
	if v {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) idleDisconnect() {
	if m == nil {
		return
	}
	m.idle.Inc()
}
