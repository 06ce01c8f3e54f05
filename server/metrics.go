package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/becomeliminal/recall/engine"
)

const namespace = "recall"

// Metrics exports chat, intent and memory metrics in Prometheus format.
type Metrics struct {
	registry *prometheus.Registry

	chatRequests   *prometheus.CounterVec
	chatLatency    *prometheus.HistogramVec
	intentDecision *prometheus.CounterVec
	memoryOps      *prometheus.CounterVec
	rateLimited    prometheus.Counter
	wsActive       prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat turns",
		},
		[]string{"transport", "status"},
	)
	m.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "Chat turn latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"transport"},
	)
	m.intentDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intent",
			Name:      "decisions_total",
			Help:      "Intent gating decisions by message type",
		},
		[]string{"type", "retrieve", "store"},
	)
	m.memoryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "operations_total",
			Help:      "Memory operations by kind and outcome",
		},
		[]string{"op", "status"},
	)
	m.rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-user rate limiter",
		},
	)
	m.wsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections_active",
			Help:      "Open WebSocket connections",
		},
	)

	m.registry.MustRegister(
		m.chatRequests,
		m.chatLatency,
		m.intentDecision,
		m.memoryOps,
		m.rateLimited,
		m.wsActive,
	)
	return m
}

// ObserveChat records one finished turn.
func (m *Metrics) ObserveChat(transport string, out *engine.Output, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.chatRequests.WithLabelValues(transport, status).Inc()
	m.chatLatency.WithLabelValues(transport).Observe(d.Seconds())

	if out == nil {
		return
	}
	if out.Intent != nil {
		m.intentDecision.WithLabelValues(
			string(out.Intent.MessageType),
			strconv.FormatBool(out.Intent.RetrieveNeeded),
			strconv.FormatBool(out.Intent.StoreNeeded),
		).Inc()
	}
	if len(out.MemoriesUsed) > 0 {
		m.memoryOps.WithLabelValues("retrieve", "ok").Inc()
	}
	if out.Intent != nil && out.Intent.StoreNeeded {
		m.memoryOps.WithLabelValues("store", okLabel(out.Stored)).Inc()
	}
}

// ObserveMemoryOp records a memory API call.
func (m *Metrics) ObserveMemoryOp(op string, ok bool) {
	m.memoryOps.WithLabelValues(op, okLabel(ok)).Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
