// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 所有方法都允许 nil 接收者，未启用监控时直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	OnlinePlayers    prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	MessagesReceived *prometheus.CounterVec
	MessagesRejected *prometheus.CounterVec
	Broadcasts       prometheus.Counter
	MessageLatency   *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of open client connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of events handled by rooms",
		}, []string{"type"}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Events rejected with an error sent back to the client",
		}, []string{"code"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Messages broadcast to rooms",
		}),
		MessageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OnlinePlayers,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessagesRejected,
		m.Broadcasts,
		m.MessageLatency,
	)

	return m
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncOnlinePlayers() {
	if m == nil {
		return
	}
	m.OnlinePlayers.Inc()
}

func (m *Metrics) DecOnlinePlayers() {
	if m == nil {
		return
	}
	m.OnlinePlayers.Dec()
}

func (m *Metrics) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.ActiveRooms.Set(float64(count))
}

func (m *Metrics) IncMessagesReceived(eventType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncRejected(code string) {
	if m == nil {
		return
	}
	m.MessagesRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) IncBroadcasts() {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
}

func (m *Metrics) ObserveMessageLatency(eventType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.MessageLatency.WithLabelValues(eventType).Observe(duration.Seconds())
}
