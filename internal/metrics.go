package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by `youpac serve`
type Metrics struct {
	registry *prometheus.Registry

	generations    *prometheus.CounterVec
	generationTime *prometheus.HistogramVec
	transcriptions *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	httpRequests   *prometheus.CounterVec
	droppedEvents  prometheus.Counter
	subscribers    prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "youpac",
			Name:      "generations_total",
			Help:      "Agent content generations by agent type and outcome.",
		}, []string{"agent_type", "outcome"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "youpac",
			Name:      "generation_duration_seconds",
			Help:      "Time spent generating agent content.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"agent_type"}),
		transcriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "youpac",
			Name:      "transcriptions_total",
			Help:      "Video transcriptions by source and outcome.",
		}, []string{"source", "outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "youpac",
			Name:      "upload_bytes_total",
			Help:      "Bytes of media stored.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "youpac",
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		}, []string{"route", "code"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "youpac",
			Name:      "subscription_events_dropped_total",
			Help:      "Events not delivered to slow subscribers.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "youpac",
			Name:      "subscribers",
			Help:      "Open websocket subscriptions.",
		}),
	}

	m.registry.MustRegister(
		m.generations,
		m.generationTime,
		m.transcriptions,
		m.uploadBytes,
		m.httpRequests,
		m.droppedEvents,
		m.subscribers,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeGeneration(agentType AgentType, start time.Time, err error) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(string(agentType), outcome(err)).Inc()
	m.generationTime.WithLabelValues(string(agentType)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeTranscription(source string, err error) {
	if m == nil {
		return
	}
	m.transcriptions.WithLabelValues(source, outcome(err)).Inc()
}

func (m *Metrics) observeUpload(size int64) {
	if m == nil || size <= 0 {
		return
	}
	m.uploadBytes.Add(float64(size))
}

func (m *Metrics) observeRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) eventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

func (m *Metrics) subscriberDelta(delta float64) {
	if m == nil {
		return
	}
	m.subscribers.Add(delta)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(Classify(err))
}
