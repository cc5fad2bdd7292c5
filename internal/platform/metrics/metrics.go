package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the streamer.
type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter
	streamStarts  *prometheus.CounterVec
	restartsTotal *prometheus.CounterVec
	encoderExits  *prometheus.CounterVec
	activeSession prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamer_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamer_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	streamStarts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamer_stream_starts_total",
		Help: "Stream start attempts by result",
	}, []string{"result"})
	restartsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamer_restarts_scheduled_total",
		Help: "Automatic restarts scheduled by trigger",
	}, []string{"reason"})
	encoderExits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamer_encoder_exits_total",
		Help: "Encoder process exits by classification",
	}, []string{"reason"})
	activeSession := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamer_active_session",
		Help: "1 while an encoder session is live, 0 otherwise",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streamStarts,
		restartsTotal,
		encoderExits,
		activeSession,
	)

	return &Metrics{
		registry:      registry,
		requestsTotal: requestsTotal,
		errorsTotal:   errorsTotal,
		streamStarts:  streamStarts,
		restartsTotal: restartsTotal,
		encoderExits:  encoderExits,
		activeSession: activeSession,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStreamStart records a start attempt outcome ("ok", "asset_missing", "encoder_error", ...).
func (m *Metrics) IncStreamStart(result string) {
	m.streamStarts.WithLabelValues(result).Inc()
}

// IncRestartScheduled records a scheduled restart ("end" or "killed").
func (m *Metrics) IncRestartScheduled(reason string) {
	m.restartsTotal.WithLabelValues(reason).Inc()
}

// IncEncoderExit records how an encoder process finished.
func (m *Metrics) IncEncoderExit(reason string) {
	m.encoderExits.WithLabelValues(reason).Inc()
}

// SetActiveSession sets the active session gauge.
func (m *Metrics) SetActiveSession(active bool) {
	if active {
		m.activeSession.Set(1)
		return
	}
	m.activeSession.Set(0)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
