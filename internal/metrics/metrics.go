// Package metrics defines the Prometheus collectors for session activity:
// gateway requests, bootstrap outcomes, rejected tokens and logouts.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bootstrap outcomes.
const (
	OutcomeProfile      = "profile"
	OutcomeTokenOnly    = "token_only"
	OutcomeInvalidToken = "invalid_token"
	OutcomeAnonymous    = "anonymous"
	OutcomeDiscarded    = "discarded"
)

// Metrics holds the session manager's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bootstraps      *prometheus.CounterVec
	invalidTokens   prometheus.Counter
	logouts         prometheus.Counter
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldops",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Authorized requests sent through the session gateway",
		}, []string{"method", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fieldops",
			Subsystem: "session",
			Name:      "request_duration_seconds",
			Help:      "Latency of authorized requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		bootstraps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldops",
			Subsystem: "session",
			Name:      "bootstraps_total",
			Help:      "Completed session bootstrap passes by outcome",
		}, []string{"outcome"}),
		invalidTokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldops",
			Subsystem: "session",
			Name:      "invalid_tokens_total",
			Help:      "Tokens rejected by the local decoder",
		}),
		logouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldops",
			Subsystem: "session",
			Name:      "logouts_total",
			Help:      "Logouts, explicit or forced by a 401",
		}),
	}
}

// ObserveRequest records one gateway call. code 0 means no response was received.
func (m *Metrics) ObserveRequest(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// BootstrapCompleted counts one finished bootstrap pass by outcome.
func (m *Metrics) BootstrapCompleted(outcome string) {
	if m == nil {
		return
	}
	m.bootstraps.WithLabelValues(outcome).Inc()
}

// InvalidToken counts a token that could not be decoded and was discarded.
func (m *Metrics) InvalidToken() {
	if m == nil {
		return
	}
	m.invalidTokens.Inc()
}

// LoggedOut counts one logout, whatever the server answered.
func (m *Metrics) LoggedOut() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

// Handler serves the collectors gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteFile dumps the collectors gathered by g to path, for one-shot
// commands that exit before anything could scrape them.
func WriteFile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
