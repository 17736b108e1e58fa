// Package metrics exports request, extraction and notification counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remindbot"

// Recorder owns a private registry so several instances can coexist in tests.
// A nil *Recorder records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	extractions     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// New registers all collectors, including the Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the reminder API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of reminder API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Free-text reminder extractions by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Reminder notifications by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.requestDuration,
		r.extractions,
		r.notifications,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the registry for assertions.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveRequest records one finished HTTP request.
func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveExtraction records the outcome of one extraction attempt.
func (r *Recorder) ObserveExtraction(err error) {
	if r == nil {
		return
	}
	r.extractions.WithLabelValues(outcome(err)).Inc()
}

// ObserveNotification records one delivery attempt through sink.
func (r *Recorder) ObserveNotification(sink string, err error) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(sink, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
