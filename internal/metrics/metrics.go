package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	deviceToggles       *prometheus.CounterVec
	routineRunsTotal    prometheus.Counter
	routineRunDuration  prometheus.Histogram
	feedEventsTotal     prometheus.Counter
}

// New creates a fresh Metrics registry with HTTP, device and routine metrics
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homecore",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by homed",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homecore",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by homed",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	deviceToggles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homecore",
		Name:      "device_toggles_total",
		Help:      "Count of device on/off writes, by device type and target state",
	}, []string{"type", "state"})

	routineRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homecore",
		Name:      "routine_runs_total",
		Help:      "Total number of routine runs executed",
	})

	routineRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "homecore",
		Name:      "routine_run_duration_seconds",
		Help:      "Duration of routine runs including bulk device writes",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	feedEventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homecore",
		Name:      "feed_events_published_total",
		Help:      "Device change events published to the feed",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		deviceToggles,
		routineRunsTotal,
		routineRunDuration,
		feedEventsTotal,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		deviceToggles:       deviceToggles,
		routineRunsTotal:    routineRunsTotal,
		routineRunDuration:  routineRunDuration,
		feedEventsTotal:     feedEventsTotal,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncDeviceToggle counts one device state write.
func (m *Metrics) IncDeviceToggle(deviceType string, on bool) {
	if m == nil {
		return
	}
	state := "off"
	if on {
		state = "on"
	}
	m.deviceToggles.With(prometheus.Labels{"type": deviceType, "state": state}).Inc()
}

// IncRoutineRun counts one routine execution.
func (m *Metrics) IncRoutineRun() {
	if m == nil {
		return
	}
	m.routineRunsTotal.Inc()
}

// ObserveRoutineRunDuration observes a routine run duration.
func (m *Metrics) ObserveRoutineRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.routineRunDuration.Observe(duration.Seconds())
}

// IncFeedEvent counts one published device change event.
func (m *Metrics) IncFeedEvent() {
	if m == nil {
		return
	}
	m.feedEventsTotal.Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
