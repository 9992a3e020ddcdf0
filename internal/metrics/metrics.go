// Package metrics exposes the fabric's Prometheus metrics on /metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the fabric's Prometheus collectors.
type Metrics struct {
	FramesInTotal      prometheus.Counter
	FramesOutTotal      prometheus.Counter
	ResyncTotal         prometheus.Counter
	SessionsActive      *prometheus.GaugeVec
	DropsTotal          *prometheus.CounterVec
	AutopilotState      *prometheus.GaugeVec

	TelemetryBufferedTotal prometheus.Counter
	TelemetryPending       prometheus.Gauge
	TelemetryFailed        prometheus.Gauge
	TelemetrySyncedTotal   prometheus.Counter
	TelemetrySyncErrors    prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Get returns the process-wide Metrics, initializing it on first use.
func Get() *Metrics {
	globalOnce.Do(func() {
		global = newMetrics()
	})
	return global
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.FramesInTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "hub",
		Name:      "frames_in_total",
		Help:      "Total MAVLink frames received from the autopilot link.",
	})
	m.FramesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "hub",
		Name:      "frames_out_total",
		Help:      "Total MAVLink command frames sent to the autopilot link.",
	})
	m.ResyncTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "mavlink",
		Name:      "resync_total",
		Help:      "Total parser resyncs after a bad checksum or malformed frame.",
	})
	m.SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mavfabric",
		Subsystem: "hub",
		Name:      "sessions_active",
		Help:      "Active sessions by transport.",
	}, []string{"transport"})
	m.DropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "hub",
		Name:      "drops_total",
		Help:      "Total frames dropped by a full outbound queue, by transport.",
	}, []string{"transport"})
	m.AutopilotState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mavfabric",
		Subsystem: "autopilot",
		Name:      "link_state",
		Help:      "1 for the autopilot link's current state, 0 otherwise.",
	}, []string{"state"})

	m.TelemetryBufferedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "telemetry",
		Name:      "buffered_total",
		Help:      "Total telemetry records accepted into the buffer.",
	})
	m.TelemetryPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mavfabric",
		Subsystem: "telemetry",
		Name:      "pending_records",
		Help:      "Records awaiting upload.",
	})
	m.TelemetryFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mavfabric",
		Subsystem: "telemetry",
		Name:      "failed_records",
		Help:      "Records in the failed ring awaiting re-admission.",
	})
	m.TelemetrySyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "telemetry",
		Name:      "synced_total",
		Help:      "Total records successfully uploaded.",
	})
	m.TelemetrySyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "telemetry",
		Name:      "sync_errors_total",
		Help:      "Total upload attempts that failed.",
	})

	m.HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mavfabric",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests served by the gateway mux.",
	}, []string{"method", "path", "status"})
	m.HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mavfabric",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "path"})

	return m
}

// Handler returns the promhttp handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware records request count and latency per method/path.
func HTTPMiddleware(next http.Handler) http.Handler {
	m := Get()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, statusClass(wrapped.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
