package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "posterwatch",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posterwatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "posterwatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	checkRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posterwatch",
			Subsystem: "checker",
			Name:      "runs_total",
			Help:      "Total number of poster check runs.",
		},
		[]string{"status"},
	)

	checkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "posterwatch",
			Subsystem: "checker",
			Name:      "run_duration_seconds",
			Help:      "Duration of poster check runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	mirrorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posterwatch",
			Subsystem: "nitter",
			Name:      "mirror_failures_total",
			Help:      "Total number of failed mirror fetch attempts.",
		},
		[]string{"mirror"},
	)

	postersFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "posterwatch",
			Subsystem: "checker",
			Name:      "new_posters_total",
			Help:      "Total number of new posters detected.",
		},
	)

	alertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posterwatch",
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Total number of alert deliveries, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		checkRuns,
		checkDuration,
		mirrorFailures,
		postersFound,
		alertsSent,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordCheckRun records a completed poster check run.
func RecordCheckRun(duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	checkRuns.WithLabelValues(status).Inc()
	checkDuration.Observe(duration.Seconds())
}

// RecordMirrorFailure counts a failed fetch against a mirror.
func RecordMirrorFailure(mirror string) {
	if mirror == "" {
		mirror = "unknown"
	}
	mirrorFailures.WithLabelValues(mirror).Inc()
}

// RecordNewPosters counts newly detected posters.
func RecordNewPosters(count int) {
	if count > 0 {
		postersFound.Add(float64(count))
	}
}

// RecordAlert counts one alert delivery attempt.
func RecordAlert(success bool) {
	outcome := "failed"
	if success {
		outcome = "sent"
	}
	alertsSent.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the instrumented chain.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "webhook":
		// Never expose the bot token embedded in the webhook path.
		return "/webhook/:token"
	case "watches":
		if len(parts) > 1 {
			return "/watches/:handle"
		}
		return "/watches"
	case "subscribers":
		if len(parts) > 1 {
			return "/subscribers/:chat"
		}
		return "/subscribers"
	default:
		return "/" + parts[0]
	}
}
