package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlemap_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tlemap_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tlemap_sessions_active",
		Help: "Number of ground-track sessions currently animating.",
	})

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlemap_sessions_total",
			Help: "Session add attempts by outcome.",
		},
		[]string{"outcome"},
	)

	passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlemap_passes_total",
			Help: "Sampling passes by result.",
		},
		[]string{"result"},
	)

	passDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tlemap_pass_duration_seconds",
		Help:    "Wall time spent sampling and segmenting one pass.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	crossingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tlemap_antimeridian_crossings_total",
		Help: "Anti-meridian crossings split out of rendered tracks.",
	})

	overlayUpdatesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tlemap_overlay_updates_dropped_total",
		Help: "Overlay updates dropped for slow subscribers.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlemap_stream_connections_total",
			Help: "SSE connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tlemap_streams_active",
		Help: "Open SSE overlay streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tlemap_stream_messages_total",
		Help: "SSE data messages sent.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tlemap_stream_bytes_total",
		Help: "Bytes written to SSE streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlemap_stream_errors_total",
			Help: "SSE errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		sessionsActive,
		sessionsTotal,
		passesTotal,
		passDurationSeconds,
		crossingsTotal,
		overlayUpdatesDropped,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncSessionsActive()             { sessionsActive.Inc() }
func DecSessionsActive()             { sessionsActive.Dec() }
func IncSessions(outcome string)     { sessionsTotal.WithLabelValues(outcome).Inc() }
func IncPasses(result string)        { passesTotal.WithLabelValues(result).Inc() }
func AddCrossings(n int)             { crossingsTotal.Add(float64(n)) }
func IncOverlayUpdatesDropped()      { overlayUpdatesDropped.Inc() }
func IncStreamConnections(ev string) { streamConnectionsTotal.WithLabelValues(ev).Inc() }
func IncStreamsActive()              { streamsActive.Inc() }
func DecStreamsActive()              { streamsActive.Dec() }
func IncStreamMessages()             { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)         { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string)  { streamErrorsTotal.WithLabelValues(reason).Inc() }

// ObservePassDuration records how long one pass took to compute.
func ObservePassDuration(d time.Duration) {
	passDurationSeconds.Observe(d.Seconds())
}

// knownRoutes are exact paths reported under their own label.
var knownRoutes = map[string]bool{
	"/":                       true,
	"/app.js":                 true,
	"/styles.css":             true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/api/v1/sessions":        true,
	"/api/v1/stream/overlays": true,
}

const sessionsPrefix = "/api/v1/sessions/"

// normalizeRoute collapses request paths into a bounded label set so session
// ids and bot probes cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, sessionsPrefix); ok && rest != "" {
		id, tail, _ := strings.Cut(rest, "/")
		switch {
		case id == "":
			return "other"
		case tail == "":
			return "/api/v1/sessions/{id}"
		case tail == "track":
			return "/api/v1/sessions/{id}/track"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
