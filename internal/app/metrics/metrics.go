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
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	pageResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "composition",
			Name:      "page_resolutions_total",
			Help:      "Total number of page composition resolutions.",
		},
		[]string{"page_type", "status"},
	)

	pageResolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "composition",
			Name:      "page_resolve_duration_seconds",
			Help:      "Duration of page composition resolutions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"page_type"},
	)

	themeCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "themes",
			Name:      "module_cache_lookups_total",
			Help:      "Theme module registry cache lookups.",
		},
		[]string{"result"},
	)

	globalsCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "composition",
			Name:      "globals_cache_lookups_total",
			Help:      "Global sections cache lookups.",
		},
		[]string{"result"},
	)

	globalsInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "composition",
			Name:      "globals_invalidations_total",
			Help:      "Global sections cache invalidations.",
		},
		[]string{"source"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pageResolutions,
		pageResolveDuration,
		themeCacheLookups,
		globalsCacheLookups,
		globalsInvalidations,
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

// RecordPageResolution records one composition resolution.
func RecordPageResolution(pageType, status string, duration time.Duration) {
	if pageType == "" {
		pageType = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	pageResolutions.WithLabelValues(pageType, status).Inc()
	pageResolveDuration.WithLabelValues(pageType).Observe(duration.Seconds())
}

// RecordThemeCache records a theme module registry lookup.
func RecordThemeCache(hit bool) {
	themeCacheLookups.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordGlobalsCache records a global sections cache lookup.
func RecordGlobalsCache(hit bool) {
	globalsCacheLookups.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordGlobalsInvalidation records a global sections cache invalidation and
// where it came from ("write", "broadcast", "ttl").
func RecordGlobalsInvalidation(source string) {
	if source == "" {
		source = "unknown"
	}
	globalsInvalidations.WithLabelValues(source).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
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
	case "render":
		return "/render/:subdomain/:page"
	case "storefronts":
		if len(parts) == 1 {
			return "/storefronts"
		}
		if len(parts) == 2 {
			return "/storefronts/:storefront"
		}
		return "/storefronts/:storefront/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
