package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-folio/internal/version"
)

type ServerMetrics struct {
	reg                  *prometheus.Registry
	handler              http.Handler
	inflight             prometheus.Gauge
	reqTotal             *prometheus.CounterVec
	reqDur               *prometheus.HistogramVec
	respBytes            *prometheus.HistogramVec
	errorsTotal          *prometheus.CounterVec
	httpPanicTotal       prometheus.Counter
	buildInfo            *prometheus.GaugeVec
	ratelimitDeniedTotal prometheus.Counter
	profilingActive      prometheus.Gauge

	// auth
	loginAttempts *prometheus.CounterVec
	lockouts      prometheus.Counter

	// content
	contentWrites *prometheus.CounterVec

	// publish
	publishTotal       *prometheus.CounterVec
	publishDuration    prometheus.Histogram
	publishLastSuccess prometheus.Gauge

	// uploads
	uploadsTotal   *prometheus.CounterVec
	uploadBytes    prometheus.Histogram
	transcodeTotal *prometheus.CounterVec
}

// New returns a fresh registry + standard collectors + HTTP and domain metrics
// safe labels only (method, route, code, category, result) to avoid cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome (success, viewer, invalid, locked, bad_request, error)",
		}, []string{"result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Number of times a client address reached the failed-login threshold",
		}),
		contentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_writes_total",
			Help: "Content document writes by category and outcome",
		}, []string{"category", "result"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publish_runs_total",
			Help: "Publish runs by outcome (published, nothing_to_commit, in_progress, or the failed step)",
		}, []string{"result"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "publish_duration_seconds",
			Help:    "Wall time of completed publish runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		publishLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "publish_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful publish",
		}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Upload requests by outcome",
		}, []string{"result"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upload_stored_bytes",
			Help:    "Size of stored uploads after any transcoding",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 8),
		}),
		transcodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_transcode_total",
			Help: "Image transcode attempts by outcome (ok, skipped, failed)",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.profilingActive,
		m.loginAttempts,
		m.lockouts,
		m.contentWrites,
		m.publishTotal,
		m.publishDuration,
		m.publishLastSuccess,
		m.uploadsTotal,
		m.uploadBytes,
		m.transcodeTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncLoginAttempt(result string) {
	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncLockout() {
	m.lockouts.Inc()
}

func (m *ServerMetrics) IncContentWrite(category, result string) {
	m.contentWrites.WithLabelValues(category, result).Inc()
}

// ObservePublish records a publish outcome; d and finished are only used on success.
func (m *ServerMetrics) ObservePublish(result string, d time.Duration, finished time.Time) {
	m.publishTotal.WithLabelValues(result).Inc()
	if result == "published" || result == "nothing_to_commit" {
		m.publishDuration.Observe(d.Seconds())
		m.publishLastSuccess.Set(float64(finished.Unix()))
	}
}

func (m *ServerMetrics) ObserveUpload(result string, storedBytes int64) {
	m.uploadsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.uploadBytes.Observe(float64(storedBytes))
	}
}

func (m *ServerMetrics) IncTranscode(result string) {
	m.transcodeTotal.WithLabelValues(result).Inc()
}
