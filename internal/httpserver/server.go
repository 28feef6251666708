package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-folio/internal/health"
	"github.com/keithlinneman/linnemanlabs-folio/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// NewHandler builds the public HTTP handler with routes + middleware.
// main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	r := chi.NewRouter()

	// JSON documents compress well; uploads are already compressed formats
	r.Use(middleware.Compress(5,
		"application/json",
		"text/html",
		"text/css",
		"application/javascript",
		"text/javascript",
		"image/svg+xml",
	))

	// rename the server span to the chi route pattern once routing is done
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Use(httpmw.AccessLog())

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	if opts.Routes != nil {
		opts.Routes(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONStatus(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONStatus(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Middleware, innermost first
	var h http.Handler = r

	// request-scoped logger sees request id, client ip and trace
	h = httpmw.WithLogger(logger)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern later
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// answers preflights before rate limiting so browsers aren't penalised twice
	h = httpmw.CORS(opts.CORS)(h)

	// rate limiting uses the resolved client ip
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}

	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)

	h = httpmw.RequestID("X-Request-Id")(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(logger, opts.OnPanic)(h)
	}

	// outermost so every response carries them, including panics and 429s
	h = httpmw.SecurityHeadersWithOptions(opts.Security)(h)

	return h
}

// shouldTrace skips health checks and static files.
func shouldTrace(p string) bool {
	if p == "/-/healthy" || p == "/-/ready" || p == "/favicon.ico" || p == "/robots.txt" {
		return false
	}
	if strings.HasPrefix(p, "/uploads/") {
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

func writeJSONStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}

// Server timeout defaults.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 120 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
	DefaultPort              = 8080
)

func NewServer(addr string, handler http.Handler, writeTimeout time.Duration) *http.Server {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start serves NewHandler(opts) and returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts), opts.WriteTimeout)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on addr=%v", addr)
	}

	go func() {
		logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	var stopErr error
	stop := func(sctx context.Context) error {
		once.Do(func() {
			logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 10*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}
	return stop, nil
}
