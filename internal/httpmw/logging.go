package httpmw

import (
	"context"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
)

// quietExts are admin UI and upload extensions left out of the access log.
var quietExts = map[string]bool{
	".css": true, ".js": true, ".map": true, ".ico": true, ".svg": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".woff": true, ".woff2": true, ".pdf": true,
}

// quietPaths are probe endpoints left out of the access log.
var quietPaths = map[string]bool{
	"/-/ready":   true,
	"/-/healthy": true,
}

func quiet(urlPath string) bool {
	return quietPaths[urlPath] || quietExts[strings.ToLower(path.Ext(urlPath))]
}

// accessWriter records status and body size for the access log, and times
// the response write in a "response.write" child span when the request is
// traced.
type accessWriter struct {
	http.ResponseWriter
	ctx     context.Context
	started time.Time

	status int
	bytes  int64

	spanOpen bool
	span     trace.Span
	blocked  time.Duration
	writeErr error
}

func (aw *accessWriter) openSpan() {
	if aw.spanOpen {
		return
	}
	aw.spanOpen = true
	if !trace.SpanFromContext(aw.ctx).IsRecording() {
		return
	}
	ttfb := time.Since(aw.started)
	_, aw.span = otel.Tracer("folio/httpmw").Start(aw.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", ttfb.Seconds())))
}

func (aw *accessWriter) closeSpan() {
	if aw.span == nil {
		return
	}
	aw.span.SetAttributes(
		attribute.Int("http.response.status_code", aw.code()),
		attribute.Int64("http.response.body.size", aw.bytes),
		attribute.Float64("http.server.write.block_seconds", aw.blocked.Seconds()),
	)
	if aw.writeErr != nil {
		aw.span.RecordError(aw.writeErr)
		aw.span.SetStatus(codes.Error, aw.writeErr.Error())
	}
	aw.span.End()
}

func (aw *accessWriter) code() int {
	if aw.status == 0 {
		return http.StatusOK
	}
	return aw.status
}

func (aw *accessWriter) WriteHeader(code int) {
	aw.openSpan()
	if aw.status == 0 {
		aw.status = code
	}
	t := time.Now()
	aw.ResponseWriter.WriteHeader(code)
	aw.blocked += time.Since(t)
}

func (aw *accessWriter) Write(b []byte) (int, error) {
	aw.openSpan()
	if aw.status == 0 {
		aw.status = http.StatusOK
	}
	t := time.Now()
	n, err := aw.ResponseWriter.Write(b)
	aw.blocked += time.Since(t)
	aw.bytes += int64(n)
	if err != nil && aw.writeErr == nil {
		aw.writeErr = err
	}
	return n, err
}

func (aw *accessWriter) Flush() {
	if f, ok := aw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (aw *accessWriter) Unwrap() http.ResponseWriter { return aw.ResponseWriter }

// WithLogger puts a request-scoped logger into the context. It carries the
// request id, the resolved client address and the raw peer address, so it
// must run after RequestID and ClientIP.
func WithLogger(base log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			scheme := schemeFromRequest(r)

			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = peer
			}

			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("server.address", r.Host),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"server.address", r.Host,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// AccessLog writes one "http request" line per request with the chi route
// pattern, status, sizes and duration. Asset and probe requests are skipped.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			aw := &accessWriter{ResponseWriter: w, ctx: r.Context(), started: time.Now()}
			next.ServeHTTP(aw, r)
			aw.closeSpan()

			if quiet(r.URL.Path) {
				return
			}

			ctx := r.Context()
			route := r.URL.Path
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}

			log.FromContext(ctx).Info(ctx, "http request",
				"http.response.status_code", aw.code(),
				"http.server.request.duration", time.Since(aw.started).Seconds(),
				"http.response.body.size", aw.bytes,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", route,
			)
		})
	}
}

// schemeFromRequest returns "http" or "https". X-Forwarded-Proto only
// survives to this point when ClientIP trusted the proxy that sent it.
func schemeFromRequest(r *http.Request) string {
	candidates := []string{r.Header.Get("X-Forwarded-Proto")}
	if r.URL != nil {
		candidates = append(candidates, r.URL.Scheme)
	}
	for _, c := range candidates {
		first, _, _ := strings.Cut(c, ",")
		switch v := strings.ToLower(strings.TrimSpace(first)); v {
		case "http", "https":
			return v
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Scope names the handler on the request logger and the active span.
func Scope(handler string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if L, ok := log.Lookup(ctx); ok {
				ctx = log.WithContext(ctx, L.With("handler", handler))
			}
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
