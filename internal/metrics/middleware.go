package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests chi could not route. Raw paths are never
// used as label values.
const unmatchedRoute = "unmatched"

// countingWriter remembers the status code and body size of a response.
type countingWriter struct {
	http.ResponseWriter
	code    int
	written int
}

func (cw *countingWriter) WriteHeader(code int) {
	if cw.code == 0 {
		cw.code = code
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.code == 0 {
		cw.code = http.StatusOK
	}
	n, err := cw.ResponseWriter.Write(p)
	cw.written += n
	return n, err
}

func (cw *countingWriter) Unwrap() http.ResponseWriter { return cw.ResponseWriter }

func (cw *countingWriter) status() int {
	if cw.code == 0 {
		return http.StatusOK
	}
	return cw.code
}

// Middleware records in-flight requests, request totals, 5xx totals, latency
// and response size, labelled by method and chi route pattern.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()

		// chi fills a route context it finds on the request, so creating one
		// here lets the pattern be read back after routing.
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		cw := &countingWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		ctx := r.Context()
		route := routeLabel(ctx)
		code := cw.status()

		m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		if code >= http.StatusInternalServerError {
			m.errorsTotal.WithLabelValues(r.Method, route).Inc()
		}
		observeWithTrace(ctx, m.reqDur.WithLabelValues(r.Method, route), time.Since(began).Seconds())
		m.respBytes.WithLabelValues(r.Method, route).Observe(float64(cw.written))
	})
}

func routeLabel(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

// observeWithTrace attaches the trace id as an exemplar when the request
// carries a sampled span.
func observeWithTrace(ctx context.Context, o prometheus.Observer, v float64) {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() && sc.IsSampled() {
		if eo, ok := o.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": sc.TraceID().String()})
			return
		}
	}
	o.Observe(v)
}
