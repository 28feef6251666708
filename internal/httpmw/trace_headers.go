package httpmw

import (
	"cmp"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTraceHeader = "X-Trace-Id"
	DefaultSpanHeader  = "X-Span-Id"
)

// TraceResponseHeaders copies the request's trace and span ids into response
// headers, so a failed save in the admin UI can be looked up by trace id.
// Empty names select the defaults. Requests without a valid span context get
// no headers.
func TraceResponseHeaders(traceHeader, spanHeader string) Middleware {
	traceHeader = cmp.Or(traceHeader, DefaultTraceHeader)
	spanHeader = cmp.Or(spanHeader, DefaultSpanHeader)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				h := w.Header()
				h.Set(traceHeader, sc.TraceID().String())
				h.Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
