package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CategoryAttr is set on spans of routes that carry a {category} parameter.
const CategoryAttr = attribute.Key("folio.content.category")

// AnnotateHTTPRoute renames the active span to "METHOD pattern" once chi has
// routed the request, and records http.route. Unrouted requests keep the URL
// path.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}

		pattern, category := r.URL.Path, ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				pattern = p
			}
			category = rc.URLParam("category")
		}

		span.SetName(r.Method + " " + pattern)
		span.SetAttributes(attribute.String("http.route", pattern))
		if category != "" {
			span.SetAttributes(CategoryAttr.String(category))
		}
	})
}
