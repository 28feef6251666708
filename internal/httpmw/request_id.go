package httpmw

import (
	"cmp"
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultRequestIDHeader = "X-Request-Id"

	// MaxRequestIDLen bounds client-supplied ids before they reach logs.
	MaxRequestIDLen = 64
)

type requestIDKey struct{}

// WithRequestID attaches id to ctx. An empty id leaves ctx unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID keeps a well-formed id from the named header (default
// X-Request-Id) or mints a UUID, stores it in the context and echoes it on
// the response. Ids a proxy or admin UI sends may be at most MaxRequestIDLen
// characters of [A-Za-z0-9_-].
func RequestID(headerName string) Middleware {
	headerName = cmp.Or(headerName, DefaultRequestIDHeader)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerName)
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(headerName, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLen {
		return false
	}
	return !strings.ContainsFunc(id, func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_')
	})
}
