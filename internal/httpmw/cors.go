package httpmw

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSOptions lists the browser origins allowed to call the API, for an
// admin UI or static site served from another host.
type CORSOptions struct {
	AllowedOrigins []string
	MaxAgeSeconds  int
	Debug          bool
}

// CORS returns rs/cors middleware for opts. With no allowed origins it is a
// no-op and the browser's same-origin policy applies.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	maxAge := opts.MaxAgeSeconds
	if maxAge <= 0 {
		maxAge = 600
	}
	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-Match", "X-Request-Id"},
		ExposedHeaders: []string{"ETag", "X-Request-Id", "X-Trace-Id"},
		MaxAge:         maxAge,
		// bearer tokens travel in a header, never cookies
		AllowCredentials: false,
		Debug:            opts.Debug,
	})
	return c.Handler
}
