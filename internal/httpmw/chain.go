package httpmw

import (
	"net/http"
	"slices"
)

// Middleware wraps an http.Handler.
type Middleware = func(http.Handler) http.Handler

// Chain wraps h so that mws[0] sees the request first. Nil entries are
// skipped, which lets callers pass optional middleware inline.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, mw := range slices.Backward(mws) {
		if mw != nil {
			h = mw(h)
		}
	}
	return h
}
