package httpmw

import "net/http"

// MaxBody caps request bodies at limit bytes. Requests declaring a larger
// Content-Length get a JSON 413 without reaching next; chunked or
// undeclared bodies fail with *http.MaxBytesError when read past the cap.
// A limit <= 0 disables the check.
func MaxBody(limit int64) Middleware {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
