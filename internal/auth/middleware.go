package auth

import (
	"errors"
	"net/http"
	"slices"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
)

// Middleware rejects requests without a valid bearer token and attaches the
// token's Claims to the request context.
//
//	missing or malformed header -> 401 {"error":"token missing"}
//	expired                     -> 403 {"error":"token expired"}
//	anything else               -> 403 {"error":"invalid token"}
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tok, err := BearerToken(r)
		if err == nil {
			var c *Claims
			c, err = v.Validate(tok)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithClaims(ctx, c)))
				return
			}
		}

		log.FromContext(ctx).Debug(ctx, "session rejected", "reason", err.Error())
		switch {
		case errors.Is(err, ErrMissingToken):
			writeError(w, http.StatusUnauthorized, ErrMissingToken)
		case errors.Is(err, ErrTokenExpired):
			writeError(w, http.StatusForbidden, ErrTokenExpired)
		default:
			writeError(w, http.StatusForbidden, ErrTokenInvalid)
		}
	})
}

// RequireRole allows only sessions whose role is in roles. It must run after
// Middleware.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, ErrMissingToken)
				return
			}
			if !slices.Contains(roles, c.Role) {
				writeError(w, http.StatusForbidden, ErrInsufficientRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + err.Error() + `"}` + "\n"))
}
