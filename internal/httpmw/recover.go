package httpmw

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// Recover converts a handler panic into a JSON 500 and one error log line.
// onPanic, when non-nil, runs after the log line (the server counts panics
// with it). http.ErrAbortHandler is re-raised for net/http to handle.
func Recover(logger log.Logger, onPanic func()) Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				err := panicError(v)
				if errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				ctx := r.Context()
				logger.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(ctx),
				).Error(ctx, err, "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func panicError(v any) error {
	if e, ok := v.(error); ok {
		if errors.Is(e, http.ErrAbortHandler) {
			return e
		}
		return xerrors.Wrap(e, "panic")
	}
	return xerrors.Newf("panic: %v", v)
}
