package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-folio/internal/health"
	"github.com/keithlinneman/linnemanlabs-folio/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions
	Security     httpmw.SecurityOptions
	CORS         httpmw.CORSOptions

	// Health and Readiness are also served on the public listener when set,
	// for load balancers that can only probe the traffic port.
	Health    health.Probe
	Readiness health.Probe

	// Routes registers the application routes (API, uploads, admin UI).
	Routes func(chi.Router)

	// WriteTimeout must cover a publish run, which shells out to git push.
	WriteTimeout time.Duration
}
