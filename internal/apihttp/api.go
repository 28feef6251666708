package apihttp

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-folio/internal/auth"
	"github.com/keithlinneman/linnemanlabs-folio/internal/content"
	"github.com/keithlinneman/linnemanlabs-folio/internal/guard"
	"github.com/keithlinneman/linnemanlabs-folio/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/publish"
	"github.com/keithlinneman/linnemanlabs-folio/internal/upload"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const (
	// DefaultLoginDelay is the minimum time a login response takes.
	DefaultLoginDelay = time.Second

	// DefaultMaxDocumentBytes caps a PUT body.
	DefaultMaxDocumentBytes = 1 << 20

	// multipart framing on top of the file itself
	uploadOverhead = 1 << 20
)

// ContentStore reads and replaces category documents.
type ContentStore interface {
	Read(ctx context.Context, c content.Category) (*content.Document, error)
	Write(ctx context.Context, c content.Category, raw []byte, ifMatch string) (*content.Document, error)
}

type Publisher interface {
	Publish(ctx context.Context, message string) (publish.Result, error)
}

type Uploader interface {
	Save(ctx context.Context, fh *multipart.FileHeader) (*upload.Asset, error)
	MaxBytes() int64
}

// Metrics receives outcome counts. *metrics.ServerMetrics satisfies it.
type Metrics interface {
	IncLoginAttempt(result string)
	IncContentWrite(category, result string)
	ObservePublish(result string, d time.Duration, finished time.Time)
	ObserveUpload(result string, storedBytes int64)
}

type Options struct {
	Logger    log.Logger
	Content   ContentStore
	Issuer    *auth.Issuer
	Validator *auth.Validator
	Guard     *guard.Guard
	Publisher Publisher
	Uploads   Uploader
	Metrics   Metrics

	// LoginLimit wraps only the login route, on top of the global limiter.
	LoginLimit func(http.Handler) http.Handler

	// Static handlers mounted at /uploads/* and /admin/*. Either may be nil.
	UploadFiles http.Handler
	AdminUI     http.Handler

	// LoginDelay defaults to DefaultLoginDelay; negative disables it.
	LoginDelay       time.Duration
	MaxDocumentBytes int64

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration)
	Now   func() time.Time
}

// API implements the content, auth, upload and publish endpoints.
type API struct {
	logger    log.Logger
	content   ContentStore
	issuer    *auth.Issuer
	validator *auth.Validator
	guard     *guard.Guard
	publisher Publisher
	uploads   Uploader
	metrics   Metrics

	loginLimit  func(http.Handler) http.Handler
	uploadFiles http.Handler
	adminUI     http.Handler

	loginDelay  time.Duration
	maxDocBytes int64
	sleep       func(ctx context.Context, d time.Duration)
	now         func() time.Time
}

// NewAPI checks that every collaborator is present and fills defaults.
func NewAPI(opts Options) (*API, error) {
	switch {
	case opts.Content == nil:
		return nil, xerrors.New("apihttp: content store is required")
	case opts.Issuer == nil || opts.Validator == nil:
		return nil, xerrors.New("apihttp: session issuer and validator are required")
	case opts.Guard == nil:
		return nil, xerrors.New("apihttp: login guard is required")
	case opts.Publisher == nil:
		return nil, xerrors.New("apihttp: publisher is required")
	case opts.Uploads == nil:
		return nil, xerrors.New("apihttp: upload store is required")
	}

	api := &API{
		logger:      opts.Logger,
		content:     opts.Content,
		issuer:      opts.Issuer,
		validator:   opts.Validator,
		guard:       opts.Guard,
		publisher:   opts.Publisher,
		uploads:     opts.Uploads,
		metrics:     opts.Metrics,
		loginLimit:  opts.LoginLimit,
		uploadFiles: opts.UploadFiles,
		adminUI:     opts.AdminUI,
		loginDelay:  opts.LoginDelay,
		maxDocBytes: opts.MaxDocumentBytes,
		sleep:       opts.Sleep,
		now:         opts.Now,
	}
	if api.logger == nil {
		api.logger = log.Nop()
	}
	if api.metrics == nil {
		api.metrics = nopMetrics{}
	}
	if api.loginLimit == nil {
		api.loginLimit = func(next http.Handler) http.Handler { return next }
	}
	switch {
	case api.loginDelay == 0:
		api.loginDelay = DefaultLoginDelay
	case api.loginDelay < 0:
		api.loginDelay = 0
	}
	if api.maxDocBytes <= 0 {
		api.maxDocBytes = DefaultMaxDocumentBytes
	}
	if api.sleep == nil {
		api.sleep = sleepContext
	}
	if api.now == nil {
		api.now = time.Now
	}
	return api, nil
}

// RegisterRoutes attaches every endpoint to r.
func (api *API) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("content.get")).Get("/api/{category}", api.HandleGetContent)
	r.With(api.loginLimit, httpmw.Scope("auth.login")).Post("/api/auth/login", api.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(api.validator.Middleware)
		r.With(httpmw.Scope("auth.verify")).Get("/api/auth/verify", api.HandleVerify)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.With(httpmw.MaxBody(api.maxDocBytes), httpmw.Scope("content.put")).
				Put("/api/admin/{category}", api.HandlePutContent)
			r.With(httpmw.MaxBody(api.uploads.MaxBytes()+uploadOverhead), httpmw.Scope("upload")).
				Post("/api/admin/upload", api.HandleUpload)
			r.With(httpmw.MaxBody(64<<10), httpmw.Scope("publish")).
				Post("/api/publish", api.HandlePublish)
		})
	})

	if api.uploadFiles != nil {
		r.Handle("/uploads/*", api.uploadFiles)
	}
	if api.adminUI != nil {
		r.Handle("/admin", http.RedirectHandler("/admin/", http.StatusPermanentRedirect))
		r.Handle("/admin/*", api.adminUI)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.loggerFor(ctx).Warn(ctx, "failed to encode JSON response", "error", err)
	}
}

func (api *API) loggerFor(ctx context.Context) log.Logger {
	return log.FromContextOr(ctx, api.logger)
}

func (api *API) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	api.writeJSON(ctx, w, status, errorResponse{Error: msg})
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type nopMetrics struct{}

func (nopMetrics) IncLoginAttempt(string)                          {}
func (nopMetrics) IncContentWrite(string, string)                  {}
func (nopMetrics) ObservePublish(string, time.Duration, time.Time) {}
func (nopMetrics) ObserveUpload(string, int64)                     {}
