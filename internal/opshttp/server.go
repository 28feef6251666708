package opshttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/keithlinneman/linnemanlabs-folio/internal/health"
	"github.com/keithlinneman/linnemanlabs-folio/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const DefaultPort = 9000

// Handler builds the ops mux: /-/healthy, /-/ready, /-/version, /metrics and
// /debug/pprof/, restricted to non-public peers.
func Handler(L log.Logger, opts *Options) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/-/healthy", health.HealthzHandler(opts.Health))
	mux.Handle("/-/ready", health.ReadyzHandler(opts.Readiness))

	if opts.Version != nil {
		vi := *opts.Version
		mux.HandleFunc("/-/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_ = json.NewEncoder(w).Encode(vi)
		})
	}

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	// shadow pprof with 404s when disabled
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	return httpmw.Recover(L, opts.OnPanic)(requireNonPublicNetwork(L, mux))
}

// Start serves Handler on opts.Port and returns stop(ctx) for graceful
// shutdown. stop is safe to call more than once.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// pprof profile/trace run for up to 30s by default
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for ops port on addr=%v", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	var stopErr error
	stop := func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}
	return stop, nil
}
