package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-folio/internal/health"
	"github.com/keithlinneman/linnemanlabs-folio/internal/version"
)

// Options configures the ops listener. It is separate from the API listener
// so metrics, health and pprof are never exposed publicly.
type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Version is served as JSON on /-/version when set.
	Version *version.Info

	// OnPanic runs after a recovered panic, typically a metrics counter.
	OnPanic func()
}
