package health

import (
	"cmp"
	"context"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// Probe reports a dependency's state when a probe endpoint is hit. A nil
// error means healthy; the error text is the reason shown to the caller.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// ErrFunc adapts a context-free status check, such as a store's ReadyErr.
func ErrFunc(fn func() error) CheckFunc {
	return func(context.Context) error { return fn() }
}

// Fixed always passes, or always fails with reason ("unhealthy" if empty).
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	err := xerrors.New(cmp.Or(reason, "unhealthy"))
	return func(context.Context) error { return err }
}

// All checks ps in order and stops at the first failure. Nil probes are
// skipped.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Named prefixes a failure with name, e.g. "redis: connection refused".
func Named(name string, p Probe) CheckFunc {
	if p == nil {
		return Fixed(true, "")
	}
	return func(ctx context.Context) error {
		return xerrors.Wrap(p.Check(ctx), name)
	}
}

// Timeout gives p at most d.
func Timeout(d time.Duration, p Probe) CheckFunc {
	if p == nil {
		return Fixed(true, "")
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return p.Check(ctx)
	}
}

// ShutdownGate fails readiness once shutdown has begun. The zero value is
// open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate. An empty reason reads "draining".
func (g *ShutdownGate) Set(reason string) {
	r := cmp.Or(reason, "draining")
	g.reason.Store(&r)
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return xerrors.New(*r)
		}
		return nil
	}
}
