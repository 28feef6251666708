package guard

import (
	"context"
	"time"
)

const (
	DefaultThreshold = 10
	DefaultWindow    = 30 * time.Minute
)

// Record is the failure history of one address.
type Record struct {
	Count       int
	LastAttempt time.Time
}

// FailureStore persists Records keyed by client address.
type FailureStore interface {
	// Get returns the record for key, or ok=false when there is none.
	Get(ctx context.Context, key string) (rec Record, ok bool, err error)

	// Increment adds one failure at now. A record whose last attempt is at
	// least window old restarts at 1.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Record, error)

	Delete(ctx context.Context, key string) error
}

// Guard decides whether an address may attempt a login.
type Guard struct {
	store     FailureStore
	threshold int
	window    time.Duration
	now       func() time.Time

	// OnLocked is called once when an address reaches the threshold.
	OnLocked func(addr string, rec Record)
}

type Option func(*Guard)

func WithThreshold(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.threshold = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithOnLocked(fn func(addr string, rec Record)) Option {
	return func(g *Guard) {
		g.OnLocked = fn
	}
}

func New(store FailureStore, opts ...Option) *Guard {
	g := &Guard{
		store:     store,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Guard) Threshold() int        { return g.threshold }
func (g *Guard) Window() time.Duration { return g.window }

// IsLocked reports whether addr has reached the threshold within the window.
// An elapsed record is deleted.
func (g *Guard) IsLocked(ctx context.Context, addr string) (bool, error) {
	rec, ok, err := g.store.Get(ctx, addr)
	if err != nil || !ok {
		return false, err
	}
	if g.now().Sub(rec.LastAttempt) >= g.window {
		return false, g.store.Delete(ctx, addr)
	}
	return rec.Count >= g.threshold, nil
}

// RecordFailure counts one failed attempt for addr.
func (g *Guard) RecordFailure(ctx context.Context, addr string) (Record, error) {
	rec, err := g.store.Increment(ctx, addr, g.now(), g.window)
	if err != nil {
		return Record{}, err
	}
	if rec.Count == g.threshold && g.OnLocked != nil {
		g.OnLocked(addr, rec)
	}
	return rec, nil
}

// Clear forgets addr's failures.
func (g *Guard) Clear(ctx context.Context, addr string) error {
	return g.store.Delete(ctx, addr)
}
