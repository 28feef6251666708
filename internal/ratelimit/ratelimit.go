package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-folio/internal/httpmw"
)

// visitor tracks a single IP's limiter and last activity
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is reset when the entry is evicted and re-created
	logged bool
}

// IPLimiter holds per-IP rate limiters with background eviction
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int

	// ttl controls how long an idle IP stays in the map before cleanup evicts it
	ttl time.Duration

	// maxVisitors caps the map; 0 is unbounded
	maxVisitors int

	retryAfter time.Duration
	now        func() time.Time

	// OnFirstDenied is called once per visitor when they first get rate limited
	OnFirstDenied func(ip string)

	// OnDenied is called on every denied request
	OnDenied func(ip string)

	// OnCapacity is called when a new IP arrives while the map is full
	OnCapacity func(ip string)
}

type Option func(*IPLimiter)

// WithRate sets the refill rate and bucket size.
// WithRate(10, 50) allows 50 requests at once, then refills at 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL controls how long an idle IP stays in the map before cleanup
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithMaxVisitors bounds the number of tracked IPs. When full, requests from
// untracked IPs are denied until cleanup frees space.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) {
		l.maxVisitors = n
	}
}

// WithRetryAfter sets the Retry-After value on 429 responses.
func WithRetryAfter(d time.Duration) Option {
	return func(l *IPLimiter) {
		if d > 0 {
			l.retryAfter = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *IPLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithOnFirstDenied sets a callback for the first denial per visitor, used
// for logging. OnDenied still fires for that request.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) {
		l.OnFirstDenied = fn
	}
}

// WithOnDenied sets a callback for every denied request.
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) {
		l.OnDenied = fn
	}
}

func WithOnCapacity(fn func(ip string)) Option {
	return func(l *IPLimiter) {
		l.OnCapacity = fn
	}
}

// New creates an IPLimiter and starts the background cleanup goroutine,
// which stops when ctx is cancelled.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := newLimiter(opts...)
	go l.cleanup(ctx)
	return l
}

func newLimiter(opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:   make(map[string]*visitor),
		perSecond:  10,
		burst:      30,
		ttl:        5 * time.Minute,
		retryAfter: 30 * time.Second,
		now:        time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Len reports the number of tracked IPs.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// allow reports whether ip is within its limit, creating the visitor if
// needed. Hooks run after the lock is released.
func (l *IPLimiter) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	v, exists := l.visitors[ip]
	if !exists {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			l.mu.Unlock()
			if l.OnCapacity != nil {
				l.OnCapacity(ip)
			}
			if l.OnDenied != nil {
				l.OnDenied(ip)
			}
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)

	first := false
	if !allowed && !v.logged {
		v.logged = true
		first = true
	}
	l.mu.Unlock()

	if allowed {
		return true
	}
	if first && l.OnFirstDenied != nil {
		l.OnFirstDenied(ip)
	}
	if l.OnDenied != nil {
		l.OnDenied(ip)
	}
	return false
}

// evict removes visitors idle for longer than the TTL.
func (l *IPLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
		}
	}
}

// cleanup runs evict every TTL/2.
func (l *IPLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(l.now())
		}
	}
}

// Middleware rejects requests over the per-IP limit with 429. The client IP
// comes from httpmw.ClientIP, which must run first.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	retry := strconv.Itoa(int(l.retryAfter.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())

		if !l.allow(ip) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", retry)
			w.WriteHeader(http.StatusTooManyRequests)
			// no detail about limits or remaining budget
			_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
