package httpmw

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures client IP extraction behavior.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes the rightmost entry, 2 the one before it.
	TrustedHops int

	// TrustedProxies restricts which peers may set forwarding headers.
	// Empty means any private or loopback peer.
	TrustedProxies []netip.Prefix
}

// ClientIP extracts the client IP address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions returns middleware that resolves the client address and
// stores it in the context. Forwarding headers from untrusted peers are
// stripped so nothing downstream reads them.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := opts.resolve(r)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func (o ClientIPOptions) trusts(peer netip.Addr) bool {
	if len(o.TrustedProxies) == 0 {
		return peer.IsPrivate() || peer.IsLoopback()
	}
	for _, p := range o.TrustedProxies {
		if p.Contains(peer) {
			return true
		}
	}
	return false
}

func (o ClientIPOptions) resolve(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		stripForwarded(r)
		return "0.0.0.0"
	}
	peer = peer.Unmap()

	if o.TrustedHops <= 0 || !o.trusts(peer) {
		stripForwarded(r)
		return peer.String()
	}

	xf := r.Header.Get("X-Forwarded-For")
	if xf == "" {
		return peer.String()
	}
	parts := strings.Split(xf, ",")
	idx := len(parts) - o.TrustedHops
	if idx < 0 {
		// fewer entries than configured hops; fail closed
		stripForwarded(r)
		return peer.String()
	}
	if candidate, err := netip.ParseAddr(strings.TrimSpace(parts[idx])); err == nil {
		return candidate.Unmap().String()
	}
	return peer.String()
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
