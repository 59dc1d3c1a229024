// Package realip resolves the caller address the indexer keys rate limits
// and request logs on. The public read API usually sits behind an edge
// proxy, so the socket peer is the proxy and the caller arrives in
// X-Forwarded-For; the header is only believed when the peer is one of the
// deployment's configured proxies.
package realip

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey struct{}

// callerKey carries the resolved caller address through the request context.
var callerKey contextKey

// Config holds the trusted-proxy settings for the API edge.
type Config struct {
	// TrustProxy enables forwarded-header resolution at all. Off, the
	// socket peer is always the caller.
	TrustProxy bool
	// TrustedProxies lists the proxy ranges in CIDR form. A bare address
	// is accepted and treated as a single-host range.
	TrustedProxies []string
}

// proxySet is the parsed form of Config.TrustedProxies.
type proxySet []*net.IPNet

func newProxySet(entries []string) proxySet {
	var set proxySet
	for _, entry := range entries {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			set = append(set, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		set = append(set, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return set
}

func (s proxySet) contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range s {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware resolves the caller address for every request and stashes it in
// the context for the rate limiter and the request log.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	var proxies proxySet
	if cfg.TrustProxy {
		proxies = newProxySet(cfg.TrustedProxies)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := resolveCaller(r, cfg.TrustProxy, proxies)
			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveCaller walks X-Forwarded-For right to left, skipping configured
// proxy hops; the first address outside the proxy set is the caller. The
// header is ignored entirely unless the socket peer itself is a trusted
// proxy, so a direct caller cannot spoof an address into the rate limiter.
func resolveCaller(r *http.Request, trustProxy bool, proxies proxySet) string {
	peer := hostOnly(r.RemoteAddr)

	if !trustProxy || !proxies.contains(peer) {
		return peer
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			return real
		}
		return peer
	}

	hops := strings.Split(forwarded, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !proxies.contains(hop) {
			return hop
		}
	}

	// Every hop is one of ours; the leftmost entry is where the chain began.
	if len(hops) > 0 {
		return strings.TrimSpace(hops[0])
	}
	return peer
}

// hostOnly strips the port from a peer address, tolerating bare addresses.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Caller returns the resolved caller address for a request, falling back to
// the socket peer when the middleware did not run.
func Caller(r *http.Request) string {
	if addr, ok := r.Context().Value(callerKey).(string); ok && addr != "" {
		return addr
	}
	return hostOnly(r.RemoteAddr)
}
