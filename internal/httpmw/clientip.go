package httpmw

import (
	"net/http"
	"net/netip"
	"strings"
)

// unknownIP is recorded when the peer address cannot be parsed. All such
// requests share one rate limit bucket.
const unknownIP = "0.0.0.0"

type ClientIPOptions struct {
	// TrustedHops is the number of proxies in front of the server. Zero
	// ignores X-Forwarded-For, 1 takes its last entry (one load balancer), 2
	// the entry before that (CDN then load balancer), and so on.
	TrustedHops int

	// TrustedProxies are the networks a peer must be in before its
	// forwarding headers are read. Empty means the private, loopback and
	// link-local ranges.
	TrustedProxies []netip.Prefix
}

func (o ClientIPOptions) trusts(peer netip.Addr) bool {
	if o.TrustedHops <= 0 {
		return false
	}
	if len(o.TrustedProxies) == 0 {
		return peer.IsPrivate() || peer.IsLoopback() || peer.IsLinkLocalUnicast()
	}
	for _, p := range o.TrustedProxies {
		if p.Contains(peer) {
			return true
		}
	}
	return false
}

// ClientIP resolves the client address and stores it for ClientIPFromContext.
// Forwarding headers from an untrusted peer are deleted so nothing further
// in can read them.
func ClientIP(opts ClientIPOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, opts ClientIPOptions) string {
	peer, ok := parsePeer(r.RemoteAddr)
	if !ok {
		return unknownIP
	}
	if !opts.trusts(peer) {
		stripForwarded(r.Header)
		return peer.String()
	}

	// entries are appended by each proxy, so the client sits TrustedHops
	// from the end. A shorter list means a proxy was skipped or the header
	// was forged, and the peer is used instead.
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	if len(hops) == 0 {
		return peer.String()
	}
	i := len(hops) - opts.TrustedHops
	if i < 0 {
		stripForwarded(r.Header)
		return peer.String()
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(hops[i])); err == nil {
		return a.Unmap().String()
	}
	return peer.String()
}

// parsePeer accepts host:port or a bare address.
func parsePeer(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(remote); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

func stripForwarded(h http.Header) {
	h.Del("X-Forwarded-For")
	h.Del("X-Forwarded-Proto")
}
