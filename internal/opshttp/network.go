package opshttp

import (
	"net/http"
	"net/netip"

	"github.com/keithlinneman/reqchain/internal/httpmw"
	"github.com/keithlinneman/reqchain/internal/log"
)

// internalOnly refuses public peers and anything that came through a proxy.
// Monitoring reaches this listener directly.
func internalOnly(L log.Logger) httpmw.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := rejectReason(r); reason != "" {
				L.Warn(r.Context(), "ops request rejected",
					"reason", reason,
					"remote_addr", r.RemoteAddr,
					"url.path", r.URL.Path,
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectReason(r *http.Request) string {
	if r.Header.Get("X-Forwarded-For") != "" {
		return "forwarded"
	}
	ap, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return "bad remote addr"
	}
	// ::ffff:8.8.8.8 is judged as 8.8.8.8
	addr := ap.Addr().Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
		return ""
	}
	return "public address"
}
