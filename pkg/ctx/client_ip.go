package ctx

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"
)

var trustedProxies atomic.Pointer[[]netip.Prefix]

// SetTrustedProxies lists the proxies whose X-Forwarded-For and X-Real-Ip
// headers are believed. Entries are IPs or CIDRs. With none configured the
// headers are ignored and the socket address is the client.
func SetTrustedProxies(entries []string) error {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return fmt.Errorf("ctx: trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return fmt.Errorf("ctx: trusted proxy %q: %w", raw, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	trustedProxies.Store(&prefixes)
	return nil
}

func trusted(ip string) bool {
	list := trustedProxies.Load()
	if list == nil || len(*list) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range *list {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP is the request-level form of Context.ClientIP, shared with
// middleware that runs before a Context exists. Forwarding headers count
// only when the socket peer is a trusted proxy; X-Forwarded-For is read
// right to left and the first hop that is not a trusted proxy wins.
func ClientIP(r *http.Request) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !trusted(remote) {
		return remote
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !trusted(hop) {
				return hop
			}
		}
		if first := strings.TrimSpace(hops[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-Ip")); real != "" {
		return real
	}
	return remote
}
