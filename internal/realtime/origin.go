package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a realtime socket.
type originPolicy struct {
	allowed map[string]struct{}
}

// newOriginPolicy accepts full origins ("https://app.example.com") or bare
// hosts; ports are ignored.
func newOriginPolicy(origins []string) originPolicy {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if host := originHost(origin); host != "" {
			allowed[host] = struct{}{}
		}
	}
	return originPolicy{allowed: allowed}
}

// allow admits non-browser clients (no Origin header), same-host pages,
// loopback development servers and configured hosts.
func (p originPolicy) allow(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	host := originHost(origin)
	if host == "" {
		return false
	}
	if _, ok := p.allowed[host]; ok {
		return true
	}
	return host == stripPort(r.Host) || isLoopback(host)
}

func originHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
		return strings.ToLower(parsed.Hostname())
	}
	return stripPort(origin)
}

func stripPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}
