// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// originPolicy is the parsed form of Config.AllowedOrigins.
type originPolicy struct {
	any     bool
	origins map[string]struct{}
}

// newOriginPolicy parses the configured origins. Entries that are not
// scheme://host are dropped with a warning.
func newOriginPolicy(configured []string) originPolicy {
	p := originPolicy{origins: make(map[string]struct{}, len(configured))}

	for _, entry := range configured {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case entry == "*":
			p.any = true
		default:
			origin, ok := canonicalOrigin(entry)
			if !ok {
				logger().Warn("ignoring invalid origin in configuration", zap.String("origin", entry))
				continue
			}
			p.origins[origin] = struct{}{}
		}
	}
	return p
}

// list returns the canonical origins, with "*" last when everything is
// allowed.
func (p originPolicy) list() []string {
	out := make([]string, 0, len(p.origins)+1)
	for origin := range p.origins {
		out = append(out, origin)
	}
	sort.Strings(out)
	if p.any {
		out = append(out, "*")
	}
	return out
}

// allows reports whether a request with the given Origin header may upgrade.
// Under "*" requests without an Origin header (non-browser clients) pass too.
func (p originPolicy) allows(header string) bool {
	if p.any {
		return true
	}
	if header == "" {
		return false
	}
	origin, ok := canonicalOrigin(header)
	if !ok {
		return false
	}
	_, ok = p.origins[origin]
	return ok
}

// canonicalOrigin lowercases scheme and host and drops any path.
func canonicalOrigin(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

func checkOrigin(r *http.Request) bool {
	configMu.RLock()
	p := activePolicy
	configMu.RUnlock()

	if p.allows(r.Header.Get("Origin")) {
		return true
	}

	logger().Warn("blocked websocket connection from disallowed origin",
		zap.String("origin", r.Header.Get("Origin")),
		zap.String("addr", r.RemoteAddr))
	return false
}
