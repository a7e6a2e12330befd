package auth

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// OriginAllowList is the set of origins trusted to deliver handshake messages.
// Origins are compared as lower-cased scheme://host[:port] with default ports dropped.
type OriginAllowList struct {
	origins map[string]struct{}
}

// NewOriginAllowList builds an allow-list. Entries that are not absolute
// http(s) origins are rejected.
func NewOriginAllowList(origins ...string) (*OriginAllowList, error) {
	l := &OriginAllowList{origins: make(map[string]struct{}, len(origins))}
	for _, raw := range origins {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		origin, ok := NormalizeOrigin(raw)
		if !ok {
			return nil, fmt.Errorf("invalid trusted origin %q", raw)
		}
		l.origins[origin] = struct{}{}
	}
	return l, nil
}

// Allows reports whether origin is trusted. Empty and opaque ("null") origins never are.
func (l *OriginAllowList) Allows(origin string) bool {
	if l == nil {
		return false
	}
	normalized, ok := NormalizeOrigin(origin)
	if !ok {
		return false
	}
	_, allowed := l.origins[normalized]
	return allowed
}

// Origins returns the trusted origins in sorted order.
func (l *OriginAllowList) Origins() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.origins))
	for origin := range l.origins {
		out = append(out, origin)
	}
	sort.Strings(out)
	return out
}

// NormalizeOrigin canonicalizes an origin or origin-like URL. A path other
// than "/" , a query, a fragment or user info make it invalid.
func NormalizeOrigin(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, true
}

// OriginOf returns the origin of an absolute URL such as the service base URL.
func OriginOf(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	return NormalizeOrigin(u.Scheme + "://" + u.Host)
}
