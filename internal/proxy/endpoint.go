// Package proxy validates proxy endpoints and allocates working ones to accounts.
package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Protocol is the proxy protocol spoken by an endpoint.
type Protocol string

const (
	ProtocolUnspecified Protocol = ""
	ProtocolHTTP        Protocol = "http"
	ProtocolHTTPS       Protocol = "https"
	ProtocolSOCKS5      Protocol = "socks5"
)

// inferenceOrder is tried in sequence for endpoints without an explicit scheme.
var inferenceOrder = []Protocol{ProtocolHTTP, ProtocolSOCKS5}

// Endpoint is a raw proxy string plus the protocol it declares.
type Endpoint struct {
	Raw      string
	Protocol Protocol
	// scheme is the prefix as written, empty when Raw has none.
	scheme string
	// address is Raw without any scheme prefix: [user:pass@]host:port
	address string
}

// ParseEndpoint accepts "host:port", "user:pass@host:port", "host:port:user:pass"
// or any of them prefixed with http://, https://, socks5:// or socks5h://.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("empty proxy string")
	}

	ep := Endpoint{Raw: raw, address: raw}
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http":
			ep.Protocol = ProtocolHTTP
		case "https":
			ep.Protocol = ProtocolHTTPS
		case "socks5", "socks5h":
			ep.Protocol = ProtocolSOCKS5
		default:
			return Endpoint{}, fmt.Errorf("unsupported proxy scheme %q", scheme)
		}
		ep.scheme = scheme
		ep.address = rest
	}
	ep.address = credentialsFirst(ep.address)

	u, err := url.Parse("scheme://" + ep.address)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid proxy address: %w", err)
	}
	if _, port, err := net.SplitHostPort(u.Host); err != nil || port == "" {
		return Endpoint{}, fmt.Errorf("proxy address %q must be host:port", u.Host)
	}
	return ep, nil
}

// credentialsFirst rewrites "host:port:user:pass" as "user:pass@host:port".
func credentialsFirst(addr string) string {
	if strings.Contains(addr, "@") || strings.Count(addr, ":") != 3 {
		return addr
	}
	parts := strings.SplitN(addr, ":", 4)
	return url.UserPassword(parts[2], parts[3]).String() + "@" + net.JoinHostPort(parts[0], parts[1])
}

// Explicit reports whether the raw string named its protocol.
func (e Endpoint) Explicit() bool {
	return e.Protocol != ProtocolUnspecified
}

// Candidates returns the protocols to try, in order.
func (e Endpoint) Candidates() []Protocol {
	if e.Explicit() {
		return []Protocol{e.Protocol}
	}
	out := make([]Protocol, len(inferenceOrder))
	copy(out, inferenceOrder)
	return out
}

// Normalized returns the endpoint as a URL string for the given protocol.
// Explicit endpoints keep the scheme as written.
func (e Endpoint) Normalized(p Protocol) string {
	if e.Explicit() {
		return e.scheme + "://" + e.address
	}
	return string(p) + "://" + e.address
}

// URL parses the endpoint for the given protocol.
func (e Endpoint) URL(p Protocol) (*url.URL, error) {
	return url.Parse(string(p) + "://" + e.address)
}
