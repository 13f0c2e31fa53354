// Package network decides which browser origins may open a console websocket.
package network

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Preset origin groups
var Presets = map[string][]string{
	"local": {"localhost:*", "127.0.0.1:*", "[::1]:*"},
}

// Special values
const (
	OriginAll  = "*"    // Any origin
	OriginSame = "same" // Only the origin serving the request
)

// Policy represents which origins are accepted
type Policy struct {
	AllowAll  bool     // Accept every origin
	SameOnly  bool     // Accept only the request's own host
	Hosts     []string // Exact host or host:port entries
	AnyPort   []string // Hosts accepted on any port (host:*)
	Wildcards []string // Subdomain patterns (*.example.com)
}

// IsWildcard returns true if the entry is a subdomain pattern (*.example.com)
func IsWildcard(entry string) bool {
	return strings.HasPrefix(entry, "*.")
}

// ValidateWildcard validates a wildcard pattern and returns an error if invalid.
// Valid: *.example.com (leading single-level wildcard)
// Invalid: *.com (TLD wildcard), **.example.com (recursive), sub.*.example.com (mid-level)
func ValidateWildcard(pattern string) error {
	if !IsWildcard(pattern) {
		return fmt.Errorf("not a wildcard pattern: %s", pattern)
	}

	baseDomain := ExtractBaseDomain(pattern)

	if strings.Contains(pattern, "**") {
		return fmt.Errorf("recursive wildcards not supported: %s", pattern)
	}
	if strings.Contains(baseDomain, "*") {
		return fmt.Errorf("mid-level wildcards not supported: %s", pattern)
	}
	// Base domain must have at least one dot (example.com, not just "com")
	if !strings.Contains(baseDomain, ".") {
		return fmt.Errorf("TLD wildcards not allowed: %s", pattern)
	}

	return nil
}

// ExtractBaseDomain returns the base domain from a wildcard pattern.
// e.g., *.example.com -> example.com
func ExtractBaseDomain(pattern string) string {
	return strings.TrimPrefix(pattern, "*.")
}

// Parse converts origin specs like "local,app.example.com,*.example.org" into a
// Policy. Entries may be full origins (https://app.example.com); only their
// host part is kept.
// Examples:
//   - Parse(nil) -> Policy{SameOnly: true}
//   - Parse([]string{"*"}) -> Policy{AllowAll: true}
//   - Parse([]string{"local"}) -> Policy{AnyPort: ["localhost", "127.0.0.1", "[::1]"]}
//   - Parse([]string{"*.example.com"}) -> Policy{Wildcards: ["*.example.com"]}
func Parse(specs []string) *Policy {
	policy := &Policy{
		Hosts:     []string{},
		AnyPort:   []string{},
		Wildcards: []string{},
	}

	var entries []string
	for _, spec := range specs {
		spec = strings.TrimSpace(strings.ToLower(spec))
		switch {
		case spec == "":
			continue
		case spec == OriginAll:
			return &Policy{AllowAll: true, Hosts: []string{}, AnyPort: []string{}, Wildcards: []string{}}
		case spec == OriginSame:
			policy.SameOnly = true
		default:
			if preset, ok := Presets[spec]; ok {
				entries = append(entries, preset...)
			} else {
				entries = append(entries, stripScheme(spec))
			}
		}
	}

	for _, entry := range entries {
		switch {
		case IsWildcard(entry):
			// Invalid wildcards are ignored
			if err := ValidateWildcard(entry); err == nil {
				policy.Wildcards = append(policy.Wildcards, entry)
			}
		case strings.HasSuffix(entry, ":*"):
			policy.AnyPort = append(policy.AnyPort, strings.TrimSuffix(entry, ":*"))
		default:
			policy.Hosts = append(policy.Hosts, entry)
		}
	}

	if len(policy.Hosts)+len(policy.AnyPort)+len(policy.Wildcards) == 0 {
		policy.SameOnly = true
	}

	policy.Hosts = deduplicate(policy.Hosts)
	policy.AnyPort = deduplicate(policy.AnyPort)
	policy.Wildcards = deduplicate(policy.Wildcards)

	return policy
}

func stripScheme(spec string) string {
	if i := strings.Index(spec, "://"); i >= 0 {
		spec = spec[i+3:]
	}
	return strings.TrimSuffix(spec, "/")
}

// Allows reports whether origin (an Origin header value) is accepted for a
// request addressed to requestHost.
func (p *Policy) Allows(origin, requestHost string) bool {
	if p.AllowAll {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	hostname := strings.ToLower(u.Hostname())
	if strings.Contains(host, "[") {
		// Keep brackets so "[::1]" entries match.
		if h, _, err := net.SplitHostPort(host); err == nil {
			hostname = "[" + h + "]"
		} else {
			hostname = host
		}
	}

	if p.SameOnly && strings.EqualFold(host, requestHost) {
		return true
	}
	for _, h := range p.Hosts {
		if host == h || (!strings.Contains(h, ":") && hostname == h && u.Port() == "") {
			return true
		}
	}
	for _, h := range p.AnyPort {
		if hostname == h {
			return true
		}
	}
	for _, w := range p.Wildcards {
		if strings.HasSuffix(hostname, "."+ExtractBaseDomain(w)) {
			return true
		}
	}
	return false
}

// CheckOrigin returns a websocket upgrader origin check for the policy.
// Requests without an Origin header are not from a browser and are accepted.
func (p *Policy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return p.Allows(origin, r.Host)
}

func deduplicate(entries []string) []string {
	seen := make(map[string]bool)
	result := []string{}

	for _, e := range entries {
		if !seen[e] {
			seen[e] = true
			result = append(result, e)
		}
	}

	return result
}
