package webhook

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidScheme is returned when the URL scheme is not allowed.
	ErrInvalidScheme = errors.New("only HTTPS allowed")
	// ErrPrivateIP is returned when the host resolves to an internal address.
	ErrPrivateIP = errors.New("private IP addresses not allowed")
	// ErrLocalhostBlocked is returned for loopback hostnames.
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	// ErrInvalidURL is returned when URL parsing fails.
	ErrInvalidURL = errors.New("invalid URL format")
	// ErrEmptyHost is returned when the URL has no host.
	ErrEmptyHost = errors.New("URL must have a host")
)

var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// URLPolicy decides which target URLs endpoints may use. The zero value is
// strict: HTTPS to public addresses only.
type URLPolicy struct {
	// AllowInsecure permits plain HTTP and private targets (development).
	AllowInsecure bool

	lookup func(host string) ([]net.IP, error)
}

// Check validates targetURL against the policy.
func (p URLPolicy) Check(targetURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(targetURL))
	if err != nil || parsed.Scheme == "" {
		return ErrInvalidURL
	}
	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowInsecure {
			return ErrInvalidScheme
		}
	default:
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	if p.AllowInsecure {
		return nil
	}
	if isLocalhostHostname(host) {
		return ErrLocalhostBlocked
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	lookup := p.lookup
	if lookup == nil {
		lookup = net.LookupIP
	}
	ips, err := lookup(host)
	if err != nil {
		// Unresolvable now; delivery will fail and retry.
		return nil
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return ErrPrivateIP
		}
	}
	return nil
}

func isLocalhostHostname(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local")
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ExtractHost returns the URL host for logging. Paths and queries may
// carry tokens and are never logged.
func ExtractHost(targetURL string) string {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
