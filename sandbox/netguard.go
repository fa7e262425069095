package sandbox

import (
	"net"
	"net/url"
	"strings"

	"github.com/flowforge-ai/flowforge/types"
)

// DefaultAllowedHosts is the out-of-the-box network allow-list for
// URL-bearing tool arguments.
var DefaultAllowedHosts = []string{
	"api.anthropic.com",
	"hooks.slack.com",
	"gmail.googleapis.com",
	"example.com",
}

// URLGuard validates outbound URLs from tool arguments against an allow-list
// and blocks private address space.
type URLGuard struct {
	allowedHosts []string
}

// NewURLGuard creates a guard for the given host allow-list. A host entry
// matches itself and any subdomain. An empty list denies everything.
func NewURLGuard(allowedHosts []string) *URLGuard {
	return &URLGuard{allowedHosts: allowedHosts}
}

// Check returns a non-retryable error when the URL is malformed, uses a
// non-HTTP scheme, resolves outside the allow-list, or names a private or
// loopback address.
func (g *URLGuard) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.Errorf(types.ErrToolExecution, "invalid url %q", rawURL).WithCause(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return types.Errorf(types.ErrToolExecution, "only http and https urls are allowed, got %q", u.Scheme)
	}
	if strings.Contains(u.Path, "../") {
		return types.Errorf(types.ErrToolExecution, "url contains path traversal: %s", rawURL)
	}

	host := u.Hostname()
	if host == "" {
		return types.Errorf(types.ErrToolExecution, "url has no host: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return types.Errorf(types.ErrToolExecution, "private addresses are not allowed: %s", host)
		}
	}

	for _, allowed := range g.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return types.Errorf(types.ErrToolExecution, "host %q is not in the network allow-list", host)
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
