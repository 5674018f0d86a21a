package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hostnames refused outright, regardless of what they resolve to.
var blockedHosts = map[string]string{
	"localhost":                "loopback host",
	"metadata.google.internal": "cloud metadata endpoint",
	"169.254.169.254":          "cloud metadata endpoint",
	"0.0.0.0":                  "unspecified address",
}

// CheckURL refuses URLs that point at internal or metadata addresses. Only
// http and https schemes are accepted.
func CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url does not parse: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed, use http or https", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	if reason, ok := blockedHosts[host]; ok {
		return fmt.Errorf("host %q refused: %s", host, reason)
	}
	if strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("host %q refused: loopback host", host)
	}

	// Literal IPs, including bracketed IPv6, are checked against internal
	// address families. Hostnames that resolve to internal addresses are the
	// renderer's problem; the guard here covers what the request names.
	if ip := net.ParseIP(host); ip != nil {
		if err := checkIP(ip); err != nil {
			return fmt.Errorf("host %q refused: %w", host, err)
		}
	}
	return nil
}

// CheckWebhookURL applies the SSRF guard and additionally requires https.
func CheckWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook url does not parse: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook url must be https")
	}
	return CheckURL(raw)
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address")
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address")
	case ip.IsPrivate():
		return fmt.Errorf("private address")
	}
	return nil
}
