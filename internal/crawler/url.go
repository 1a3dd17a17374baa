package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolve turns href into an absolute URL relative to base. The fragment is
// dropped so that in-page anchors collapse onto the page itself.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %v", ErrMalformedURL, base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, href, err)
	}
	abs := b.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), nil
}

// InScope reports whether rawURL's host equals originHost. Ports and schemes
// are not compared and subdomains are out of scope. Malformed URLs are never
// in scope.
func InScope(rawURL, originHost string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" || originHost == "" {
		return false
	}
	return strings.EqualFold(host, originHost)
}

// HostOf returns the lowercased host component of rawURL.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
	}
	return strings.ToLower(u.Hostname()), nil
}

func validateSeed(seed string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSeed, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidSeed)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

func isFetchable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
