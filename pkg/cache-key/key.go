package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var ErrorNotAbsolute = fmt.Errorf("URL is not absolute")

// Canonical returns the cache key for a URL.
// The key keeps the query string, so that tile coordinate variants never alias,
// and drops the fragment. Scheme and host are lower-cased and default ports removed.
func Canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = canonicalHost(c.Scheme, c.Host)
	if c.Path == "" && c.Opaque == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	c.ForceQuery = false
	return c.String()
}

// GetKey returns the cache key for a request.
func GetKey(r *http.Request) string {
	return Canonical(r.URL)
}

// Parse parses a raw URL and returns its cache key.
// Relative URLs are rejected since a key must be resolvable on its own.
func Parse(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrorNotAbsolute, rawURL)
	}
	return Canonical(u), nil
}

// GetRequestFromKey creates a GET request for the URL a key was built from.
func GetRequestFromKey(key string) (*http.Request, error) {
	if _, err := Parse(key); err != nil {
		return nil, err
	}
	return http.NewRequest(http.MethodGet, key, nil)
}

// Origin returns the "scheme://host[:port]" origin of a URL,
// using the same normalization as Canonical.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	return scheme + "://" + canonicalHost(scheme, u.Host)
}

// ParseOrigin returns the origin of a raw URL.
func ParseOrigin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrorNotAbsolute, rawURL)
	}
	return Origin(u), nil
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}
