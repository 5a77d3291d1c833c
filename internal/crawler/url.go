package crawler

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeURL ensures a URL carries a scheme, defaulting to https. Malformed
// or empty input is returned unchanged; frontier identity must never abort a
// crawl over a bad link.
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Scheme == "" {
		return "https://" + rawURL
	}
	return rawURL
}

// NormalizeSiteURL standardizes a URL into a site identity so that
// https://a.com, https://A.com/ and https://a.com/#x all map to one record.
// Scheme and host are lowercased; query strings, fragments, and trailing
// slashes are stripped; an empty path becomes "/".
func NormalizeSiteURL(rawURL string) string {
	if rawURL == "" {
		return rawURL
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(u.Host)
	path := u.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	} else if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// RegistrableDomain returns the public-suffix-aware site portion of a URL's
// hostname (e.g. "news.bbc.co.uk" -> "bbc.co.uk"). It returns "" when the URL
// or host cannot be reduced to a registrable domain.
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	if err != nil {
		return ""
	}
	return domain
}

// SameRegistrableDomain reports whether two URLs share a registrable domain.
// Unknown domains never match, so restricted crawls fail closed.
func SameRegistrableDomain(a, b string) bool {
	da := RegistrableDomain(a)
	if da == "" {
		return false
	}
	return da == RegistrableDomain(b)
}
