package keywords

import (
	"net/url"
	"strings"
)

// ParseSources splits a newline-separated block of list locations into trimmed,
// non-blank candidates. Candidates are not validated here.
func ParseSources(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// IsValidSource reports whether raw is an absolute http or https URL with a host.
func IsValidSource(raw string) bool {
	_, ok := NormalizeSource(raw)
	return ok
}

// NormalizeSource returns the URL a candidate is fetched from, and whether it is a
// valid source. http and https accept missing or extra slashes after the scheme the
// way browsers do, so "http:example.com/list.json" becomes
// "http://example.com/list.json". Other valid candidates come back trimmed.
func NormalizeSource(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host != "" {
		return raw, true
	}

	rest := u.Opaque
	if rest == "" {
		rest = u.EscapedPath()
	}
	rest = strings.TrimLeft(rest, "/")
	if rest == "" {
		return "", false
	}
	fixed := u.Scheme + "://" + rest
	if u.RawQuery != "" {
		fixed += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		fixed += "#" + u.EscapedFragment()
	}
	v, err := url.Parse(fixed)
	if err != nil || v.Host == "" {
		return "", false
	}
	return v.String(), true
}
