package reconcile

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	schemePrefix = regexp.MustCompile(`(?i)^https?://(www\.)?`)
	// bareHost matches scheme-less input that starts with a host, such as a
	// key produced by Normalize itself.
	bareHost = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]*(:[0-9]+)?([/?#]|$)`)
)

// Normalize maps a URL to the identity key used to decide whether two links
// point at the same page. Scheme, a leading "www.", trailing slashes, the
// query string and the fragment are ignored. It never fails: input that does
// not parse into a host falls back to string surgery.
//
// Normalize is idempotent: a key normalizes to itself. The one exception is a
// host with repeated "www." labels, of which only the first is dropped.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	candidate := raw
	if !strings.Contains(raw, "://") && bareHost.MatchString(raw) {
		candidate = "http://" + raw
	}

	if u, err := url.Parse(candidate); err == nil && u.Host != "" {
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		path := strings.TrimRight(u.EscapedPath(), "/")
		if path == "" {
			path = "/"
		}
		return host + path
	}

	return fallbackKey(raw)
}

func fallbackKey(raw string) string {
	s := raw
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	s = schemePrefix.ReplaceAllString(s, "")
	s = strings.TrimRight(s, "/")
	if s == "" {
		return raw
	}
	return s
}
