// Package urlnorm normalizes URLs and decides canonical equivalence.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrEmptyInput is returned when EnsureRoot receives a blank domain.
var ErrEmptyInput = errors.New("empty domain or url")

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// Normalize lower-cases the host, collapses repeated slashes in the path,
// maps an empty path to "/", and drops query and fragment. The scheme is kept
// as written. Unparseable input is returned trimmed.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := repeatedSlashes.ReplaceAllString(u.Path, "/")
	if path == "" {
		path = "/"
	}
	out := url.URL{
		Scheme: u.Scheme,
		User:   u.User,
		Host:   strings.ToLower(u.Host),
		Opaque: u.Opaque,
		Path:   path,
	}
	return out.String()
}

// CanonicalEquivalent strips one trailing slash from each input, normalizes
// both and compares them exactly.
func CanonicalEquivalent(a, b string) bool {
	return Normalize(strings.TrimSuffix(strings.TrimSpace(a), "/")) ==
		Normalize(strings.TrimSuffix(strings.TrimSpace(b), "/"))
}

// EnsureRoot turns a bare domain or URL into scheme://host/. The scheme
// defaults to https.
func EnsureRoot(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyInput
	}
	if !strings.HasPrefix(strings.ToLower(raw), "http://") && !strings.HasPrefix(strings.ToLower(raw), "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse root %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse root %q: missing host", raw)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + "/", nil
}

// Resolve joins ref against root. Absolute references are returned as is and
// unparseable references are returned unchanged.
func Resolve(root, ref string) string {
	ref = strings.TrimSpace(ref)
	base, err := url.Parse(root)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// Host returns the lower-cased hostname of raw, or "" when it has none.
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// SameHost reports whether a and b share a hostname, ignoring case and a
// leading "www.".
func SameHost(a, b string) bool {
	ha := strings.TrimPrefix(Host(a), "www.")
	hb := strings.TrimPrefix(Host(b), "www.")
	return ha != "" && ha == hb
}
