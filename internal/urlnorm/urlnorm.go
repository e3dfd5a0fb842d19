// Package urlnorm canonicalizes page URLs reported by the collection snippet.
package urlnorm

import (
	"net/url"
	"strings"
)

// Sentinel emitted by browsers when the snippet reads an unset variable. It
// travels through reports untouched so dashboards can surface it as-is.
const undefinedSentinel = "undefined"

// Normalize reduces a raw URL to scheme://host/path, dropping the query
// string and fragment. Empty input stays empty and the literal "undefined"
// (any case) passes through unchanged. Values that do not parse as a URI are
// stripped best-effort; Normalize never fails and is idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.EqualFold(raw, undefinedSentinel) {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return stripTail(raw)
	}
	return u.Scheme + "://" + u.Host + u.Path
}

// stripTail cuts everything from the first query or fragment marker.
func stripTail(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Path returns only the path component of a URL, or the value itself when it
// does not parse. Used when matching against path-scoped rules.
func Path(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
