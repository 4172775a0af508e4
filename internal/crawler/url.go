package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ListingURL builds the search results page for q under baseOrigin. The term
// is form-encoded, so spaces become '+'.
func (q ListingQuery) ListingURL(baseOrigin string) string {
	return fmt.Sprintf("%s/search?freeText=%s&refreshSearch=true",
		strings.TrimRight(baseOrigin, "/"), url.QueryEscape(q.term))
}

// ResolveDetailURL joins href onto baseOrigin by concatenation. An href that
// already carries a scheme is returned verbatim with absolute set so callers
// can flag the mismatch.
func ResolveDetailURL(baseOrigin, href string) (resolved DetailURL, absolute bool) {
	href = strings.TrimSpace(href)
	if u, err := url.Parse(href); err == nil && u.Scheme != "" {
		return DetailURL(href), true
	}
	base := strings.TrimRight(baseOrigin, "/")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return DetailURL(base + href), false
}

// StripQuery drops any query string and fragment from u.
func StripQuery(u DetailURL) DetailURL {
	s := string(u)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return DetailURL(s)
}

// ItemNumber returns the last path segment, ignoring trailing slashes, the
// query string, and the fragment.
func (u DetailURL) ItemNumber() ItemNumber {
	s := strings.TrimRight(string(StripQuery(u)), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return ItemNumber(s)
}
