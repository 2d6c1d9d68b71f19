// Package urlutil builds the absolute and relative links the server hands
// out: verification emails, Location headers and public export objects.
package urlutil

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Origin returns scheme://host for r, honouring X-Forwarded-Proto, or
// fallback when the request carries no host.
func Origin(r *http.Request, fallback string) string {
	base := trimBase(fallback)
	if r == nil {
		return base
	}
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return base
	}
	return scheme(r) + "://" + host
}

// Join appends path to base. An empty base yields path unchanged, so the
// result is a relative link.
func Join(base, path string) string {
	base = trimBase(base)
	switch {
	case path == "":
		return base
	case strings.HasPrefix(path, "/"):
		return base + path
	default:
		return base + "/" + path
	}
}

// WithQuery is Join plus an encoded query string.
func WithQuery(base, path string, q url.Values) string {
	link := Join(base, path)
	if enc := q.Encode(); enc != "" {
		link += "?" + enc
	}
	return link
}

// NoteLocation is the canonical link for a note, used as the Location of a
// created note.
func NoteLocation(r *http.Request, id int64) string {
	return Join(Origin(r, ""), "/notes/"+strconv.FormatInt(id, 10))
}

func scheme(r *http.Request) string {
	proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))
	if comma := strings.Index(proto, ","); comma >= 0 {
		proto = strings.TrimSpace(proto[:comma])
	}
	if proto == "http" || proto == "https" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func trimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
