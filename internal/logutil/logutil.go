// Package logutil keeps credentials and oversized payloads out of logs.
package logutil

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveWords match against a key lower-cased with '-' and '_' removed.
var sensitiveWords = []string{"auth", "token", "secret", "password", "apikey", "cookie", "key"}

// IsSensitiveLogField reports whether a header, query or field name likely
// carries a credential.
func IsSensitiveLogField(key string) bool {
	k := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
	for _, w := range sensitiveWords {
		if strings.Contains(k, w) {
			return true
		}
	}
	return false
}

// RedactHeaderValue returns value, or a placeholder when key is sensitive.
func RedactHeaderValue(key, value string) string {
	if IsSensitiveLogField(key) {
		return redacted
	}
	return value
}

// FormatHeadersForLog renders headers as `name="v1, v2"; …` with sorted,
// lower-cased names and sensitive values replaced.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, k := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(strings.ToLower(k))
		values := headers.Values(k)
		if len(values) == 0 {
			b.WriteString("=<empty>")
			continue
		}
		shown := make([]string, len(values))
		for j, v := range values {
			shown[j] = RedactHeaderValue(k, v)
		}
		b.WriteString("=" + strconv.Quote(strings.Join(shown, ", ")))
	}
	return b.String()
}

// RedactQuery returns the encoded query with sensitive parameter values
// replaced, e.g. the token of /auth/verify-email.
func RedactQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	safe := make(url.Values, len(q))
	for k, vs := range q {
		if IsSensitiveLogField(k) {
			safe[k] = []string{redacted}
			continue
		}
		safe[k] = vs
	}
	return safe.Encode()
}

// TruncateForLog flattens value onto one line and keeps at most maxChars
// runes, marking the cut. maxChars <= 0 disables the limit.
func TruncateForLog(value string, maxChars int) string {
	line := strings.ReplaceAll(strings.TrimSpace(value), "\n", "\\n")
	if maxChars <= 0 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= maxChars {
		return line
	}
	return string(runes[:maxChars]) + "... [truncated]"
}
