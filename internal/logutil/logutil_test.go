package logutil

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()
	for _, k := range []string{"Authorization", "Cookie", "Set-Cookie", "token", "X-API-Key", "client_secret", "Mcp-Auth", "password"} {
		assert.True(t, IsSensitiveLogField(k), k)
	}
	for _, k := range []string{"Content-Type", "Mcp-Session-Id", "q", "action", "X-Request-Id"} {
		assert.False(t, IsSensitiveLogField(k), k)
	}
}

func TestFormatHeadersForLog_RedactsCredentials(t *testing.T) {
	t.Parallel()
	headers := http.Header{}
	headers.Set("Authorization", "Bearer abc123")
	headers.Set("Cookie", "session_token=abc123")
	headers.Add("Accept", "application/json")
	headers.Add("Accept", "text/event-stream")

	out := FormatHeadersForLog(headers)

	assert.NotContains(t, out, "abc123")
	assert.Equal(t,
		`accept="application/json, text/event-stream"; authorization="[REDACTED]"; cookie="[REDACTED]"`,
		out)
	assert.Equal(t, "{}", FormatHeadersForLog(nil))
}

func TestRedactQuery(t *testing.T) {
	t.Parallel()
	q := url.Values{"token": {"s3cr3t"}, "q": {"kyoto trip"}}
	out := RedactQuery(q)
	assert.NotContains(t, out, "s3cr3t")
	assert.Equal(t, "q=kyoto+trip&token=%5BREDACTED%5D", out)
	assert.Equal(t, "s3cr3t", q.Get("token"), "input is not modified")
	assert.Empty(t, RedactQuery(nil))
}

// Truncation never splits a rune, never leaves a newline and never exceeds
// the limit plus the marker.
func testTruncateForLog_Bounds(t *rapid.T) {
	value := rapid.String().Draw(t, "value")
	limit := rapid.IntRange(1, 64).Draw(t, "limit")

	out := TruncateForLog(value, limit)
	if utf8.ValidString(value) && !utf8.ValidString(out) {
		t.Fatalf("truncation produced invalid utf8: %q", out)
	}
	if strings.Contains(out, "\n") {
		t.Fatalf("output contains newline: %q", out)
	}
	body := strings.TrimSuffix(out, "... [truncated]")
	if utf8.RuneCountInString(body) > limit {
		t.Fatalf("output too long: %d > %d", utf8.RuneCountInString(body), limit)
	}
}

func TestTruncateForLog_Bounds(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTruncateForLog_Bounds)
}

func TestTruncateForLog_NoLimit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `a\nb`, TruncateForLog("  a\nb  ", 0))
}
