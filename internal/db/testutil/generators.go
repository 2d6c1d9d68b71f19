// Package testutil provides shared generators for property-based tests of
// the note store and services.
package testutil

import (
	"strings"
	"unicode"

	"pgregory.net/rapid"
)

// MaxTitleRunes mirrors the note title limit enforced by the service.
const MaxTitleRunes = 200

// ArbitraryText generates non-empty text including unicode, whitespace,
// SQL injection attempts and LIKE wildcards.
func ArbitraryText() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-zA-Z0-9 ]{1,100}`),
		rapid.StringOfN(rapid.RuneFrom(nil, printableRanges...), 1, 80, -1),
		arbitrarySQLInjection(),
		arbitraryWildcards(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
	)
}

// ArbitraryTitle generates valid titles: 1 to 200 runes.
func ArbitraryTitle() *rapid.Generator[string] {
	return rapid.OneOf(
		ArbitraryText().Filter(func(s string) bool { return runeLen(s) <= MaxTitleRunes }),
		rapid.Custom(func(t *rapid.T) string {
			return strings.Repeat("é", rapid.IntRange(1, MaxTitleRunes).Draw(t, "n"))
		}),
	)
}

// ArbitraryContent generates valid content: at least one rune.
func ArbitraryContent() *rapid.Generator[string] {
	return rapid.OneOf(ArbitraryText(), arbitraryLongString())
}

// ArbitraryTags generates tag lists, duplicates allowed.
func ArbitraryTags() *rapid.Generator[[]string] {
	return rapid.SliceOfN(rapid.StringMatching(`[a-z0-9\-]{0,12}`), 0, 6)
}

// SearchWord generates lowercase words used to plant and find search hits.
func SearchWord() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z]{3,10}`)
}

// ValidUserID generates user ids shaped like the ones the service issues.
func ValidUserID() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		prefix := rapid.StringMatching("[a-z]{1,10}").Draw(t, "prefix")
		suffix := rapid.StringMatching("[0-9]{1,5}").Draw(t, "suffix")
		return "user-" + prefix + "-" + suffix
	})
}

var printableRanges = []*unicode.RangeTable{
	unicode.Latin,
	unicode.Greek,
	unicode.Cyrillic,
	unicode.Han,
	unicode.Digit,
}

func arbitrarySQLInjection() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`' OR 1=1 --`,
		`'; DROP TABLE notes; --`,
		`" OR "1"="1`,
		`1; SELECT * FROM users`,
		`admin'--`,
		`' UNION SELECT * FROM users --`,
		`' OR ''='`,
		`<script>alert('xss')</script>`,
	})
}

// arbitraryWildcards generates LIKE/GLOB metacharacters that must be matched literally.
func arbitraryWildcards() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`%`,
		`_`,
		`%%`,
		`a%b`,
		`a_b`,
		`\`,
		`\%`,
		`*`,
		`?`,
		`[abc]`,
	})
}

func arbitraryUnicode() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"日本語",
		"中文测试",
		"العربية",
		"🔥🎉💻🚀",
		"emoji🔥in🎉middle",
		"Ñoño",
		"Zürich",
		"Москва",
		"Ελληνικά",
		"à",
		"test space",
		"math∑∏∫",
	})
}

func arbitraryWhitespace() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ",
		"\t",
		"\n",
		"\r\n",
		"  test  ",
		"line1\nline2",
		"　",
	})
}

func arbitraryLongString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		length := rapid.SampledFrom([]int{1000, 10000, 100000}).Draw(t, "length")
		return strings.Repeat("abcdefghij", length/10)
	})
}

func runeLen(s string) int {
	return len([]rune(s))
}
