package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notesmith/internal/errs"
)

type stubProvider struct {
	out string
	err error
	got Request
}

func (s *stubProvider) Complete(_ context.Context, req Request) (string, error) {
	s.got = req
	return s.out, s.err
}

// ====================
// Tag parser
// ====================

func TestParseTags_FallbackChain(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw    string
		source tagSource
		want   []string
	}{
		{`["ai","notetaking","productivity"]`, tagsFromStringArray, []string{"ai", "notetaking", "productivity"}},
		{" [\"AI\", \" Travel \", \"\"] \n", tagsFromStringArray, []string{"ai", "travel"}},
		{"```json\n[\"go\",\"notes\"]\n```", tagsFromStringArray, []string{"go", "notes"}},
		{`["ai", 3, true, null, {"x":1}]`, tagsFromMixedArray, []string{"ai", "3", "true"}},
		{`[ai, "travel', japan`, tagsFromCommaSplit, []string{"ai", "travel", "japan"}},
		{`Tags: Work, Plans`, tagsFromCommaSplit, []string{"tags: work", "plans"}},
		{`"one, two"`, tagsFromCommaSplit, []string{"one", "two"}},
		{``, tagsEmpty, []string{}},
		{` , [ ] , "" `, tagsEmpty, []string{}},
	}
	for _, tc := range cases {
		got := parseTags(tc.raw)
		assert.Equal(t, tc.source, got.source, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got.tags, "raw=%q", tc.raw)
	}
}

// Property: whatever the provider returns, tags are non-nil, trimmed,
// lower-case and non-empty.
func testParseTags_Properties(t *rapid.T) {
	raw := rapid.OneOf(
		rapid.String(),
		rapid.Custom(func(t *rapid.T) string {
			tags := rapid.SliceOf(rapid.String()).Draw(t, "tags")
			b, _ := json.Marshal(tags)
			return string(b)
		}),
	).Draw(t, "raw")

	tags := ParseTags(raw)
	if tags == nil {
		t.Fatalf("nil tags for %q", raw)
	}
	for _, tag := range tags {
		if tag == "" || tag != strings.TrimSpace(tag) || tag != strings.ToLower(tag) {
			t.Fatalf("tag %q not normalized (raw %q)", tag, raw)
		}
	}
}

func TestParseTags_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testParseTags_Properties)
}

func FuzzParseTags(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testParseTags_Properties))
}

// ====================
// Assistant
// ====================

func TestParseAction(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Action{
		"summarize": Summarize, "summary": Summarize, "improve": Improve,
		"generate-tags": GenerateTags, "tags": GenerateTags, " Tags ": GenerateTags,
	} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAction("translate")
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestAssistant_Run(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	stub := &stubProvider{out: "Short summary."}
	res, err := NewAssistant(stub).Run(ctx, "Long text about things.", Summarize)
	require.NoError(t, err)
	assert.Equal(t, "Short summary.", res.Text)
	assert.Nil(t, res.Tags)
	assert.True(t, strings.HasPrefix(stub.got.Prompt, "Summarize this text clearly and concisely:\n\n"))
	assert.True(t, strings.HasSuffix(stub.got.Prompt, "Long text about things."))

	stub = &stubProvider{out: `Travel, JAPAN`}
	res, err = NewAssistant(stub).Run(ctx, "Plan Japan trip", GenerateTags)
	require.NoError(t, err)
	assert.Equal(t, []string{"travel", "japan"}, res.Tags)
	assert.Contains(t, stub.got.Prompt, "JSON array of strings")

	_, err = NewAssistant(stub).Run(ctx, "", Improve)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestAssistant_ProviderFailureIsGeneric(t *testing.T) {
	t.Parallel()
	stub := &stubProvider{err: errors.New("429 quota exceeded for key sk-secret")}
	_, err := NewAssistant(stub).Run(context.Background(), "text", Improve)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Upstream))
	assert.Equal(t, "AI request failed.", errs.MessageOf(err))
	assert.Equal(t, 500, errs.HTTPStatus(errs.CodeOf(err)))
}

func TestOfflineProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assistant := NewAssistant(OfflineProvider{})

	res, err := assistant.Run(ctx, "First point. Second point.", Summarize)
	require.NoError(t, err)
	assert.Equal(t, "First point.", res.Text)

	res, err = assistant.Run(ctx, "  plan   the   trip ", Improve)
	require.NoError(t, err)
	assert.Equal(t, "Plan the trip.", res.Text)

	res, err = assistant.Run(ctx, "Japan trip: book hotels in Kyoto, then Kyoto temples and Japan rail.", GenerateTags)
	require.NoError(t, err)
	assert.Equal(t, []string{"japan", "kyoto", "book", "hotels", "rail"}, res.Tags)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = assistant.Run(canceled, "text", Improve)
	assert.True(t, errs.Is(err, errs.Upstream))
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := NewOpenAIProvider(OpenAIConfig{})
	require.Error(t, err)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.model)
}
