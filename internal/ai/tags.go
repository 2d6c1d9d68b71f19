package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// tagSource records which stage of the fallback chain produced the tags.
type tagSource int

const (
	tagsFromStringArray tagSource = iota
	tagsFromMixedArray
	tagsFromCommaSplit
	tagsEmpty
)

// parsedTags is the outcome of parsing model output.
type parsedTags struct {
	source tagSource
	tags   []string
}

// ParseTags extracts tags from model output. Well-formed output is a JSON
// array of strings; anything else degrades through a mixed-array parse and a
// comma split to an empty list. Tags are trimmed and lower-cased, and blank
// tags are dropped. The result is never nil.
func ParseTags(raw string) []string {
	return parseTags(raw).tags
}

func parseTags(raw string) parsedTags {
	body := stripCodeFence(strings.TrimSpace(raw))

	var strs []string
	if err := json.Unmarshal([]byte(body), &strs); err == nil {
		return parsedTags{source: tagsFromStringArray, tags: normalizeTags(strs)}
	}

	var mixed []any
	if err := json.Unmarshal([]byte(body), &mixed); err == nil {
		strs = make([]string, 0, len(mixed))
		for _, v := range mixed {
			switch v := v.(type) {
			case string:
				strs = append(strs, v)
			case float64, bool:
				strs = append(strs, fmt.Sprint(v))
			}
		}
		return parsedTags{source: tagsFromMixedArray, tags: normalizeTags(strs)}
	}

	var single string
	if err := json.Unmarshal([]byte(body), &single); err == nil {
		body = single
	}
	if tags := splitTags(body); len(tags) > 0 {
		return parsedTags{source: tagsFromCommaSplit, tags: tags}
	}
	return parsedTags{source: tagsEmpty, tags: []string{}}
}

func splitTags(s string) []string {
	s = strings.NewReplacer("[", "", "]", "").Replace(s)
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.NewReplacer(`"`, "", "'", "").Replace(p)
	}
	return normalizeTags(parts)
}

func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[\"") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
