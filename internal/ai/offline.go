package ai

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"unicode"
)

// OfflineProvider answers without calling any service. It backs --no-ai and
// tests with deterministic output shaped like a real model's.
type OfflineProvider struct{}

// Complete implements Provider.
func (OfflineProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch req.Action {
	case Summarize:
		return firstSentence(req.Text), nil
	case Improve:
		return tidy(req.Text), nil
	default:
		b, err := json.Marshal(topWords(req.Text, 5))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?\n"); i >= 0 {
		return strings.TrimSpace(text[:i+1])
	}
	return text
}

func tidy(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return text
	}
	r := []rune(text)
	r[0] = unicode.ToUpper(r[0])
	if last := r[len(r)-1]; !unicode.IsPunct(last) {
		r = append(r, '.')
	}
	return string(r)
}

// topWords returns up to n distinct lowercase words of four or more letters,
// most frequent first, ties broken alphabetically.
func topWords(text string, n int) []string {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len([]rune(w)) >= 4 {
			counts[w]++
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}
