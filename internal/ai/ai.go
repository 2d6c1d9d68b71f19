// Package ai rewrites and tags note text through a generative-text provider.
// Calls are independent of note storage: a failed assist never affects a
// saved note.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/logutil"
	"github.com/kuitang/notesmith/internal/obs"
)

// Action selects what the assistant does with the text.
type Action string

const (
	Summarize    Action = "summarize"
	Improve      Action = "improve"
	GenerateTags Action = "generate-tags"
)

// rawLogLimit bounds the provider output copied into debug logs.
const rawLogLimit = 2000

var errUnknownAction = errs.New(errs.InvalidArgument, "validation failed: action: must be one of summarize, improve, generate-tags")

// ParseAction accepts the canonical action names and the short aliases
// "summary" and "tags".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "summarize", "summary":
		return Summarize, nil
	case "improve":
		return Improve, nil
	case "generate-tags", "tags":
		return GenerateTags, nil
	}
	return "", errUnknownAction
}

// Request is what a Provider receives: the rendered prompt plus the
// action and source text it was built from.
type Request struct {
	Action Action
	Text   string
	Prompt string
}

// Provider produces raw model output for a prompt.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Result holds Text for summarize and improve, Tags for generate-tags.
type Result struct {
	Action Action
	Text   string
	Tags   []string
}

// Assistant runs assist actions against a Provider.
type Assistant struct {
	provider Provider
}

// NewAssistant creates an assistant backed by provider.
func NewAssistant(provider Provider) *Assistant {
	return &Assistant{provider: provider}
}

// Run performs action on text.
func (a *Assistant) Run(ctx context.Context, text string, action Action) (*Result, error) {
	if text == "" {
		return nil, errs.New(errs.InvalidArgument, "validation failed: content: must not be empty")
	}
	prompt, err := BuildPrompt(action, text)
	if err != nil {
		return nil, err
	}

	logger := obs.From(ctx)
	raw, err := a.provider.Complete(ctx, Request{Action: action, Text: text, Prompt: prompt})
	if err != nil {
		logger.Error("ai_request_failed", "action", action, "error", err)
		return nil, errs.Wrap(errs.Upstream, "AI request failed.", err)
	}
	logger.Debug("ai_raw_output", "action", action, "raw", logutil.TruncateForLog(raw, rawLogLimit))

	if action == GenerateTags {
		return &Result{Action: action, Tags: ParseTags(raw)}, nil
	}
	return &Result{Action: action, Text: raw}, nil
}

// BuildPrompt renders the provider prompt for action.
func BuildPrompt(action Action, text string) (string, error) {
	switch action {
	case Summarize:
		return "Summarize this text clearly and concisely:\n\n" + text, nil
	case Improve:
		return "Improve grammar and clarity of the following text:\n\n" + text, nil
	case GenerateTags:
		return fmt.Sprintf(`Read the following text and generate 3-5 short lowercase topic tags.
Respond ONLY with a valid JSON array of strings (no explanation, no text before or after).
Example: ["ai","notetaking","productivity"]

Text:
%s`, text), nil
	}
	return "", errUnknownAction
}
