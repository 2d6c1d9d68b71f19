package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-mini"

const (
	openAIRequestTimeout = 60 * time.Second
	openAIMaxRetries     = 2
)

// OpenAIConfig configures the OpenAI Responses provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty uses the public API
}

// OpenAIProvider sends prompts to the OpenAI Responses API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. The API key is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(openAIRequestTimeout),
		option.WithMaxRetries(openAIMaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	response, err := p.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        shared.ResponsesModel(p.model),
		Instructions: openai.String("You help people edit their personal notes. Reply with the requested output only."),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.Prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai responses (%s): %w", req.Action, err)
	}
	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return "", fmt.Errorf("openai responses (%s): empty output", req.Action)
	}
	return text, nil
}
