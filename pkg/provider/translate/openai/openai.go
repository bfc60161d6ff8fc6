// Package openai provides a translation provider backed by OpenAI chat
// completions. Any OpenAI-compatible server can be targeted via WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/aula/pkg/provider"
	"github.com/MrWong99/aula/pkg/provider/translate"
)

// DefaultModel is the default chat model used for translation.
const DefaultModel = "gpt-4o-mini"

const providerName = "openai"

// Ensure Provider implements the translate.Provider interface.
var _ translate.Provider = (*Provider)(nil)

// Provider implements translate.Provider using the OpenAI chat API.
type Provider struct {
	client      oai.Client
	model       string
	temperature float64
}

// config holds optional configuration for the provider.
type config struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTemperature sets the sampling temperature. Defaults to 0.2.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// New constructs a new OpenAI translation Provider.
// If model is empty, DefaultModel is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai translate: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{temperature: 0.2}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:      oai.NewClient(reqOpts...),
		model:       model,
		temperature: cfg.temperature,
	}, nil
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" || translate.SameLanguage(sourceLang, targetLang) {
		return text, nil
	}

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(translate.SystemPrompt(sourceLang, targetLang)),
			oai.UserMessage(text),
		},
		Temperature: param.NewOpt(p.temperature),
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return "", &provider.APIError{Provider: providerName, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("openai translate: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai translate: empty choices in response")
	}

	out := translate.CleanOutput(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("openai translate: empty translation")
	}
	return out, nil
}
