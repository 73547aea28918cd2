// Package openai runs flow requests against OpenAI chat completions with a
// strict JSON schema response format.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"terralens/internal/analysis/application"
)

// Generator implements application.Generator on chat completions.
type Generator struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// Option configures the generator.
type Option func(*generatorConfig)

type generatorConfig struct {
	model   string
	timeout time.Duration
	request []option.RequestOption
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(c *generatorConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each model call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *generatorConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *generatorConfig) {
		if url != "" {
			c.request = append(c.request, option.WithBaseURL(url))
		}
	}
}

// NewGenerator creates an OpenAI client for apiKey. Calls are not retried.
func NewGenerator(apiKey string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	cfg := generatorConfig{model: string(openai.ChatModelGPT4o)}
	for _, opt := range opts {
		opt(&cfg)
	}
	requestOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, cfg.request...)
	return &Generator{
		client:  openai.NewClient(requestOpts...),
		model:   cfg.model,
		timeout: cfg.timeout,
	}, nil
}

// Generate sends the prompt and images as one user message.
func (g *Generator) Generate(ctx context.Context, req application.GenerateRequest) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt)}
	for _, media := range req.Media {
		uri := "data:" + media.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(media.Data)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: uri}))
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Model:    openai.ChatModel(g.model),
	}
	if req.OutputSchema != nil {
		name := req.OutputName
		if name == "" {
			name = req.Flow
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   name,
				Schema: req.OutputSchema,
				Strict: openai.Bool(true),
			}},
		}
	}

	chat, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: generate %s: %w", req.Flow, err)
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("openai: empty response for %s", req.Flow)
	}
	return []byte(chat.Choices[0].Message.Content), nil
}
