// Package genai runs flow requests against Google Gemini with a JSON response schema.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"terralens/internal/analysis/application"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements application.Generator on the Gemini API.
type Generator struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// Option configures the generator.
type Option func(*Generator)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTimeout bounds each model call.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Generator) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// NewGenerator creates a Gemini client for apiKey.
func NewGenerator(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("genai: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return newGenerator(client.Models, opts...), nil
}

func newGenerator(models contentGenerator, opts ...Option) *Generator {
	g := &Generator{models: models, model: DefaultModel}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends the prompt and inline media as one user turn and returns the
// JSON text of the first candidate.
func (g *Generator) Generate(ctx context.Context, req application.GenerateRequest) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	parts := make([]*genai.Part, 0, len(req.Media)+1)
	for _, media := range req.Media {
		parts = append(parts, genai.NewPartFromBytes(media.Data, media.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if req.OutputSchema != nil {
		config.ResponseJsonSchema = req.OutputSchema
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("genai: generate %s: %w", req.Flow, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("genai: empty response for %s", req.Flow)
	}
	return []byte(text), nil
}
