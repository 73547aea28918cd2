package application

import (
	"context"

	"github.com/invopop/jsonschema"

	analysis "terralens/internal/analysis/domain"
)

// GenerateRequest is one structured-output call to a model provider.
type GenerateRequest struct {
	Flow   string
	Prompt string
	Media  []analysis.Image
	// OutputName labels the schema for providers that require a name.
	OutputName   string
	OutputSchema *jsonschema.Schema
}

// Generator sends a prompt to a model and returns its raw JSON reply.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]byte, error)
}
