package genai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"terralens/internal/analysis/application"
	analysis "terralens/internal/analysis/domain"
	"terralens/internal/schema"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	deadline bool
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	_, f.deadline = ctx.Deadline()
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

func TestGenerateSendsMediaAndSchema(t *testing.T) {
	models := &fakeModels{resp: textResponse(`{"anomalyDetected":false,"anomalyDescription":""}`)}
	gen := newGenerator(models, WithModel("gemini-test"), WithTimeout(time.Minute))

	out, err := gen.Generate(context.Background(), application.GenerateRequest{
		Flow:         analysis.FlowSatelliteAnalysis,
		Prompt:       "look closely",
		Media:        []analysis.Image{{MIMEType: "image/png", Data: []byte{1, 2, 3}}},
		OutputSchema: schema.ProviderSchema[analysis.SatelliteAnalysis](),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"anomalyDetected":false,"anomalyDescription":""}`, string(out))

	assert.Equal(t, "gemini-test", models.model)
	assert.True(t, models.deadline)
	require.Len(t, models.contents, 1)
	parts := models.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	assert.Equal(t, []byte{1, 2, 3}, parts[0].InlineData.Data)
	assert.Equal(t, "look closely", parts[1].Text)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)
	assert.NotNil(t, models.config.ResponseJsonSchema)
}

func TestGenerateWrapsTransportError(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := newGenerator(&fakeModels{err: boom})

	_, err := gen.Generate(context.Background(), application.GenerateRequest{Flow: "f", Prompt: "p"})
	require.ErrorIs(t, err, boom)
}

func TestGenerateRejectsEmptyResponse(t *testing.T) {
	gen := newGenerator(&fakeModels{resp: &genai.GenerateContentResponse{}})

	_, err := gen.Generate(context.Background(), application.GenerateRequest{Flow: "f", Prompt: "p"})
	require.Error(t, err)
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), "")
	require.Error(t, err)
}
