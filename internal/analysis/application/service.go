package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	analysis "terralens/internal/analysis/domain"
	"terralens/internal/observability/metrics"
	"terralens/internal/schema"
)

var (
	reportInputContract = schema.MustContract[analysis.SustainabilityReportInput](
		"sustainability report request",
		schema.WithMinLength("miningSiteId", 1),
		schema.WithEnum("reportFormat", analysis.ReportFormats()...),
	)
	reportOutputContract = schema.MustContract[analysis.SustainabilityReport](
		"sustainability report",
		schema.WithEnum("reportFormat", analysis.ReportFormats()...),
		schema.AllowExtraFields(),
	)
	satelliteInputContract = schema.MustContract[analysis.SatelliteImageInput](
		"satellite image request",
		schema.WithPattern("imageUrl", "^data:"),
	)
	satelliteOutputContract = schema.MustContract[analysis.SatelliteAnalysis](
		"satellite analysis",
		schema.AllowExtraFields(),
	)

	reportSchema    = schema.ProviderSchema[analysis.SustainabilityReport]()
	satelliteSchema = schema.ProviderSchema[analysis.SatelliteAnalysis]()
)

// AnomalyNotifier is told about every satellite analysis that detected an anomaly.
type AnomalyNotifier interface {
	NotifyAnomaly(ctx context.Context, input analysis.SatelliteImageInput, result analysis.SatelliteAnalysis) error
}

// Service runs the AI flows. Each flow validates its input, renders its prompt,
// calls the generator once and validates the reply.
type Service struct {
	generator Generator
	prompts   *PromptLibrary
	notifier  AnomalyNotifier
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithAnomalyNotifier assigns the anomaly notifier.
func WithAnomalyNotifier(notifier AnomalyNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// NewService constructs the flow service.
func NewService(generator Generator, prompts *PromptLibrary, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if generator == nil {
		return nil, errors.New("analysis: nil generator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts = NewPromptLibrary(logger)
	}
	s := &Service{
		generator: generator,
		prompts:   prompts,
		logger:    logger.Named("analysis"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GenerateSustainabilityReport produces a report for one mining site. The
// returned format always equals the requested one.
func (s *Service) GenerateSustainabilityReport(ctx context.Context, input analysis.SustainabilityReportInput) (analysis.SustainabilityReport, error) {
	out, err := runFlow(ctx, s, analysis.FlowSustainabilityReport, input,
		reportInputContract, reportOutputContract, reportSchema,
		func(in analysis.SustainabilityReportInput) (GenerateRequest, error) {
			prompt, err := s.prompts.Render(analysis.FlowSustainabilityReport, in)
			if err != nil {
				return GenerateRequest{}, err
			}
			return GenerateRequest{Prompt: prompt, OutputName: "sustainability_report"}, nil
		})
	if err != nil {
		return analysis.SustainabilityReport{}, err
	}
	if out.ReportFormat != input.ReportFormat {
		s.logger.Warn("model answered in a different report format",
			zap.String("requested", string(input.ReportFormat)),
			zap.String("returned", string(out.ReportFormat)))
		out.ReportFormat = input.ReportFormat
	}
	return out, nil
}

// AnalyzeSatelliteImage inspects one satellite image for environmental anomalies.
func (s *Service) AnalyzeSatelliteImage(ctx context.Context, input analysis.SatelliteImageInput) (analysis.SatelliteAnalysis, error) {
	out, err := runFlow(ctx, s, analysis.FlowSatelliteAnalysis, input,
		satelliteInputContract, satelliteOutputContract, satelliteSchema,
		func(in analysis.SatelliteImageInput) (GenerateRequest, error) {
			image, err := analysis.ParseImageDataURI(in.ImageURL)
			if err != nil {
				return GenerateRequest{}, &schema.ValidationError{
					Subject: satelliteInputContract.Name(),
					Fields:  []schema.FieldError{{Field: "imageUrl", Message: err.Error()}},
				}
			}
			prompt, err := s.prompts.Render(analysis.FlowSatelliteAnalysis, in)
			if err != nil {
				return GenerateRequest{}, err
			}
			return GenerateRequest{
				Prompt:     prompt,
				Media:      []analysis.Image{image},
				OutputName: "satellite_analysis",
			}, nil
		})
	if err != nil {
		return analysis.SatelliteAnalysis{}, err
	}
	if out.AnomalyDetected && s.notifier != nil {
		if err := s.notifier.NotifyAnomaly(ctx, input, out); err != nil {
			s.logger.Warn("anomaly notification failed", zap.Error(err))
		}
	}
	return out, nil
}

func runFlow[In, Out any](
	ctx context.Context,
	s *Service,
	flow string,
	input In,
	in *schema.Contract[In],
	out *schema.Contract[Out],
	outputSchema *jsonschema.Schema,
	build func(In) (GenerateRequest, error),
) (Out, error) {
	var zero Out
	start := s.now()
	finish := func(result string) {
		metrics.ObserveFlow(flow, result, s.now().Sub(start))
	}

	checked, err := in.Check(input)
	if err != nil {
		finish(metrics.ResultError)
		return zero, err
	}
	req, err := build(checked)
	if err != nil {
		finish(metrics.ResultError)
		return zero, err
	}
	req.Flow = flow
	req.OutputSchema = outputSchema

	raw, err := s.generator.Generate(ctx, req)
	if err != nil {
		finish(metrics.ResultError)
		s.logger.Error("model call failed", zap.String("flow", flow), zap.Error(err))
		return zero, fmt.Errorf("%w: %s: %w", analysis.ErrModelCall, flow, err)
	}
	result, err := out.Decode(trimFence(raw))
	if err != nil {
		finish(metrics.ResultError)
		outErr := analysis.NewModelOutputError(flow, raw, err)
		s.logger.Warn("model output rejected", zap.String("flow", flow), zap.Error(err), zap.String("raw", outErr.Raw))
		return zero, outErr
	}
	finish(metrics.ResultSuccess)
	s.logger.Info("flow completed", zap.String("flow", flow), zap.Duration("elapsed", s.now().Sub(start)))
	return result, nil
}

// trimFence strips a markdown code fence some models wrap around JSON.
func trimFence(raw []byte) []byte {
	text := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(text, []byte("```")) {
		return text
	}
	text = bytes.TrimPrefix(text, []byte("```"))
	if nl := bytes.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = bytes.TrimSuffix(bytes.TrimSpace(text), []byte("```"))
	return bytes.TrimSpace(text)
}

// ReportRequestSchema is the JSON schema report requests are validated against.
func ReportRequestSchema() any { return reportInputContract.Schema() }

// SatelliteRequestSchema is the JSON schema satellite requests are validated against.
func SatelliteRequestSchema() any { return satelliteInputContract.Schema() }
