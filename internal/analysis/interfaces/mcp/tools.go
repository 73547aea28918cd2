// Package mcp exposes the AI flows as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"terralens/internal/analysis/application"
	analysis "terralens/internal/analysis/domain"
	"terralens/internal/schema"
)

// Tool names.
const (
	ToolSustainabilityReport = "generate_sustainability_report"
	ToolSatelliteAnalysis    = "analyze_satellite_image"
)

// NewServer builds an MCP server carrying the flow tools.
func NewServer(service *application.Service, version string, logger *zap.Logger) (*mcp.Server, error) {
	if service == nil {
		return nil, errors.New("mcp: nil service")
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: "terralens", Version: version}, nil)
	RegisterMCP(srv, service, logger)
	return srv, nil
}

// NewHTTPHandler serves srv over streamable HTTP.
func NewHTTPHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

// RegisterMCP registers the flow tools on srv.
func RegisterMCP(srv *mcp.Server, service *application.Service, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mcp")

	srv.AddTool(&mcp.Tool{
		Name:        ToolSustainabilityReport,
		Description: "Generate a sustainability report (PDF or CSV content) for a mining site from its environmental data and metrics.",
		InputSchema: application.ReportRequestSchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input analysis.SustainabilityReportInput
		if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		report, err := service.GenerateSustainabilityReport(ctx, input)
		if err != nil {
			return flowError(logger, ToolSustainabilityReport, err), nil
		}
		return toolResult(report)
	})

	srv.AddTool(&mcp.Tool{
		Name:        ToolSatelliteAnalysis,
		Description: "Analyze a satellite image (base64 data URI) of a mining site for environmental anomalies.",
		InputSchema: application.SatelliteRequestSchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input analysis.SatelliteImageInput
		if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		result, err := service.AnalyzeSatelliteImage(ctx, input)
		if err != nil {
			return flowError(logger, ToolSatelliteAnalysis, err), nil
		}
		return toolResult(result)
	})
}

func toolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Errorf("marshal: %w", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

// flowError keeps field errors visible to the caller and hides model details.
func flowError(logger *zap.Logger, tool string, err error) *mcp.CallToolResult {
	var outErr *analysis.ModelOutputError
	switch {
	case errors.As(err, &outErr), errors.Is(err, analysis.ErrModelCall):
		logger.Warn("tool model failure", zap.String("tool", tool), zap.Error(err))
		return toolError(errors.New("the model did not return a usable result"))
	case errors.Is(err, schema.ErrSchemaValidation):
		return toolError(err)
	default:
		logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
		return toolError(errors.New("internal error"))
	}
}
