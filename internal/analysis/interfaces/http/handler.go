package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"terralens/internal/analysis/application"
	analysis "terralens/internal/analysis/domain"
	"terralens/internal/analysis/export"
	"terralens/internal/api/response"
	"terralens/internal/audit"
	"terralens/internal/schema"
)

// DefaultsReader supplies the report format used when a request omits one.
type DefaultsReader interface {
	DefaultReportFormat(r *http.Request) string
}

// DefaultsFunc adapts a function to DefaultsReader.
type DefaultsFunc func(r *http.Request) string

// DefaultReportFormat implements DefaultsReader.
func (f DefaultsFunc) DefaultReportFormat(r *http.Request) string { return f(r) }

// Handler provides the AI flow endpoints.
type Handler struct {
	service     *application.Service
	defaults    DefaultsReader
	auditLogger audit.Logger
	logger      *zap.Logger
	now         func() time.Time
}

// NewHandler constructs a handler. defaults may be nil, in which case requests
// must name their report format.
func NewHandler(service *application.Service, defaults DefaultsReader, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("analysis handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:     service,
		defaults:    defaults,
		auditLogger: auditLogger,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Routes registers the handler under /api/v1/analysis.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/reports", h.handleReport)
	r.Post("/satellite", h.handleSatellite)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to generate report."
	body, ok := readBody(w, r, failed)
	if !ok {
		return
	}
	var input analysis.SustainabilityReportInput
	if err := json.Unmarshal(body, &input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if input.ReportFormat == "" && h.defaults != nil {
		input.ReportFormat = analysis.ReportFormat(h.defaults.DefaultReportFormat(r))
	}

	report, err := h.service.GenerateSustainabilityReport(r.Context(), input)
	if err != nil {
		h.writeFlowError(w, failed, err)
		return
	}
	h.logAudit(r, audit.ActionReportRun, "site", input.MiningSiteID, body, map[string]any{
		"reportFormat": string(report.ReportFormat),
	})

	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		file, err := export.Render(report, input.MiningSiteID, h.now())
		if err != nil {
			h.logger.Error("report export failed", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "Failed to export report.")
			return
		}
		w.Header().Set("Content-Type", file.ContentType)
		w.Header().Set("Content-Disposition", "attachment; filename=\""+file.Name+"\"")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(file.Body)
		return
	}
	response.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleSatellite(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to analyze image."
	body, ok := readBody(w, r, failed)
	if !ok {
		return
	}
	var input analysis.SatelliteImageInput
	if err := json.Unmarshal(body, &input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	result, err := h.service.AnalyzeSatelliteImage(r.Context(), input)
	if err != nil {
		h.writeFlowError(w, failed, err)
		return
	}
	h.logAudit(r, audit.ActionSatelliteRun, "satellite_image", "", body, map[string]any{
		"anomalyDetected": result.AnomalyDetected,
	})
	response.JSON(w, http.StatusOK, result)
}

func readBody(w http.ResponseWriter, r *http.Request, message string) ([]byte, bool) {
	body, err := response.ReadBody(w, r)
	if err != nil {
		response.Error(w, http.StatusRequestEntityTooLarge, message)
		return nil, false
	}
	return body, true
}

func (h *Handler) writeFlowError(w http.ResponseWriter, message string, err error) {
	var outErr *analysis.ModelOutputError
	switch {
	case errors.As(err, &outErr), errors.Is(err, analysis.ErrModelCall):
		response.Error(w, http.StatusBadGateway, message)
	case errors.Is(err, schema.ErrSchemaValidation):
		response.Invalid(w, message, err)
	default:
		h.logger.Error("flow failed", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, message)
	}
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID string, body []byte, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.FromRequest(r, action, resourceType, resourceID, meta)
	entry.PayloadDigest = audit.DigestJSON(body)
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
