package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"terralens/internal/api/response"
	"terralens/internal/audit"
	"terralens/internal/schema"
	settingsapp "terralens/internal/settings/application"
	settings "terralens/internal/settings/domain"
)

var settingsContract = schema.MustContract[settings.SystemSettings]("system settings")

// Handler provides settings HTTP endpoints.
type Handler struct {
	service     *settingsapp.Service
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *settingsapp.Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("settings handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// Routes registers the handler under /api/v1/settings.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleGet)
	r.Put("/", h.handleSave)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.Get(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load settings.")
		return
	}
	response.JSON(w, http.StatusOK, current)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	body, err := response.ReadBody(w, r)
	if err != nil {
		response.Error(w, http.StatusRequestEntityTooLarge, "Failed to save settings.")
		return
	}
	value, err := settingsContract.Decode(body)
	if err != nil {
		response.Invalid(w, "Failed to save settings.", err)
		return
	}
	if err := h.service.Save(r.Context(), value); err != nil {
		if errors.Is(err, schema.ErrSchemaValidation) {
			response.Invalid(w, "Failed to save settings.", err)
			return
		}
		response.Error(w, http.StatusInternalServerError, "Failed to save settings.")
		return
	}
	if h.auditLogger != nil {
		entry := audit.FromRequest(r, audit.ActionSettingsSave, "settings", settings.DocumentID, nil)
		entry.PayloadDigest = audit.DigestJSON(body)
		if err := h.auditLogger.Log(r.Context(), entry); err != nil {
			h.logger.Warn("audit log failed", zap.String("action", audit.ActionSettingsSave), zap.Error(err))
		}
	}
	response.JSON(w, http.StatusOK, value)
}
