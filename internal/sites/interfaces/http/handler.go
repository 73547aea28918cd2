package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"terralens/internal/api/response"
	"terralens/internal/audit"
	"terralens/internal/schema"
	siteapp "terralens/internal/sites/application"
	sites "terralens/internal/sites/domain"
)

var siteContract = schema.MustContract[sites.MiningSite]("mining site",
	schema.WithEnum("status", sites.Statuses()...),
)

// Handler provides site HTTP endpoints.
type Handler struct {
	repo        *siteapp.Repository
	auditLogger audit.Logger
	logger      *zap.Logger
	stream      *StreamHandler
}

// NewHandler constructs a handler.
func NewHandler(repo *siteapp.Repository, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("sites handler: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      logger,
		stream:      NewStreamHandler(repo, logger),
	}, nil
}

// Routes registers the handler under /api/v1/sites.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Put("/", h.handleUpdate)
	r.Method(http.MethodGet, "/stream", h.stream)
	r.Get("/export.csv", h.handleExportCSV)
	r.Get("/export.xlsx", h.handleExportXLSX)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load sites.")
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	site, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sites.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "Site not found.")
			return
		}
		response.Error(w, http.StatusInternalServerError, "Failed to load site.")
		return
	}
	response.JSON(w, http.StatusOK, site)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	site, ok := h.decodeSite(w, r, "Failed to add site.")
	if !ok {
		return
	}
	id, err := h.repo.Create(r.Context(), site)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to add site.")
		return
	}
	h.logAudit(r, audit.ActionSiteCreate, id, site.Name)
	response.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	site, ok := h.decodeSite(w, r, "Failed to update site.")
	if !ok {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		site.ID = id
	}
	if err := h.repo.Update(r.Context(), site); err != nil {
		switch {
		case errors.Is(err, sites.ErrMissingIdentifier):
			response.Error(w, http.StatusBadRequest, "Site ID is required to update.")
		case errors.Is(err, sites.ErrNotFound):
			response.Error(w, http.StatusNotFound, "Failed to update site.")
		default:
			response.Error(w, http.StatusInternalServerError, "Failed to update site.")
		}
		return
	}
	h.logAudit(r, audit.ActionSiteUpdate, site.ID, site.Name)
	response.JSON(w, http.StatusOK, site)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sites.ErrMissingIdentifier) {
			response.Error(w, http.StatusBadRequest, "Site ID is required to delete.")
			return
		}
		response.Error(w, http.StatusInternalServerError, "Failed to delete site.")
		return
	}
	h.logAudit(r, audit.ActionSiteDelete, id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeSite(w http.ResponseWriter, r *http.Request, message string) (sites.MiningSite, bool) {
	body, err := response.ReadBody(w, r)
	if err != nil {
		response.Error(w, http.StatusRequestEntityTooLarge, message)
		return sites.MiningSite{}, false
	}
	site, err := siteContract.Decode(body)
	if err != nil {
		response.Invalid(w, message, err)
		return sites.MiningSite{}, false
	}
	if err := site.Validate(); err != nil {
		response.Invalid(w, message, err)
		return sites.MiningSite{}, false
	}
	return site, true
}

func (h *Handler) logAudit(r *http.Request, action, siteID, name string) {
	if h.auditLogger == nil {
		return
	}
	var meta map[string]any
	if name != "" {
		meta = map[string]any{"name": name}
	}
	if err := h.auditLogger.Log(r.Context(), audit.FromRequest(r, action, "site", siteID, meta)); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
