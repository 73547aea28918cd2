package apihttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"terralens/internal/auth"
	"terralens/internal/logging"
)

// RouteRegistrar mounts one bounded context's endpoints.
type RouteRegistrar interface {
	Routes(r chi.Router)
}

// Routes lists the mounted handlers. Nil entries are skipped.
type Routes struct {
	Sites    RouteRegistrar
	Analysis RouteRegistrar
	Settings RouteRegistrar
	MCP      http.Handler
}

// ExemptPaths bypass authentication.
var ExemptPaths = []string{"/healthz", "/metrics"}

// NewRouter assembles the service router.
func NewRouter(routes Routes, authMiddleware *auth.Middleware, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(logger))
	if authMiddleware != nil {
		r.Use(authMiddleware.Wrap)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if routes.Sites != nil {
			r.Route("/sites", routes.Sites.Routes)
		}
		if routes.Analysis != nil {
			r.Route("/analysis", routes.Analysis.Routes)
		}
		if routes.Settings != nil {
			r.Route("/settings", routes.Settings.Routes)
		}
	})
	if routes.MCP != nil {
		r.Handle("/mcp", routes.MCP)
		r.Handle("/mcp/*", routes.MCP)
	}
	return r
}
