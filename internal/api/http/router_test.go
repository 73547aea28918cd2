package apihttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"terralens/internal/auth"
)

type pingRoutes struct{}

func (pingRoutes) Routes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
}

var secret = []byte("router-test-secret")

func newTestRouter() http.Handler {
	policy := auth.NewDefaultPolicy(ExemptPaths, nil)
	return NewRouter(Routes{Sites: pingRoutes{}, Settings: pingRoutes{}}, auth.NewMiddleware(secret, policy, nil), zap.NewNop())
}

func request(t *testing.T, h http.Handler, method, path string, role auth.Role) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		token, err := auth.IssueJWT(secret, "tester", role, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestHealthzIsPublic(t *testing.T) {
	assert.Equal(t, http.StatusOK, request(t, newTestRouter(), http.MethodGet, "/healthz", ""))
}

func TestMetricsIsPublic(t *testing.T) {
	assert.Equal(t, http.StatusOK, request(t, newTestRouter(), http.MethodGet, "/metrics", ""))
}

func TestRoutesEnforceRoles(t *testing.T) {
	h := newTestRouter()
	assert.Equal(t, http.StatusUnauthorized, request(t, h, http.MethodGet, "/api/v1/sites", ""))
	assert.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/api/v1/sites", auth.RoleViewer))
	assert.Equal(t, http.StatusForbidden, request(t, h, http.MethodPost, "/api/v1/sites", auth.RoleViewer))
	assert.Equal(t, http.StatusCreated, request(t, h, http.MethodPost, "/api/v1/sites", auth.RoleOperator))
	assert.Equal(t, http.StatusForbidden, request(t, h, http.MethodPut, "/api/v1/settings", auth.RoleOperator))
}

func TestUnmountedRoutesAreNotFound(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, request(t, newTestRouter(), http.MethodPost, "/api/v1/analysis/reports", auth.RoleAdmin))
}
