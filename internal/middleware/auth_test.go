package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstarWorks/AstarManagement-sub017/internal/tenantctx"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/config"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/jwtutil"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.InitLogger(&logger.LogConfig{Level: "error", Environment: "test", ServiceName: "practice-service"})
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-signing-key", ExpirationHours: 1})
	m.Run()
}

func performRequest(token string, handler echo.HandlerFunc, mw ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/matters", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := handler
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	_ = h(c)
	return rec
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	rec := performRequest("", okHandler, AuthMiddleware)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsMalformedHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/matters", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = AuthMiddleware(okHandler)(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	rec := performRequest("not-a-real-token", okHandler, AuthMiddleware)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetupRequiredIsDistinctFromUnauthenticated(t *testing.T) {
	token, err := jwtutil.GenerateToken("lawyer@alpha-law.test", 7)
	require.NoError(t, err)

	rec := performRequest(token, okHandler, AuthMiddleware, RequireTenantContext)
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "setup_required")
}

func TestTenantScopeReachesHandler(t *testing.T) {
	tenantID := uint(42)
	token, err := jwtutil.GenerateTokenWithTenant("lawyer@alpha-law.test", 7, &tenantID, "alpha-law", []string{"owner"})
	require.NoError(t, err)

	var seen tenantctx.Scope
	handler := func(c echo.Context) error {
		scope, ok := tenantctx.FromContext(c.Request().Context())
		require.True(t, ok)
		seen = scope
		return c.NoContent(http.StatusOK)
	}

	rec := performRequest(token, handler, AuthMiddleware, RequireTenantContext)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(42), seen.TenantID)
	assert.Equal(t, uint(7), seen.UserID)
	assert.Equal(t, "alpha-law", seen.TenantSlug)
}

func TestAuthMiddlewareLeavesRequestHeadersAlone(t *testing.T) {
	tenantID := uint(42)
	token, err := jwtutil.GenerateTokenWithTenant("lawyer@alpha-law.test", 7, &tenantID, "alpha-law", nil)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/matters", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = AuthMiddleware(okHandler)(c)

	// Tenant identity travels on the request context, never as spoofable
	// inbound headers.
	assert.Empty(t, c.Request().Header.Get("X-Tenant-ID"))
	assert.Empty(t, c.Request().Header.Get("X-Tenant-Slug"))
}

func TestTokenWithoutTenantStillReachesSetupRoutes(t *testing.T) {
	token, err := jwtutil.GenerateToken("lawyer@alpha-law.test", 7)
	require.NoError(t, err)

	// No RequireTenantContext on setup routes.
	rec := performRequest(token, okHandler, AuthMiddleware)
	assert.Equal(t, http.StatusOK, rec.Code)
}
