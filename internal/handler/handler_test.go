package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/AstarWorks/AstarManagement-sub017/internal/autherr"
)

func taxonomyResponse(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/matters", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = taxonomyJSON(c, err)
	return rec
}

func TestTaxonomyStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{autherr.ErrUnauthenticated, http.StatusUnauthorized},
		{autherr.ErrSetupRequired, http.StatusPreconditionRequired},
		{autherr.ErrForbidden, http.StatusForbidden},
		{autherr.ErrNotMember, http.StatusForbidden},
		{autherr.ErrTenantNotFound, http.StatusNotFound},
		{autherr.ErrCrossTenantViolation, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := taxonomyResponse(t, tc.err)
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}

func TestTaxonomyWrapsAreRecognized(t *testing.T) {
	wrapped := fmt.Errorf("loading subject: %w", autherr.ErrSetupRequired)
	rec := taxonomyResponse(t, wrapped)
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "setup required")
}

func TestCrossTenantViolationIsOpaqueToClients(t *testing.T) {
	rec := taxonomyResponse(t, autherr.ErrCrossTenantViolation)
	assert.NotContains(t, rec.Body.String(), "tenant")
	assert.Contains(t, rec.Body.String(), "internal error")
}
