package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstarWorks/AstarManagement-sub017/pkg/config"
)

func newTestClient(url string) *Client {
	return NewClient(&config.DirectoryConfig{BaseURL: url, APIKey: "test-key"})
}

func TestRegisterOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/organizations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Alpha Law", body["name"])
		assert.Equal(t, "alpha-law-12345678", body["external_ref"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "org_abc", "name": body["name"]})
	}))
	defer srv.Close()

	orgID, err := newTestClient(srv.URL).RegisterOrganization(context.Background(), "Alpha Law", "alpha-law-12345678")
	require.NoError(t, err)
	assert.Equal(t, "org_abc", orgID)
}

func TestRegisterOrganizationErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "conflict", "error_description": "organization exists"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RegisterOrganization(context.Background(), "Alpha Law", "ref")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestRegisterOrganizationMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "Alpha Law"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RegisterOrganization(context.Background(), "Alpha Law", "ref")
	assert.Error(t, err)
}

func TestRemoveOrganization(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/organizations/org_abc", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).RemoveOrganization(context.Background(), "org_abc"))
	assert.True(t, called)
}

func TestRemoveOrganizationGoneIsFine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	// Compensation is idempotent: an already-removed organization is success.
	assert.NoError(t, newTestClient(srv.URL).RemoveOrganization(context.Background(), "org_gone"))
}
