// Package directory is the HTTP client for the external identity
// directory where tenant organizations are registered during setup. This
// service trusts the directory for identity; the client only manages the
// organization objects that mirror local tenants.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AstarWorks/AstarManagement-sub017/pkg/config"
)

// Client talks to the directory's organization API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// organizationResponse is the directory's representation of an organization
type organizationResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ExternalRef string `json:"external_ref"`
}

// errorResponse is the directory's error envelope
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// NewClient creates a directory client from configuration.
func NewClient(cfg *config.DirectoryConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// RegisterOrganization creates an organization in the directory and
// returns its identifier. ExternalRef carries the local tenant slug so the
// reconciliation sweep can match both sides.
func (c *Client) RegisterOrganization(ctx context.Context, name, externalRef string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"name":         name,
		"external_ref": externalRef,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/organizations", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("directory registration failed: %s (%s)", errResp.Error, errResp.ErrorDescription)
		}
		return "", fmt.Errorf("directory registration failed with status %d", resp.StatusCode)
	}

	var org organizationResponse
	if err := json.Unmarshal(body, &org); err != nil {
		return "", fmt.Errorf("failed to parse directory response: %w", err)
	}
	if org.ID == "" {
		return "", fmt.Errorf("directory response missing organization id")
	}
	return org.ID, nil
}

// RemoveOrganization deletes an organization, used as compensation when the
// local tenant write fails after registration succeeded.
func (c *Client) RemoveOrganization(ctx context.Context, orgID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/v1/organizations/"+orgID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("directory organization removal failed with status %d", resp.StatusCode)
	}
	return nil
}
