package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const nocoMCPTokenHeader = "xc-mcp-token"

var ErrMCPNotConfigured = errors.New("NocoDB MCP configuration missing")

// NocoMCPClient talks to the NocoDB MCP endpoint. Only reachability is used.
type NocoMCPClient struct {
	baseURL *url.URL
	token   string
	client  *http.Client
}

// NewNocoMCPClient accepts empty settings; Ping then reports ErrMCPNotConfigured.
func NewNocoMCPClient(baseURL, token string, client *http.Client) (*NocoMCPClient, error) {
	if client == nil {
		client = &http.Client{Timeout: nocoTimeout}
	}
	c := &NocoMCPClient{token: token, client: client}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("error parsing NocoDB MCP URL: %w", err)
		}
		c.baseURL = u
	}
	return c, nil
}

// Configured reports whether both the MCP URL and token are set.
func (c *NocoMCPClient) Configured() bool {
	return c.baseURL != nil && c.token != ""
}

// Ping issues a GET on the MCP base URL to validate the token.
func (c *NocoMCPClient) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrMCPNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(nocoMCPTokenHeader, c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("NocoDB MCP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("NocoDB MCP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
