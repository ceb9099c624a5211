package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/opencraft/opencraft/pkg/types"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsAlreadyRunning reports whether err means the game server was already up.
func IsAlreadyRunning(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == types.CodeAlreadyRunning
}

// Client is an HTTP client for the opencraft API.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client authenticated with the API key.
func NewClient(baseURL, apiKey string) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	// Power operations wait for the provider to finish.
	httpClient.Timeout = 15 * time.Minute
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// WithToken authenticates with a scoped power token instead of the API key.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.apiKey != "":
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
		var er types.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			apiErr.Code = er.Code
			apiErr.Message = er.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PowerOn starts the game server VM.
func (c *Client) PowerOn(ctx context.Context) (*types.PowerResponse, error) {
	var resp types.PowerResponse
	if err := c.doRequest(ctx, http.MethodPost, "/power/on", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PowerOff stops the game server and deallocates its VM.
func (c *Client) PowerOff(ctx context.Context) (*types.PowerResponse, error) {
	var resp types.PowerResponse
	if err := c.doRequest(ctx, http.MethodPost, "/power/off", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the VM power state and game server liveness.
func (c *Client) Status(ctx context.Context) (*types.Status, error) {
	var resp types.Status
	if err := c.doRequest(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IssueToken mints a scoped power token. Requires the API key.
func (c *Client) IssueToken(ctx context.Context, req types.TokenRequest) (*types.TokenResponse, error) {
	var resp types.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/tokens", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
