// Package apiclient is the HTTP client for the session service API,
// used by the dashboard-side session components.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/techieonvacation/stylopay-sub000/internal/auth"
)

// Client errors
var (
	// ErrUnauthorized means the server rejected the credentials or the
	// session token; the caller must re-authenticate.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServerUnavailable means the server could not be reached or
	// answered with a server error.
	ErrServerUnavailable = errors.New("server unavailable")
)

// Client calls the session service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL (e.g. "https://api.example.com/api/v1").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope mirrors the server's APIResponse wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Login authenticates and returns the minted session token
func (c *Client) Login(ctx context.Context, email, password string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", auth.LoginRequest{Email: email, Password: password}, "", &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges the presented token for a new one when it is
// nearing expiry
func (c *Client) Refresh(ctx context.Context, token string) (*auth.RefreshResponse, error) {
	var out auth.RefreshResponse
	err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, token, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Status describes the session carried by the token
func (c *Client) Status(ctx context.Context, token string) (*auth.StatusResponse, error) {
	var out auth.StatusResponse
	err := c.do(ctx, http.MethodGet, "/auth/status", nil, token, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateResult is the /validate-token answer
type ValidateResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate probes a token's validity without treating failure as an error
func (c *Client) Validate(ctx context.Context, token string) (*ValidateResult, error) {
	var out ValidateResult
	err := c.do(ctx, http.MethodPost, "/auth/validate-token", map[string]string{"token": token}, "", &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a request and decodes the response envelope
func (c *Client) do(ctx context.Context, method, path string, body interface{}, token string, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrServerUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}

	if !env.Success {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if env.Error != nil {
				return fmt.Errorf("%w: %s", ErrUnauthorized, env.Error.Code)
			}
			return ErrUnauthorized
		}
		if env.Error != nil {
			return fmt.Errorf("request failed: %s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
