// Package identitysdk is the Go client for the identity service API, plus
// the signature verification helper webhook receivers need.
package identitysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AppTokenHeader gates which caller may invoke identity endpoints at all.
const AppTokenHeader = "X-App-Token"

// Client credential headers for the grant endpoints. Verify, refresh and
// revoke require the calling application to prove it owns the grant.
const (
	ClientIDHeader     = "X-Client-Id"
	ClientSecretHeader = "X-Client-Secret"
)

// Client talks to an identity service instance. All methods send the shared
// app token; bearer-token methods additionally authenticate the grant.
type Client struct {
	BaseURL    string
	AppToken   string
	HTTPClient *http.Client

	// ClientID and ClientSecret authenticate the application on the grant
	// endpoints. Set via WithClientCredentials.
	ClientID     string
	ClientSecret string
}

// NewClient creates a client with a sane default timeout.
func NewClient(baseURL, appToken string) *Client {
	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		AppToken: appToken,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithClientCredentials sets the application credentials sent on the grant
// endpoints and returns the client for chaining.
func (c *Client) WithClientCredentials(clientID, clientSecret string) *Client {
	c.ClientID = clientID
	c.ClientSecret = clientSecret
	return c
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity: %s (status %d)", e.Code, e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(AppTokenHeader, c.AppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if c.ClientID != "" {
		req.Header.Set(ClientIDHeader, c.ClientID)
		req.Header.Set(ClientSecretHeader, c.ClientSecret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Error}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Verify resolves a grant token to its authorization. Requires client
// credentials matching the application the grant was issued to. Revoked,
// expired and unknown tokens all return an APIError with status 404.
func (c *Client) Verify(ctx context.Context, token string) (VerifyResponse, error) {
	var out VerifyResponse
	err := c.do(ctx, http.MethodGet, "/auth/verify", token, nil, &out)
	return out, err
}

// Refresh rotates the grant token and returns the replacement. Requires
// client credentials matching the grant's application. The old token stops
// resolving once the response arrives.
func (c *Client) Refresh(ctx context.Context, token string) (RefreshResponse, error) {
	var out RefreshResponse
	err := c.do(ctx, http.MethodPut, "/auth/refresh", token, nil, &out)
	return out, err
}

// Revoke terminates the grant. Requires client credentials matching the
// grant's application. The token stops resolving immediately, so a repeat
// call returns a 404 APIError.
func (c *Client) Revoke(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/auth/revoke", token, nil, nil)
}

// UserInfo returns the user behind a grant token.
func (c *Client) UserInfo(ctx context.Context, token string) (UserResponse, error) {
	var out UserResponse
	err := c.do(ctx, http.MethodGet, "/user-info", token, nil, &out)
	return out, err
}

// Health probes the liveness endpoint.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/livez", "", nil, &out)
	return out, err
}
