// Package backend is the HTTP client for the remote classification service.
//
// Only two endpoints are consumed: POST /scan/input, used by the scan broker,
// and POST /auth/login, used by the control panel. The client never decides
// anything about a verdict; it only builds requests and decodes responses
// into model types.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// Endpoint paths relative to the backend base URL.
const (
	ScanPath  = "/scan/input"
	LoginPath = "/auth/login"
)

// Defaults for the backend client.
const (
	DefaultBaseURL     = "http://127.0.0.1:8000"
	DefaultTimeout     = 30 * time.Second
	DefaultUserAgent   = "CyberBuddy-Extension/1.0"
	DefaultMaxBodySize = 1 * 1024 * 1024 // 1MB
)

// ScanRequest is the body of POST /scan/input.
type ScanRequest struct {
	URL    string       `json:"url"`
	Source model.Source `json:"source"`
}

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse covers both the success and the 4xx body.
type loginResponse struct {
	Token  string `json:"token"`
	Detail string `json:"detail"`
}

// verdictPayload detects missing required fields.
type verdictPayload struct {
	model.ScanVerdict
	Confidence *float64 `json:"confidence"`
}

// Client talks to the classification backend.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	maxBodySize int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.httpClient.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithMaxBodySize limits how much of a response body is read.
func WithMaxBodySize(n int64) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.maxBodySize = n
		}
	}
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Scan submits req to the classification endpoint. token is attached as a
// bearer credential when non-empty.
//
// Errors wrap model.ErrNetwork for transport failures and non-2xx replies,
// and model.ErrMalformedVerdict for bodies that are not a usable verdict.
func (c *Client) Scan(ctx context.Context, req ScanRequest, token string) (model.ScanVerdict, error) {
	resp, body, err := c.postJSON(ctx, ScanPath, req, token)
	if err != nil {
		return model.ScanVerdict{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.ScanVerdict{}, fmt.Errorf("%w: %s returned %d", model.ErrNetwork, ScanPath, resp.StatusCode)
	}

	var payload verdictPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.ScanVerdict{}, fmt.Errorf("%w: %v", model.ErrMalformedVerdict, err)
	}
	if payload.Confidence == nil {
		return model.ScanVerdict{}, fmt.Errorf("%w: missing confidence", model.ErrMalformedVerdict)
	}

	verdict := payload.ScanVerdict
	verdict.Confidence = *payload.Confidence
	if err := verdict.Validate(); err != nil {
		return model.ScanVerdict{}, err
	}
	return verdict, nil
}

// Login exchanges credentials for a token. A rejected login returns
// *model.AuthError carrying the server's detail text verbatim.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, body, err := c.postJSON(ctx, LoginPath, loginRequest{Email: email, Password: password}, "")
	if err != nil {
		return "", err
	}

	var payload loginResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := model.DefaultLoginFailure
		if decodeErr == nil && payload.Detail != "" {
			msg = payload.Detail
		}
		return "", &model.AuthError{StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: invalid login response: %v", model.ErrNetwork, decodeErr)
	}
	if payload.Token == "" {
		return "", &model.AuthError{StatusCode: resp.StatusCode, Message: model.DefaultLoginFailure}
	}
	return payload.Token, nil
}

// postJSON sends body as JSON to path and reads the (size-limited) reply.
func (c *Client) postJSON(ctx context.Context, path string, body any, token string) (*http.Response, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read response: %v", model.ErrNetwork, err)
	}
	return resp, data, nil
}
