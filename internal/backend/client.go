// Package backend is a client for the proxying avatar backend that owns the
// provider API key in the production deployment.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingBaseURL is returned when the client was built without a backend URL.
var ErrMissingBaseURL = errors.New("backend base url is not configured")

// APIError is a non-success envelope or a non-2xx HTTP answer.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != 0 {
		return fmt.Sprintf("backend returned code %d", e.Code)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// Client talks to the backend session endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewClientWithHTTP lets callers share a transport (tests use httptest clients).
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	c := NewClient(baseURL)
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SessionToken(ctx context.Context, personaConfig any) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/session-token", TokenRequest{PersonaConfig: personaConfig}, &out)
	return out, err
}

func (c *Client) StartSession(ctx context.Context, avatarID, avatarPersona string) (StartSessionResponse, error) {
	var out StartSessionResponse
	err := c.do(ctx, http.MethodPost, "/session/start", StartSessionRequest{
		AvatarID:      avatarID,
		Mode:          "FULL",
		AvatarPersona: avatarPersona,
	}, &out)
	return out, err
}

func (c *Client) KeepAlive(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/session/keepalive", KeepAliveRequest{SessionID: sessionID}, nil)
}

func (c *Client) StopSession(ctx context.Context, sessionID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = StopReasonUnknown
	}
	return c.do(ctx, http.MethodPost, "/session/stop", StopSessionRequest{SessionID: sessionID, Reason: reason}, nil)
}

func (c *Client) GetAvatar(ctx context.Context, avatarID string) (Avatar, error) {
	var out Avatar
	err := c.do(ctx, http.MethodGet, "/avatars/"+url.PathEscape(avatarID), nil, &out)
	return out, err
}

func (c *Client) CreateContext(ctx context.Context, req CreateContextRequest) (Context, error) {
	if req.Links == nil {
		req.Links = []string{}
	}
	var out Context
	err := c.do(ctx, http.MethodPost, "/context", req, &out)
	return out, err
}

func (c *Client) GetContext(ctx context.Context, contextID string) (Context, error) {
	var out Context
	err := c.do(ctx, http.MethodGet, "/context/"+url.PathEscape(contextID), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c.baseURL == "" {
		return ErrMissingBaseURL
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return &APIError{StatusCode: res.StatusCode}
		}
		return fmt.Errorf("decode envelope: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 || env.Code != CodeSuccess {
		return &APIError{StatusCode: res.StatusCode, Code: env.Code, Message: strings.TrimSpace(env.Message)}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
