package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/avatar-tour/internal/persona"
	"github.com/ent0n29/avatar-tour/internal/reliability"
)

const DefaultProviderBaseURL = "https://api.anam.ai"

// DirectFetcher asks the provider for a session token with the account API key.
// Only suitable where the key may be held by the caller (dev, or this service
// acting as the proxy).
type DirectFetcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewDirectFetcher(apiKey, baseURL string, client *http.Client) *DirectFetcher {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultProviderBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &DirectFetcher{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

type tokenRequest struct {
	PersonaConfig wirePersona `json:"personaConfig"`
}

type tokenResponse struct {
	SessionToken string `json:"sessionToken"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (f *DirectFetcher) Fetch(ctx context.Context, p persona.Config) (Credential, error) {
	if f.apiKey == "" {
		return Credential{}, &ConfigurationError{
			Setting: "ANAM_API_KEY",
			Hint:    "set it in .env.local (development only) or configure AVATAR_BACKEND_URL",
		}
	}

	payload, err := json.Marshal(tokenRequest{PersonaConfig: toWire(p)})
	if err != nil {
		return Credential{}, &CredentialError{Message: "encode token request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/auth/session-token", bytes.NewReader(payload))
	if err != nil {
		return Credential{}, &CredentialError{Message: "create token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	res, err := f.client.Do(req)
	if err != nil {
		return Credential{}, &CredentialError{Message: fmt.Sprintf("token request failed: %v", err), Retryable: true, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return Credential{}, &CredentialError{StatusCode: res.StatusCode, Message: "read token response", Retryable: true, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Credential{}, &CredentialError{
			StatusCode: res.StatusCode,
			Message:    errorMessage(raw, res.StatusCode),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	var body tokenResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return Credential{}, &CredentialError{StatusCode: res.StatusCode, Message: "failed to parse provider response JSON", Err: err}
	}
	if strings.TrimSpace(body.SessionToken) == "" {
		return Credential{}, &CredentialError{StatusCode: res.StatusCode, Message: "no sessionToken returned from provider"}
	}
	return Credential{Token: body.SessionToken}, nil
}

// errorMessage prefers the body's message, then its error field, then a generic
// status message.
func errorMessage(raw []byte, status int) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := strings.TrimSpace(body.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(body.Error); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("provider returned %d", status)
}
