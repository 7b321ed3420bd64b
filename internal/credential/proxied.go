package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ent0n29/avatar-tour/internal/backend"
	"github.com/ent0n29/avatar-tour/internal/persona"
	"github.com/ent0n29/avatar-tour/internal/reliability"
)

// ProxiedMode selects which backend endpoint issues the credential.
type ProxiedMode string

const (
	// ProxiedModeToken exchanges the persona for a provider session token.
	ProxiedModeToken ProxiedMode = "token"
	// ProxiedModeSession starts a backend-owned session that must be kept alive.
	ProxiedModeSession ProxiedMode = "session"
)

type ProxiedConfig struct {
	Mode ProxiedMode
	// AvatarID and ContextID are used by ProxiedModeSession. An empty AvatarID
	// falls back to the persona's avatar; an empty ContextID makes the first
	// fetch create one from the persona prompt.
	AvatarID  string
	ContextID string
}

// ProxiedFetcher gets credentials from the backend so the API key never leaves it.
type ProxiedFetcher struct {
	client *backend.Client
	cfg    ProxiedConfig

	mu        sync.Mutex
	contextID string
}

func NewProxiedFetcher(client *backend.Client, cfg ProxiedConfig) *ProxiedFetcher {
	if cfg.Mode == "" {
		cfg.Mode = ProxiedModeToken
	}
	return &ProxiedFetcher{client: client, cfg: cfg, contextID: strings.TrimSpace(cfg.ContextID)}
}

func (f *ProxiedFetcher) Fetch(ctx context.Context, p persona.Config) (Credential, error) {
	if f.client == nil || f.client.BaseURL() == "" {
		return Credential{}, &ConfigurationError{Setting: "AVATAR_BACKEND_URL"}
	}

	switch f.cfg.Mode {
	case ProxiedModeSession:
		avatarID := strings.TrimSpace(f.cfg.AvatarID)
		if avatarID == "" {
			avatarID = p.AvatarID
		}
		contextID, err := f.personaContext(ctx, p)
		if err != nil {
			return Credential{}, wrapBackendError(ctx, err)
		}
		res, err := f.client.StartSession(ctx, avatarID, contextID)
		if err != nil {
			return Credential{}, wrapBackendError(ctx, err)
		}
		if strings.TrimSpace(res.LiveKitClientToken) == "" {
			return Credential{}, &CredentialError{Message: "no session token returned from backend"}
		}
		return Credential{
			Token:     res.LiveKitClientToken,
			ServerURL: res.LiveKitURL,
			SessionID: res.SessionID,
		}, nil
	default:
		res, err := f.client.SessionToken(ctx, toWire(p))
		if err != nil {
			return Credential{}, wrapBackendError(ctx, err)
		}
		if strings.TrimSpace(res.SessionToken) == "" {
			return Credential{}, &CredentialError{Message: "no session token returned from backend"}
		}
		return Credential{Token: res.SessionToken}, nil
	}
}

// personaContext returns the configured context id, creating one from the
// persona on first use.
func (f *ProxiedFetcher) personaContext(ctx context.Context, p persona.Config) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contextID != "" {
		return f.contextID, nil
	}
	created, err := f.client.CreateContext(ctx, backend.CreateContextRequest{
		Name:   p.Name,
		Links:  []string{},
		Prompt: p.SystemPrompt,
	})
	if err != nil {
		return "", err
	}
	f.contextID = created.ID
	return f.contextID, nil
}

// Verify looks up the configured avatar and context so a bad id shows up at
// boot instead of on the first visitor.
func (f *ProxiedFetcher) Verify(ctx context.Context) error {
	if f.client == nil || f.client.BaseURL() == "" {
		return &ConfigurationError{Setting: "AVATAR_BACKEND_URL"}
	}
	if id := strings.TrimSpace(f.cfg.AvatarID); id != "" {
		a, err := f.client.GetAvatar(ctx, id)
		if err != nil {
			return fmt.Errorf("avatar %s: %w", id, err)
		}
		if a.Status != "" && !strings.EqualFold(a.Status, "active") {
			return fmt.Errorf("avatar %s is %s", id, a.Status)
		}
	}
	if id := strings.TrimSpace(f.cfg.ContextID); id != "" {
		if _, err := f.client.GetContext(ctx, id); err != nil {
			return fmt.Errorf("context %s: %w", id, err)
		}
	}
	return nil
}

func (f *ProxiedFetcher) KeepAlive(ctx context.Context, sessionID string) error {
	return f.client.KeepAlive(ctx, sessionID)
}

func (f *ProxiedFetcher) EndSession(ctx context.Context, sessionID, reason string) error {
	return f.client.StopSession(ctx, sessionID, reason)
}

func wrapBackendError(ctx context.Context, err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return &CredentialError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Retryable:  reliability.IsRetryableHTTPStatus(apiErr.StatusCode),
			Err:        err,
		}
	}
	// Only the caller giving up passes through; a client timeout is a network failure.
	if ctx.Err() != nil {
		return err
	}
	return &CredentialError{Message: fmt.Sprintf("backend request failed: %v", err), Retryable: true, Err: err}
}
