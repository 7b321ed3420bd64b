// Package credential exchanges an API key (or a backend call) for a short-lived,
// single-use session credential scoped to a persona.
package credential

import (
	"context"

	"github.com/ent0n29/avatar-tour/internal/persona"
)

// Credential authorizes exactly one realtime connection. It is never persisted.
type Credential struct {
	Token string
	// ServerURL is set when the issuer chose the realtime endpoint.
	ServerURL string
	// SessionID is set by the backend-session variant; it drives keep-alive and stop.
	SessionID string
}

// Fetcher performs one token request per call and never retries.
type Fetcher interface {
	Fetch(ctx context.Context, p persona.Config) (Credential, error)
}

// SessionKeeper is implemented by fetchers whose credentials belong to a
// backend-side session that must be kept alive and explicitly ended.
type SessionKeeper interface {
	KeepAlive(ctx context.Context, sessionID string) error
	EndSession(ctx context.Context, sessionID, reason string) error
}

// wirePersona is the provider's personaConfig shape.
type wirePersona struct {
	Name         string `json:"name"`
	AvatarID     string `json:"avatarId"`
	VoiceID      string `json:"voiceId"`
	LLMID        string `json:"llmId"`
	SystemPrompt string `json:"systemPrompt"`
}

func toWire(p persona.Config) wirePersona {
	return wirePersona{
		Name:         p.Name,
		AvatarID:     p.AvatarID,
		VoiceID:      p.VoiceID,
		LLMID:        p.LLMID,
		SystemPrompt: p.SystemPrompt,
	}
}
