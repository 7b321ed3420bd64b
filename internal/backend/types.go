package backend

import "encoding/json"

// CodeSuccess is the envelope code the backend uses for a successful call.
const CodeSuccess = 1000

// Envelope wraps every backend response.
type Envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type TokenRequest struct {
	PersonaConfig any `json:"personaConfig"`
}

type TokenResponse struct {
	SessionToken string `json:"session_token"`
}

type StartSessionRequest struct {
	AvatarID      string `json:"avatar_id"`
	Mode          string `json:"mode"`
	AvatarPersona string `json:"avatar_persona,omitempty"`
}

// StartSessionResponse carries the realtime room the backend opened for us.
type StartSessionResponse struct {
	SessionID          string `json:"session_id"`
	LiveKitURL         string `json:"livekit_url"`
	LiveKitClientToken string `json:"livekit_client_token"`
}

type KeepAliveRequest struct {
	SessionID string `json:"session_id"`
}

type StopSessionRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type Avatar struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	PreviewURL string `json:"preview_url"`
}

type CreateContextRequest struct {
	Name   string   `json:"name"`
	Links  []string `json:"links"`
	Prompt string   `json:"prompt"`
}

type Context struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Links  []string `json:"links,omitempty"`
	Prompt string   `json:"prompt,omitempty"`
}

// Stop reasons understood by the backend.
const (
	StopReasonUserEnded = "USER_ENDED"
	StopReasonUnknown   = "UNKNOWN"
)
