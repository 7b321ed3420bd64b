package session

import (
	"time"

	"github.com/ent0n29/avatar-tour/internal/avatar"
)

// CreateRequest defines payload for registering a controller for a scene.
type CreateRequest struct {
	VisitorID string `json:"visitor_id"`
	Scene     string `json:"scene"`
	// AutoStart calls start() right after registration.
	AutoStart bool `json:"auto_start"`
}

// Snapshot is the registry view of one controller.
type Snapshot struct {
	SessionID       string        `json:"session_id"`
	VisitorID       string        `json:"visitor_id,omitempty"`
	Scene           string        `json:"scene"`
	Status          avatar.Status `json:"status"`
	Display         string        `json:"display"`
	CreatedAt       time.Time     `json:"created_at"`
	LastActivityAt  time.Time     `json:"last_activity_at"`
	InactivityTTLMS int64         `json:"inactivity_ttl_ms"`
}
