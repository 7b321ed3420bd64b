// Package realtime is the boundary to the avatar provider's realtime client. The
// media transport itself belongs to the provider; this package only carries
// signalling: readiness, transcript history, talk commands and close.
package realtime

import (
	"context"

	"github.com/ent0n29/avatar-tour/internal/credential"
)

type EventType string

const (
	EventSessionReady          EventType = "session_ready"
	EventMessageHistoryUpdated EventType = "message_history_updated"
	EventConnectionClosed      EventType = "connection_closed"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. History is append-only for a connection.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Event struct {
	Type EventType
	// Messages is the full ordered history for EventMessageHistoryUpdated.
	Messages []Message
	// Reason and Detail describe EventConnectionClosed.
	Reason string
	Detail string
}

// Client is one realtime connection. Events is available before Attach so that
// no early event is lost, and is closed once the connection is gone.
type Client interface {
	Events() <-chan Event
	Attach(ctx context.Context, sinkID string) error
	Talk(ctx context.Context, text string) error
	Close(ctx context.Context) error
}

// Dialer builds a client for exactly one credential. It must not open the
// connection; Attach does.
type Dialer interface {
	Dial(ctx context.Context, cred credential.Credential) (Client, error)
}
