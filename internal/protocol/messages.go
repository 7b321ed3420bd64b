package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl  MessageType = "client_control"
	TypeStatusChanged  MessageType = "status_changed"
	TypeNavigateToDemo MessageType = "navigate_to_demo"
	TypePong           MessageType = "pong"
	TypeErrorEvent     MessageType = "error_event"
)

const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionPing  = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	// GraceMS shortens the stop grace for this call, e.g. before a back navigation.
	GraceMS int64 `json:"grace_ms,omitempty"`
}

type StatusChanged struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	Display   string      `json:"display"`
	Label     string      `json:"label,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
	// DemoRequested lets a host that missed navigate_to_demo catch up.
	DemoRequested bool  `json:"demo_requested,omitempty"`
	TSMs          int64 `json:"ts_ms"`
}

type NavigateToDemo struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type Pong struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_control: missing session_id")
		}
		switch msg.Action {
		case ActionStart, ActionStop, ActionPing:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		if msg.GraceMS < 0 {
			return nil, errors.New("invalid client_control: negative grace_ms")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
