package avatar

import "time"

type State string

const (
	StateIdle                 State = "idle"
	StateRequestingCredential State = "requesting_credential"
	StateConnecting           State = "connecting"
	StateConnected            State = "connected"
	StateError                State = "error"
	StateStopped              State = "stopped"
)

// ErrorKind names the fatal error class behind StateError.
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindCredential    ErrorKind = "credential"
	ErrorKindConnection    ErrorKind = "connection"
)

// Status is a read-only snapshot for display.
type Status struct {
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Label     string    `json:"label,omitempty"`
	SessionID string    `json:"backend_session_id,omitempty"`
	// DemoRequested is set once the current connection handed off to the demo.
	DemoRequested bool      `json:"demo_requested,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Display is the compact indicator text shown over the avatar.
func (s Status) Display() string {
	switch s.State {
	case StateIdle:
		return "Idle"
	case StateRequestingCredential:
		return "Connecting..."
	case StateConnecting:
		return "Starting avatar..."
	case StateConnected:
		if s.Label != "" {
			return s.Label
		}
		return "Live"
	case StateError:
		return "Error: " + s.Error
	case StateStopped:
		return "Stopped"
	default:
		return string(s.State)
	}
}

// canStart reports whether start() may begin a new attempt from s.
func (s State) canStart() bool {
	return s == StateIdle || s == StateError || s == StateStopped
}
