package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avatar-tour/internal/credential"
)

const (
	DefaultRealtimeURL = "wss://connect.anam.ai/v1/realtime"

	wsWriteTimeout = 3 * time.Second
)

var ErrNotAttached = errors.New("realtime client is not attached")

type WSConfig struct {
	URL              string
	HandshakeTimeout time.Duration
}

// WSDialer builds websocket signalling clients for the provider.
type WSDialer struct {
	cfg    WSConfig
	dialer websocket.Dialer
}

func NewWSDialer(cfg WSConfig) *WSDialer {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultRealtimeURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	return &WSDialer{
		cfg: cfg,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

func (d *WSDialer) Dial(_ context.Context, cred credential.Credential) (Client, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return nil, errors.New("realtime: empty credential")
	}
	url := strings.TrimSpace(cred.ServerURL)
	if url == "" {
		url = d.cfg.URL
	}
	return &wsClient{
		url:    url,
		token:  cred.Token,
		dialer: d.dialer,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}, nil
}

type wsFrame struct {
	Type     string    `json:"type"`
	SinkID   string    `json:"sink_id,omitempty"`
	Text     string    `json:"text,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Message  string    `json:"message,omitempty"`
}

type wsClient struct {
	url    string
	token  string
	dialer websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	events     chan Event
	done       chan struct{}
	closeOnce  sync.Once
	eventsOnce sync.Once
}

func (c *wsClient) Events() <-chan Event { return c.events }

func (c *wsClient) Attach(ctx context.Context, sinkID string) error {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.token)

	conn, res, err := c.dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if res != nil {
			return fmt.Errorf("dial realtime websocket: %s: %w", res.Status, err)
		}
		return fmt.Errorf("dial realtime websocket: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("realtime client closed during attach")
	default:
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	if err := c.write(wsFrame{Type: "attach", SinkID: sinkID}); err != nil {
		return fmt.Errorf("send attach: %w", err)
	}
	return nil
}

func (c *wsClient) Talk(_ context.Context, text string) error {
	return c.write(wsFrame{Type: "talk", Text: text})
}

func (c *wsClient) Close(ctx context.Context) error {
	var retErr error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			c.closeEvents()
			return
		}

		deadline := time.Now().Add(wsWriteTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop"), deadline)
		c.writeMu.Unlock()
		retErr = conn.Close()
	})
	return retErr
}

func (c *wsClient) write(frame wsFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotAttached
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}

func (c *wsClient) readLoop(conn *websocket.Conn) {
	defer c.closeEvents()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.emit(Event{Type: EventConnectionClosed, Reason: closeReason(err), Detail: err.Error()})
			}
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("realtime: ignoring malformed frame: %v", err)
			continue
		}
		switch frame.Type {
		case "session_ready":
			c.emit(Event{Type: EventSessionReady})
		case "message_history":
			c.emit(Event{Type: EventMessageHistoryUpdated, Messages: normalizeRoles(frame.Messages)})
		case "error", "session_closed":
			c.emit(Event{Type: EventConnectionClosed, Reason: frame.Reason, Detail: frame.Message})
			return
		}
	}
}

func (c *wsClient) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *wsClient) closeEvents() {
	c.eventsOnce.Do(func() { close(c.events) })
}

// normalizeRoles maps the provider's "persona" role onto RoleAssistant.
func normalizeRoles(in []Message) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		if m.Role == "persona" {
			m.Role = RoleAssistant
		}
		out[i] = m
	}
	return out
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseGoingAway:
			return "going_away"
		case websocket.CloseServiceRestart:
			return "server_restart"
		case websocket.ClosePolicyViolation:
			return "policy_violation"
		case websocket.CloseTryAgainLater:
			return "concurrent_session_limit"
		}
		return "closed"
	}
	return "network"
}
