package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/avatar-tour/internal/credential"
)

// MockDialer builds in-process clients that behave like the provider without a
// network. Used when no provider is configured and by tests.
type MockDialer struct {
	// Options applied to every client it builds.
	Options MockOptions

	mu      sync.Mutex
	clients []*MockClient
}

type MockOptions struct {
	AttachErr error
	TalkErr   error
	// NoReady suppresses the session_ready event on attach.
	NoReady bool
	// BlockAttach makes Attach wait for ctx cancellation.
	BlockAttach bool
	// HangClose makes Close block until ctx is done and then fail.
	HangClose bool
	// CloseErr is returned by Close after it released the client.
	CloseErr error
}

func NewMockDialer() *MockDialer { return &MockDialer{} }

func (d *MockDialer) Dial(_ context.Context, cred credential.Credential) (Client, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return nil, errors.New("realtime: empty credential")
	}
	c := &MockClient{
		opts:   d.Options,
		token:  cred.Token,
		events: make(chan Event, 64),
	}
	d.mu.Lock()
	d.clients = append(d.clients, c)
	d.mu.Unlock()
	return c, nil
}

// Clients returns every client dialed so far.
func (d *MockDialer) Clients() []*MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockClient, len(d.clients))
	copy(out, d.clients)
	return out
}

// Last returns the most recently dialed client or nil.
func (d *MockDialer) Last() *MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

type MockClient struct {
	opts  MockOptions
	token string

	mu       sync.Mutex
	attached bool
	closed   bool
	sinkID   string
	history  []Message
	spoken   []string
	events   chan Event
}

func (c *MockClient) Events() <-chan Event { return c.events }

func (c *MockClient) Attach(ctx context.Context, sinkID string) error {
	if c.opts.BlockAttach {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.opts.AttachErr != nil {
		return c.opts.AttachErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("mock client closed")
	}
	c.attached = true
	c.sinkID = sinkID
	if !c.opts.NoReady {
		c.events <- Event{Type: EventSessionReady}
	}
	return nil
}

func (c *MockClient) Talk(_ context.Context, text string) error {
	if c.opts.TalkErr != nil {
		return c.opts.TalkErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached || c.closed {
		return ErrNotAttached
	}
	c.spoken = append(c.spoken, text)
	c.appendLocked(RoleAssistant, text)
	return nil
}

// Say injects a user utterance as if the visitor had spoken it.
func (c *MockClient) Say(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached || c.closed {
		return
	}
	c.appendLocked(RoleUser, text)
}

// Drop simulates the provider closing the connection.
func (c *MockClient) Drop(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.events <- Event{Type: EventConnectionClosed, Reason: reason, Detail: "connection dropped by provider"}
	close(c.events)
}

func (c *MockClient) Close(ctx context.Context) error {
	if c.opts.HangClose {
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return c.opts.CloseErr
}

func (c *MockClient) Spoken() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.spoken))
	copy(out, c.spoken)
	return out
}

func (c *MockClient) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

func (c *MockClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) SinkID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinkID
}

func (c *MockClient) appendLocked(role Role, text string) {
	c.history = append(c.history, Message{ID: uuid.NewString(), Role: role, Content: text})
	snapshot := make([]Message, len(c.history))
	copy(snapshot, c.history)
	select {
	case c.events <- Event{Type: EventMessageHistoryUpdated, Messages: snapshot}:
	default:
		// Consumers only need the latest history.
	}
}
