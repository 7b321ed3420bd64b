package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avatar-tour/internal/credential"
)

func newFakeProvider(t *testing.T, talked chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame wsFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case "attach":
				_ = conn.WriteJSON(wsFrame{Type: "session_ready"})
				_ = conn.WriteJSON(wsFrame{Type: "message_history", Messages: []Message{
					{ID: "1", Role: "persona", Content: "hello"},
					{ID: "2", Role: RoleUser, Content: "show me the demo"},
				}})
			case "talk":
				talked <- frame.Text
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestWSClientAttachTalkClose(t *testing.T) {
	talked := make(chan string, 1)
	srv := newFakeProvider(t, talked)
	defer srv.Close()

	d := NewWSDialer(WSConfig{URL: wsURL(srv.URL)})
	client, err := d.Dial(context.Background(), credential.Credential{Token: "tok"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Attach(ctx, "anam-avatar-video"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if ev := nextEvent(t, client.Events()); ev.Type != EventSessionReady {
		t.Fatalf("first event = %q, want %q", ev.Type, EventSessionReady)
	}
	ev := nextEvent(t, client.Events())
	if ev.Type != EventMessageHistoryUpdated || len(ev.Messages) != 2 {
		t.Fatalf("unexpected history event: %+v", ev)
	}
	if ev.Messages[0].Role != RoleAssistant {
		t.Fatalf("persona role not normalized: %q", ev.Messages[0].Role)
	}

	if err := client.Talk(ctx, "OK sure"); err != nil {
		t.Fatalf("Talk() error = %v", err)
	}
	select {
	case got := <-talked:
		if got != "OK sure" {
			t.Fatalf("talk text = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("provider never received talk")
	}

	if err := client.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case _, ok := <-client.Events():
		for ok {
			_, ok = <-client.Events()
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel not closed after Close")
	}
}

func TestWSClientTalkBeforeAttach(t *testing.T) {
	client, err := NewWSDialer(WSConfig{}).Dial(context.Background(), credential.Credential{Token: "tok"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if err := client.Talk(context.Background(), "hi"); err != ErrNotAttached {
		t.Fatalf("Talk() error = %v, want ErrNotAttached", err)
	}
	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-client.Events(); ok {
		t.Fatalf("events should be closed")
	}
}

func TestWSClientAttachRejected(t *testing.T) {
	srv := newFakeProvider(t, make(chan string, 1))
	defer srv.Close()

	client, err := NewWSDialer(WSConfig{URL: wsURL(srv.URL)}).Dial(context.Background(), credential.Credential{Token: "wrong"})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if err := client.Attach(context.Background(), "sink"); err == nil {
		t.Fatalf("Attach() expected error for bad token")
	}
}

func TestWSDialerRejectsEmptyCredential(t *testing.T) {
	if _, err := NewWSDialer(WSConfig{}).Dial(context.Background(), credential.Credential{}); err == nil {
		t.Fatalf("Dial() expected error for empty token")
	}
}
