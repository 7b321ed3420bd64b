package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/avatar-tour/internal/avatar"
	"github.com/ent0n29/avatar-tour/internal/credential"
	"github.com/ent0n29/avatar-tour/internal/persona"
	"github.com/ent0n29/avatar-tour/internal/realtime"
)

type tokenFetcher struct{}

func (tokenFetcher) Fetch(context.Context, persona.Config) (credential.Credential, error) {
	return credential.Credential{Token: "tok"}, nil
}

func newController(t *testing.T, dialer *realtime.MockDialer) *avatar.Controller {
	t.Helper()
	c, err := avatar.NewController(avatar.Config{
		Persona: persona.Config{Name: "Cara", AvatarID: "a", VoiceID: "v", LLMID: "l"},
	}, avatar.Deps{Fetcher: tokenFetcher{}, Dialer: dialer})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

func waitState(t *testing.T, c *avatar.Controller, want avatar.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", c.Status().State, want)
}

func TestManagerRegisterGetStop(t *testing.T) {
	m := NewManager(time.Minute)
	c := newController(t, realtime.NewMockDialer())
	snap := m.Register(context.Background(), "v1", "intro", c)
	if snap.SessionID != c.ID() || snap.Scene != "intro" || snap.Display != "Idle" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	got, err := m.Get(c.ID())
	if err != nil || got != c {
		t.Fatalf("Get() = %v, %v", got, err)
	}

	c.Start()
	waitState(t, c, avatar.StateConnected)
	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", got)
	}

	stopped, err := m.Stop(context.Background(), c.ID())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stopped.Status.State != avatar.StateStopped {
		t.Fatalf("state = %q, want %q", stopped.Status.State, avatar.StateStopped)
	}
	if m.Len() != 1 {
		t.Fatalf("stopped controller should stay registered")
	}

	if _, err := m.Remove(context.Background(), c.ID()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := m.Get(c.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after remove error = %v, want ErrNotFound", err)
	}
}

func TestManagerReplacesVisitorSession(t *testing.T) {
	m := NewManager(time.Minute)
	dialer := realtime.NewMockDialer()
	first := newController(t, dialer)
	m.Register(context.Background(), "v1", "intro", first)
	first.Start()
	waitState(t, first, avatar.StateConnected)

	second := newController(t, dialer)
	m.Register(context.Background(), "v1", "showreel", second)

	if got := first.Status().State; got != avatar.StateStopped {
		t.Fatalf("previous controller state = %q, want %q", got, avatar.StateStopped)
	}
	if _, err := m.Get(first.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("previous controller still registered")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestManagerUnknownSession(t *testing.T) {
	m := NewManager(time.Minute)
	if err := m.Touch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Stop(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stop() error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	dialer := realtime.NewMockDialer()
	c := newController(t, dialer)
	m.Register(context.Background(), "v1", "intro", c)
	c.Start()
	waitState(t, c, avatar.StateConnected)

	var mu sync.Mutex
	var expired []Snapshot
	m.SetExpireHook(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, s)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	if _, err := m.Get(c.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if got := c.Status().State; got != avatar.StateStopped {
		t.Fatalf("State = %q, want %q", got, avatar.StateStopped)
	}
	if !dialer.Last().Closed() {
		t.Fatalf("expired controller left its client open")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0].SessionID != c.ID() {
		t.Fatalf("expired = %+v", expired)
	}
}

func TestManagerStopAll(t *testing.T) {
	m := NewManager(time.Minute)
	dialer := realtime.NewMockDialer()
	a := newController(t, dialer)
	b := newController(t, dialer)
	m.Register(context.Background(), "v1", "intro", a)
	m.Register(context.Background(), "v2", "intro", b)
	a.Start()
	b.Start()
	waitState(t, a, avatar.StateConnected)
	waitState(t, b, avatar.StateConnected)

	m.StopAll(context.Background())
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
	for _, c := range []*avatar.Controller{a, b} {
		if got := c.Status().State; got != avatar.StateStopped {
			t.Fatalf("State = %q, want %q", got, avatar.StateStopped)
		}
	}
}
