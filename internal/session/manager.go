// Package session keeps the live avatar controllers of this process, one per
// visitor, and stops the ones whose host went quiet.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ent0n29/avatar-tour/internal/avatar"
)

var ErrNotFound = errors.New("session not found")

type entry struct {
	controller     *avatar.Controller
	visitorID      string
	scene          string
	createdAt      time.Time
	lastActivityAt time.Time
}

type Manager struct {
	mu                sync.RWMutex
	entries           map[string]*entry
	sessionByVisitor  map[string]string
	inactivityTimeout time.Duration
	onExpire          func(Snapshot)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		entries:           make(map[string]*entry),
		sessionByVisitor:  make(map[string]string),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Register adds c under its own id. A visitor holds at most one controller:
// the previous one is stopped first so the provider's concurrent-session limit
// is not hit.
func (m *Manager) Register(ctx context.Context, visitorID, scene string, c *avatar.Controller) Snapshot {
	now := time.Now().UTC()
	e := &entry{controller: c, visitorID: visitorID, scene: scene, createdAt: now, lastActivityAt: now}

	m.mu.Lock()
	var previous *avatar.Controller
	if visitorID != "" {
		if prevID, ok := m.sessionByVisitor[visitorID]; ok {
			if prev, ok := m.entries[prevID]; ok {
				previous = prev.controller
				delete(m.entries, prevID)
			}
		}
		m.sessionByVisitor[visitorID] = c.ID()
	}
	m.entries[c.ID()] = e
	snap := m.snapshot(e)
	m.mu.Unlock()

	if previous != nil {
		log.Printf("session: visitor %s replaced session %s", visitorID, previous.ID())
		previous.Stop(ctx)
	}
	return snap
}

func (m *Manager) Get(sessionID string) (*avatar.Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.controller, nil
}

func (m *Manager) Snapshot(sessionID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return m.snapshot(e), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.lastActivityAt = time.Now().UTC()
	return nil
}

// Stop stops the controller but keeps it registered so the host can read the
// final status or start it again.
func (m *Manager) Stop(ctx context.Context, sessionID string) (Snapshot, error) {
	c, err := m.Get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	c.Stop(ctx)
	_ = m.Touch(sessionID)
	return m.Snapshot(sessionID)
}

// Remove stops the controller and forgets it.
func (m *Manager) Remove(ctx context.Context, sessionID string) (Snapshot, error) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	m.deleteLocked(sessionID, e)
	m.mu.Unlock()

	e.controller.Stop(ctx)
	return m.snapshot(e), nil
}

// StopAll stops every controller. Used on shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.entries))
	for id, e := range m.entries {
		all = append(all, e)
		m.deleteLocked(id, e)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range all {
		wg.Add(1)
		go func(c *avatar.Controller) {
			defer wg.Done()
			c.Stop(ctx)
		}(e.controller)
	}
	wg.Wait()
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive(ctx)
			}
		}
	}()
}

// ActiveCount counts controllers that are connecting or connected.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.entries {
		switch e.controller.Status().State {
		case avatar.StateRequestingCredential, avatar.StateConnecting, avatar.StateConnected:
			count++
		}
	}
	return count
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager) expireInactive(ctx context.Context) {
	now := time.Now().UTC()
	var expired []*entry

	m.mu.Lock()
	for id, e := range m.entries {
		if now.Sub(e.lastActivityAt) < m.inactivityTimeout {
			continue
		}
		expired = append(expired, e)
		m.deleteLocked(id, e)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, e := range expired {
		e.controller.Stop(ctx)
		if hook != nil {
			hook(m.snapshot(e))
		}
	}
}

func (m *Manager) deleteLocked(id string, e *entry) {
	delete(m.entries, id)
	if e.visitorID != "" && m.sessionByVisitor[e.visitorID] == id {
		delete(m.sessionByVisitor, e.visitorID)
	}
}

func (m *Manager) snapshot(e *entry) Snapshot {
	status := e.controller.Status()
	return Snapshot{
		SessionID:       e.controller.ID(),
		VisitorID:       e.visitorID,
		Scene:           e.scene,
		Status:          status,
		Display:         status.Display(),
		CreatedAt:       e.createdAt,
		LastActivityAt:  e.lastActivityAt,
		InactivityTTLMS: m.inactivityTimeout.Milliseconds(),
	}
}
