package keepalive

import (
	"context"
	"log"
	"sync"
	"time"
)

const DefaultInterval = 5 * time.Minute

// Pinger tells the provider a session is still in use.
type Pinger interface {
	KeepAlive(ctx context.Context, sessionID string) error
}

// Pump pings on a fixed interval until stopped. A failed ping is logged and the
// next tick tries again.
type Pump struct {
	pinger   Pinger
	interval time.Duration
	onResult func(err error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPump(pinger Pinger, interval time.Duration) *Pump {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pump{pinger: pinger, interval: interval}
}

// OnResult registers a hook called after every ping with its error (nil on success).
func (p *Pump) OnResult(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResult = fn
}

// Start begins pinging sessionID. Starting a running pump restarts it.
func (p *Pump) Start(ctx context.Context, sessionID string) {
	p.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	hook := p.onResult
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(runCtx, p.interval)
				err := p.pinger.KeepAlive(pingCtx, sessionID)
				pingCancel()
				if err != nil && runCtx.Err() == nil {
					log.Printf("keepalive: session %s ping failed: %v", sessionID, err)
				}
				if hook != nil && runCtx.Err() == nil {
					hook(err)
				}
			}
		}
	}()
}

// Stop ends the pump and waits for an in-flight ping to return. Idempotent.
func (p *Pump) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Pump) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
