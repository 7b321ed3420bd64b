// Package avatar drives one avatar session through credential issue, realtime
// attach, greeting, idle follow-up, demo hand-off and teardown.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/avatar-tour/internal/backend"
	"github.com/ent0n29/avatar-tour/internal/credential"
	"github.com/ent0n29/avatar-tour/internal/idle"
	"github.com/ent0n29/avatar-tour/internal/intent"
	"github.com/ent0n29/avatar-tour/internal/keepalive"
	"github.com/ent0n29/avatar-tour/internal/observability"
	"github.com/ent0n29/avatar-tour/internal/persona"
	"github.com/ent0n29/avatar-tour/internal/policy"
	"github.com/ent0n29/avatar-tour/internal/realtime"
	"github.com/ent0n29/avatar-tour/internal/reliability"
)

const (
	DefaultSinkID            = "anam-avatar-video"
	DefaultDemoConfirmation  = "OK sure, let's see our demo!"
	DefaultDemoNavigateDelay = 3500 * time.Millisecond
	DefaultStopGrace         = 2 * time.Second
	DefaultConnectTimeout    = 20 * time.Second
)

var ErrMissingDependency = errors.New("avatar: fetcher and dialer are required")

type Config struct {
	Persona persona.Config
	// Label is shown while connected.
	Label  string
	SinkID string

	// OpeningLine overrides Persona.OpeningLine when set.
	OpeningLine         string
	IdleFollowUpMessage string
	IdleDelay           time.Duration

	DemoConfirmation  string
	DemoNavigateDelay time.Duration

	StopGrace         time.Duration
	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration

	RedactErrors bool
	// OnNavigateToDemo runs at most once per session, outside any lock.
	OnNavigateToDemo func()
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.SinkID) == "" {
		c.SinkID = DefaultSinkID
	}
	if strings.TrimSpace(c.OpeningLine) == "" {
		c.OpeningLine = c.Persona.OpeningLine
	}
	if strings.TrimSpace(c.DemoConfirmation) == "" {
		c.DemoConfirmation = DefaultDemoConfirmation
	}
	if c.DemoNavigateDelay <= 0 {
		c.DemoNavigateDelay = DefaultDemoNavigateDelay
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = keepalive.DefaultInterval
	}
	return c
}

type Deps struct {
	Fetcher credential.Fetcher
	Dialer  realtime.Dialer
	Metrics *observability.Metrics
}

type NoticeKind string

const (
	NoticeStatus         NoticeKind = "status"
	NoticeNavigateToDemo NoticeKind = "navigate_to_demo"
)

// Notice is delivered to subscribers on every transition and on demo hand-off.
type Notice struct {
	Kind   NoticeKind
	Status Status
}

// attempt holds everything owned by one start() call. Work belonging to an
// attempt that is no longer current is discarded.
type attempt struct {
	ctx      context.Context
	cancel   context.CancelFunc
	detector *intent.Detector

	cred       credential.Credential
	client     realtime.Client
	pump       *keepalive.Pump
	readyTimer *time.Timer
	navTimer   *time.Timer
	navigated  bool
	failing    bool
}

type Controller struct {
	id      string
	cfg     Config
	fetcher credential.Fetcher
	dialer  realtime.Dialer
	keeper  credential.SessionKeeper
	metrics *observability.Metrics
	idle    *idle.Scheduler

	mu          sync.Mutex
	status      Status
	attempt     *attempt
	subscribers map[int]chan Notice
	nextSubID   int
}

func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Fetcher == nil || deps.Dialer == nil {
		return nil, ErrMissingDependency
	}
	if err := cfg.Persona.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	keeper, _ := deps.Fetcher.(credential.SessionKeeper)
	return &Controller{
		id:          uuid.NewString(),
		cfg:         cfg,
		fetcher:     deps.Fetcher,
		dialer:      deps.Dialer,
		keeper:      keeper,
		metrics:     deps.Metrics,
		idle:        idle.NewScheduler(),
		status:      Status{State: StateIdle, Label: cfg.Label, UpdatedAt: time.Now().UTC()},
		subscribers: make(map[int]chan Notice),
	}, nil
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe returns a channel of notices and a func that closes it. A slow
// subscriber misses notices rather than blocking the session; Status() always
// has the latest state.
func (c *Controller) Subscribe(buffer int) (<-chan Notice, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notice, buffer)
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			if _, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(ch)
			}
			c.mu.Unlock()
		})
	}
}

// Start begins a new attempt and returns immediately. It is a no-op while an
// attempt is in flight or connected.
func (c *Controller) Start() bool {
	c.mu.Lock()
	if c.attempt != nil || !c.status.State.canStart() {
		state := c.status.State
		c.mu.Unlock()
		log.Printf("avatar: session %s start ignored in state %s", c.id, state)
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	att := &attempt{ctx: ctx, cancel: cancel, detector: intent.NewDetector()}
	c.attempt = att
	c.setStatusLocked(Status{State: StateRequestingCredential})
	c.mu.Unlock()

	go c.run(att)
	return true
}

// Stop tears the session down within the stop grace and leaves it stopped.
// Calling it again, or before any start, is a no-op.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	att := c.attempt
	c.attempt = nil
	if att == nil {
		if c.status.State != StateStopped {
			c.setStatusLocked(Status{State: StateStopped})
		}
		c.mu.Unlock()
		return
	}
	att.cancel()
	c.idle.Cancel()
	c.mu.Unlock()

	started := time.Now()
	c.teardown(ctx, att, backend.StopReasonUserEnded)
	c.metrics.ObserveTeardown(time.Since(started))

	c.mu.Lock()
	if c.attempt == nil {
		c.setStatusLocked(Status{State: StateStopped})
	}
	c.mu.Unlock()
}

func (c *Controller) run(att *attempt) {
	cred, err := c.fetcher.Fetch(att.ctx, c.cfg.Persona)
	if att.ctx.Err() != nil {
		c.metrics.ObserveCredentialFetch("cancelled")
		if err == nil && cred.SessionID != "" {
			// The backend opened a session nobody will use.
			c.endBackendSession(context.Background(), cred.SessionID, backend.StopReasonUserEnded)
		}
		return
	}
	if err != nil {
		c.metrics.ObserveCredentialFetch("error")
		c.fail(att, err)
		return
	}
	c.metrics.ObserveCredentialFetch("ok")

	c.mu.Lock()
	if c.attempt != att {
		c.mu.Unlock()
		return
	}
	att.cred = cred
	c.setStatusLocked(Status{State: StateConnecting, SessionID: cred.SessionID})
	c.mu.Unlock()

	client, err := c.dialer.Dial(att.ctx, cred)
	if err != nil {
		if att.ctx.Err() == nil {
			c.fail(att, &ConnectionError{Reason: "dial realtime client", Err: err})
		}
		return
	}

	c.mu.Lock()
	if c.attempt != att {
		c.mu.Unlock()
		c.closeClient(context.Background(), client)
		return
	}
	att.client = client
	if cred.SessionID != "" && c.keeper != nil {
		att.pump = keepalive.NewPump(c.keeper, c.cfg.KeepAliveInterval)
		att.pump.OnResult(c.metrics.ObserveKeepAlive)
		att.pump.Start(att.ctx, cred.SessionID)
	}
	c.mu.Unlock()

	// Listen before attaching so the ready event cannot be missed.
	go c.consume(att, client)

	if err := client.Attach(att.ctx, c.cfg.SinkID); err != nil {
		if att.ctx.Err() == nil {
			c.fail(att, &ConnectionError{Reason: "attach avatar stream", Err: err})
		}
		return
	}

	c.mu.Lock()
	if c.attempt == att && c.status.State == StateConnecting {
		att.readyTimer = time.AfterFunc(c.cfg.ConnectTimeout, func() {
			c.mu.Lock()
			waiting := c.attempt == att && c.status.State == StateConnecting
			c.mu.Unlock()
			if waiting {
				c.fail(att, &ConnectionError{Reason: fmt.Sprintf("avatar not ready after %s", c.cfg.ConnectTimeout)})
			}
		})
	}
	c.mu.Unlock()
}

func (c *Controller) consume(att *attempt, client realtime.Client) {
	events := client.Events()
	for {
		select {
		case <-att.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.connectionLost(att, "", "realtime connection closed")
				return
			}
			switch ev.Type {
			case realtime.EventSessionReady:
				c.ready(att, client)
			case realtime.EventMessageHistoryUpdated:
				c.history(att, client, ev.Messages)
			case realtime.EventConnectionClosed:
				c.connectionLost(att, ev.Reason, ev.Detail)
				return
			}
		}
	}
}

func (c *Controller) ready(att *attempt, client realtime.Client) {
	c.mu.Lock()
	if c.attempt != att || c.status.State != StateConnecting {
		c.mu.Unlock()
		return
	}
	if att.readyTimer != nil {
		att.readyTimer.Stop()
		att.readyTimer = nil
	}
	c.setStatusLocked(Status{State: StateConnected, SessionID: att.cred.SessionID})
	c.mu.Unlock()

	go c.greet(att, client)
}

func (c *Controller) greet(att *attempt, client realtime.Client) {
	if line := c.cfg.OpeningLine; line != "" {
		c.speak(att, client, "opening", line)
	}
	if c.cfg.IdleFollowUpMessage == "" || c.cfg.IdleDelay <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != att || att.detector.Latched() || att.ctx.Err() != nil {
		return
	}
	c.idle.Arm(c.cfg.IdleDelay, func() { c.followUp(att, client) })
}

func (c *Controller) followUp(att *attempt, client realtime.Client) {
	c.mu.Lock()
	current := c.attempt == att && !att.detector.Latched()
	c.mu.Unlock()
	if !current {
		return
	}
	c.speak(att, client, "idle_follow_up", c.cfg.IdleFollowUpMessage)
}

func (c *Controller) history(att *attempt, client realtime.Client, messages []realtime.Message) {
	if len(messages) == 0 {
		return
	}
	c.mu.Lock()
	if c.attempt != att {
		c.mu.Unlock()
		return
	}
	if messages[len(messages)-1].Role == realtime.RoleUser {
		// The visitor spoke; the follow-up prompt is no longer needed.
		c.idle.Cancel()
	}
	latched := att.detector.Observe(messages)
	c.mu.Unlock()

	if latched {
		log.Printf("avatar: session %s demo intent detected", c.id)
		go c.confirmDemo(att, client)
	}
}

func (c *Controller) confirmDemo(att *attempt, client realtime.Client) {
	if !c.speak(att, client, "demo_confirmation", c.cfg.DemoConfirmation) {
		c.navigate(att)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != att {
		return
	}
	att.navTimer = time.AfterFunc(c.cfg.DemoNavigateDelay, func() { c.navigate(att) })
}

func (c *Controller) navigate(att *attempt) {
	c.mu.Lock()
	if c.attempt != att || att.navigated {
		c.mu.Unlock()
		return
	}
	att.navigated = true
	att.navTimer = nil
	c.status.DemoRequested = true
	c.status.UpdatedAt = time.Now().UTC()
	n := Notice{Kind: NoticeNavigateToDemo, Status: c.status}
	for _, ch := range c.subscribers {
		deliverLocked(ch, n)
	}
	c.mu.Unlock()

	c.metrics.ObserveDemoNavigation()
	log.Printf("avatar: session %s navigating to demo", c.id)
	if c.cfg.OnNavigateToDemo != nil {
		c.cfg.OnNavigateToDemo()
	}
}

// speak reports whether the line was accepted. Failures never end the session.
func (c *Controller) speak(att *attempt, client realtime.Client, kind, line string) bool {
	err := client.Talk(att.ctx, line)
	if err == nil {
		return true
	}
	if att.ctx.Err() != nil {
		return false
	}
	c.metrics.ObserveSpeakError(kind)
	log.Printf("avatar: session %s %v", c.id, &SpeakError{Line: kind, Err: err})
	return false
}

func (c *Controller) connectionLost(att *attempt, reason, detail string) {
	if att.ctx.Err() != nil {
		return
	}
	msg := strings.TrimSpace(detail)
	if msg == "" {
		msg = "realtime connection closed"
	}
	var err error
	if reason != "" {
		err = errors.New(reason)
	}
	if reliability.IsConcurrencyLimit(0, reason) {
		msg = "another avatar session is still open for this account"
	}
	c.fail(att, &ConnectionError{
		Reason:    msg,
		Err:       err,
		Retryable: reliability.IsRetryableCloseReason(reason) || reliability.IsConcurrencyLimit(0, reason),
	})
}

// fail releases the attempt's resources and then enters the error state,
// unless a stop or newer start took over in the meantime.
func (c *Controller) fail(att *attempt, cause error) {
	c.mu.Lock()
	if c.attempt != att || att.failing {
		c.mu.Unlock()
		return
	}
	att.failing = true
	att.cancel()
	c.idle.Cancel()
	c.mu.Unlock()

	log.Printf("avatar: session %s failed: %v", c.id, cause)
	c.teardown(context.Background(), att, backend.StopReasonUnknown)

	kind, retryable := classify(cause)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != att {
		return
	}
	c.attempt = nil
	c.setStatusLocked(Status{
		State:     StateError,
		Error:     policy.DisplayMessage(cause.Error(), c.cfg.RedactErrors),
		ErrorKind: kind,
		Retryable: retryable,
	})
}

// teardown is bounded by the stop grace, or by ctx's deadline when that is
// sooner. Work still running past it is abandoned.
func (c *Controller) teardown(ctx context.Context, att *attempt, reason string) {
	c.mu.Lock()
	client, pump, sessionID := att.client, att.pump, att.cred.SessionID
	for _, t := range []*time.Timer{att.readyTimer, att.navTimer} {
		if t != nil {
			t.Stop()
		}
	}
	att.readyTimer, att.navTimer = nil, nil
	c.mu.Unlock()

	grace := c.cfg.StopGrace
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < grace {
		grace = max(time.Until(deadline), 0)
	}
	graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if pump != nil {
			pump.Stop()
		}
		if client != nil {
			c.closeClient(graceCtx, client)
		}
		if sessionID != "" {
			c.endBackendSession(graceCtx, sessionID, reason)
		}
	}()

	select {
	case <-done:
	case <-graceCtx.Done():
		log.Printf("avatar: session %s teardown exceeded %s; continuing", c.id, grace)
	}
}

func (c *Controller) closeClient(ctx context.Context, client realtime.Client) {
	if err := client.Close(ctx); err != nil {
		log.Printf("avatar: session %s %v", c.id, &TeardownError{Step: "close realtime client", Err: err})
	}
}

func (c *Controller) endBackendSession(ctx context.Context, sessionID, reason string) {
	if c.keeper == nil {
		return
	}
	if err := c.keeper.EndSession(ctx, sessionID, reason); err != nil {
		log.Printf("avatar: session %s %v", c.id, &TeardownError{Step: "end backend session " + sessionID, Err: err})
	}
}

func (c *Controller) setStatusLocked(next Status) {
	prev := c.status.State
	next.Label = c.cfg.Label
	next.DemoRequested = c.attempt != nil && c.attempt.navigated
	next.UpdatedAt = time.Now().UTC()
	c.status = next
	if prev != next.State {
		c.metrics.ObserveTransition(string(next.State))
		log.Printf("avatar: session %s %s -> %s", c.id, prev, next.State)
	}
	c.broadcastLocked(Notice{Kind: NoticeStatus, Status: next})
}

func (c *Controller) broadcastLocked(n Notice) {
	for _, ch := range c.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// deliverLocked makes room by dropping the oldest queued notice when ch is
// full. Only the sender side holds c.mu, so the retry cannot block.
func deliverLocked(ch chan Notice, n Notice) {
	select {
	case ch <- n:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- n:
	default:
	}
}
