package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avatar-tour/internal/protocol"
)

type options struct {
	baseURL      string
	visitorID    string
	scene        string
	rounds       int
	stopGrace    time.Duration
	roundTimeout time.Duration
	verbose      bool
}

type createSessionRequest struct {
	VisitorID string `json:"visitor_id,omitempty"`
	Scene     string `json:"scene,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type    string `json:"type"`
	State   string `json:"state,omitempty"`
	Display string `json:"display,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type roundResult struct {
	connect time.Duration
	stop    time.Duration
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tourprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "tourprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var stopGraceMS int
	var roundTimeoutMS int

	fs := flag.NewFlagSet("tourprobe", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "avatar tour service base URL")
	fs.StringVar(&cfg.visitorID, "visitor-id", "tourprobe", "visitor_id for the probe sessions")
	fs.StringVar(&cfg.scene, "scene", "intro", "scene to mount each round")
	fs.IntVar(&cfg.rounds, "rounds", 5, "number of start/stop rounds")
	fs.IntVar(&stopGraceMS, "stop-grace-ms", 1500, "grace passed with each stop in milliseconds")
	fs.IntVar(&roundTimeoutMS, "round-timeout-ms", 20000, "timeout waiting for connected per round in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print probe progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.rounds <= 0 {
		return options{}, fmt.Errorf("rounds must be > 0")
	}
	if stopGraceMS < 0 {
		stopGraceMS = 0
	}
	if roundTimeoutMS < 1000 {
		roundTimeoutMS = 1000
	}
	cfg.stopGrace = time.Duration(stopGraceMS) * time.Millisecond
	cfg.roundTimeout = time.Duration(roundTimeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.rounds)*(cfg.roundTimeout+cfg.stopGrace+5*time.Second))
	defer cancel()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	results := make([]roundResult, 0, cfg.rounds)
	for i := 0; i < cfg.rounds; i++ {
		res, err := runRound(ctx, httpClient, cfg)
		if err != nil {
			return fmt.Errorf("round %d: %w", i+1, err)
		}
		if cfg.verbose {
			fmt.Printf("tourprobe: round %d/%d connect=%s stop=%s\n", i+1, cfg.rounds, res.connect.Round(time.Millisecond), res.stop.Round(time.Millisecond))
		}
		results = append(results, res)
	}

	connect := make([]time.Duration, 0, len(results))
	stop := make([]time.Duration, 0, len(results))
	for _, r := range results {
		connect = append(connect, r.connect)
		stop = append(stop, r.stop)
	}
	fmt.Printf("tourprobe: connect p50=%s p95=%s\n", percentile(connect, 0.50), percentile(connect, 0.95))
	fmt.Printf("tourprobe: stop    p50=%s p95=%s\n", percentile(stop, 0.50), percentile(stop, 0.95))
	return nil
}

func runRound(ctx context.Context, client *http.Client, cfg options) (roundResult, error) {
	sessionID, err := createSession(ctx, client, cfg)
	if err != nil {
		return roundResult{}, fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = removeSession(context.Background(), client, cfg.baseURL, sessionID)
	}()

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return roundResult{}, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return roundResult{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	events := make(chan wsEnvelope, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh, cfg.verbose)

	started := time.Now()
	if err := sendControl(conn, protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: sessionID, Action: protocol.ActionStart}); err != nil {
		return roundResult{}, fmt.Errorf("send start: %w", err)
	}
	if err := awaitState(events, readErrCh, "connected", cfg.roundTimeout); err != nil {
		return roundResult{}, fmt.Errorf("await connected: %w", err)
	}
	connectLatency := time.Since(started)

	stopStarted := time.Now()
	if err := sendControl(conn, protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    protocol.ActionStop,
		GraceMS:   cfg.stopGrace.Milliseconds(),
	}); err != nil {
		return roundResult{}, fmt.Errorf("send stop: %w", err)
	}
	if err := awaitState(events, readErrCh, "stopped", cfg.stopGrace+5*time.Second); err != nil {
		return roundResult{}, fmt.Errorf("await stopped: %w", err)
	}
	return roundResult{connect: connectLatency, stop: time.Since(stopStarted)}, nil
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(createSessionRequest{VisitorID: cfg.visitorID, Scene: cfg.scene})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/avatar/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func removeSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/v1/avatar/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/avatar/sessions/" + sessionID + "/events"
	return u.String(), nil
}

func sendControl(conn *websocket.Conn, msg protocol.ClientControl) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == string(protocol.TypeErrorEvent) && verbose {
			fmt.Fprintf(os.Stderr, "tourprobe: error_event code=%s detail=%s\n", env.Code, env.Detail)
		}
		select {
		case events <- env:
		default:
		}
	}
}

func awaitState(events <-chan wsEnvelope, readErrCh <-chan error, want string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-events:
			if env.Type != string(protocol.TypeStatusChanged) {
				continue
			}
			if env.State == want {
				return nil
			}
			if env.State == "error" {
				return fmt.Errorf("session failed: %s", env.Error)
			}
		case err := <-readErrCh:
			return err
		case <-timer.C:
			return fmt.Errorf("timed out after %s", timeout)
		}
	}
}

// percentile uses nearest-rank on a sorted copy.
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*p+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx].Round(time.Millisecond)
}
