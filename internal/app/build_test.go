package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/avatar-tour/internal/config"
	"github.com/ent0n29/avatar-tour/internal/credential"
	"github.com/ent0n29/avatar-tour/internal/realtime"
)

func TestResolveAvatarProvider(t *testing.T) {
	tests := []struct {
		name          string
		cfg           config.Config
		wantProvider  string
		wantFetcher   any
		wantTokenSide bool
	}{
		{
			name:          "auto without settings falls back to mock",
			cfg:           config.Config{AvatarProvider: config.ProviderAuto},
			wantProvider:  config.ProviderMock,
			wantFetcher:   credential.MockFetcher{},
			wantTokenSide: true,
		},
		{
			name:          "auto with key uses provider api",
			cfg:           config.Config{AvatarProvider: config.ProviderAuto, AnamAPIKey: "k"},
			wantProvider:  config.ProviderAnam,
			wantFetcher:   &credential.DirectFetcher{},
			wantTokenSide: true,
		},
		{
			name:          "backend without key has no token proxy",
			cfg:           config.Config{AvatarProvider: config.ProviderBackend, BackendURL: "http://backend"},
			wantProvider:  config.ProviderBackend,
			wantFetcher:   &credential.ProxiedFetcher{},
			wantTokenSide: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setup, err := resolveAvatarProvider(tc.cfg)
			if err != nil {
				t.Fatalf("resolveAvatarProvider() error = %v", err)
			}
			if setup.resolvedProvider != tc.wantProvider {
				t.Fatalf("provider = %q, want %q", setup.resolvedProvider, tc.wantProvider)
			}
			if got, want := fmt.Sprintf("%T", setup.fetcher), fmt.Sprintf("%T", tc.wantFetcher); got != want {
				t.Fatalf("fetcher = %s, want %s", got, want)
			}
			if (setup.tokenIssuer != nil) != tc.wantTokenSide {
				t.Fatalf("token issuer present = %v, want %v", setup.tokenIssuer != nil, tc.wantTokenSide)
			}
		})
	}
}

func TestResolveAvatarProviderUsesMockDialerOnlyForMock(t *testing.T) {
	setup, err := resolveAvatarProvider(config.Config{AvatarProvider: config.ProviderMock})
	if err != nil {
		t.Fatalf("resolveAvatarProvider() error = %v", err)
	}
	if _, ok := setup.dialer.(*realtime.MockDialer); !ok {
		t.Fatalf("dialer = %T, want *realtime.MockDialer", setup.dialer)
	}

	setup, err = resolveAvatarProvider(config.Config{AvatarProvider: config.ProviderAnam})
	if err != nil {
		t.Fatalf("resolveAvatarProvider() error = %v", err)
	}
	if _, ok := setup.dialer.(*realtime.WSDialer); !ok {
		t.Fatalf("dialer = %T, want *realtime.WSDialer", setup.dialer)
	}
}

func TestBuildServesScenesFromPersonaFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	raw := []byte(`personas:
  - name: Max
    avatar_id: avatar-max
    voice_id: voice-max
    llm_id: llm-max
scenes:
  - name: pricing
    label: Pricing tour
    persona: max
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{
		AvatarProvider:           config.ProviderMock,
		MetricsNamespace:         fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		PersonaFile:              path,
		SessionInactivityTimeout: time.Minute,
		StopGrace:                time.Second,
	}
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() { _ = res.Cleanup(context.Background()) }()

	if res.Provider.Provider != config.ProviderMock {
		t.Fatalf("provider = %q, want mock", res.Provider.Provider)
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/avatar/sessions", "application/json", strings.NewReader(`{"scene":"pricing","auto_start":true}`))
	if err != nil {
		t.Fatalf("create session error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if res.Sessions.Len() != 1 {
		t.Fatalf("registered sessions = %d, want 1", res.Sessions.Len())
	}
}

func TestBuildRejectsBrokenPersonaFile(t *testing.T) {
	cfg := config.Config{
		AvatarProvider: config.ProviderMock,
		PersonaFile:    filepath.Join(t.TempDir(), "missing.yaml"),
	}
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() error = nil, want persona catalog error")
	}
}

func TestBackendSessionModeVerifiesAtBoot(t *testing.T) {
	setup, err := resolveAvatarProvider(config.Config{
		AvatarProvider:  config.ProviderBackend,
		BackendURL:      "http://backend",
		BackendAvatarID: "a-1",
	})
	if err != nil {
		t.Fatalf("resolveAvatarProvider() error = %v", err)
	}
	if setup.verify == nil {
		t.Fatalf("expected a boot check in session mode")
	}

	setup, err = resolveAvatarProvider(config.Config{AvatarProvider: config.ProviderBackend, BackendURL: "http://backend"})
	if err != nil {
		t.Fatalf("resolveAvatarProvider() error = %v", err)
	}
	if setup.verify != nil {
		t.Fatalf("token mode has nothing to verify")
	}
}
