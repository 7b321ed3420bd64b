package app

import (
	"context"
	"fmt"
	"log"

	"github.com/ent0n29/avatar-tour/internal/backend"
	"github.com/ent0n29/avatar-tour/internal/config"
	"github.com/ent0n29/avatar-tour/internal/credential"
	"github.com/ent0n29/avatar-tour/internal/realtime"
)

type providerSetup struct {
	fetcher credential.Fetcher
	dialer  realtime.Dialer
	// tokenIssuer backs the session-token proxy; nil when there is no server-side key.
	tokenIssuer      credential.Fetcher
	resolvedProvider string
	detail           string
	// verify checks provider-side ids at boot; nil when there is nothing to check.
	verify func(ctx context.Context) error
}

func resolveAvatarProvider(cfg config.Config) (providerSetup, error) {
	wsDialer := func() realtime.Dialer {
		return realtime.NewWSDialer(realtime.WSConfig{URL: cfg.AnamRealtimeURL})
	}
	direct := func() *credential.DirectFetcher {
		return credential.NewDirectFetcher(cfg.AnamAPIKey, cfg.AnamAPIBaseURL, nil)
	}

	switch provider := cfg.ResolvedProvider(); provider {
	case config.ProviderAnam:
		if cfg.AnamAPIKey == "" {
			// Not fatal: every start() reports the missing key instead.
			log.Printf("avatar provider: anam selected but ANAM_API_KEY is not set")
		}
		f := direct()
		return providerSetup{
			fetcher:          f,
			dialer:           wsDialer(),
			tokenIssuer:      f,
			resolvedProvider: provider,
			detail:           "anam direct token",
		}, nil

	case config.ProviderBackend:
		mode := credential.ProxiedModeToken
		if cfg.BackendAvatarID != "" {
			mode = credential.ProxiedModeSession
		}
		proxied := credential.NewProxiedFetcher(backend.NewClient(cfg.BackendURL), credential.ProxiedConfig{
			Mode:      mode,
			AvatarID:  cfg.BackendAvatarID,
			ContextID: cfg.BackendContextID,
		})
		setup := providerSetup{
			fetcher:          proxied,
			dialer:           wsDialer(),
			resolvedProvider: provider,
			detail:           fmt.Sprintf("backend %s (%s mode)", cfg.BackendURL, mode),
		}
		if cfg.BackendURL == "" {
			log.Printf("avatar provider: backend selected but AVATAR_BACKEND_URL is not set")
		} else if mode == credential.ProxiedModeSession {
			setup.verify = proxied.Verify
		}
		if cfg.AnamAPIKey != "" {
			setup.tokenIssuer = direct()
		}
		return setup, nil

	case config.ProviderMock:
		return providerSetup{
			fetcher:          credential.MockFetcher{},
			dialer:           realtime.NewMockDialer(),
			tokenIssuer:      credential.MockFetcher{},
			resolvedProvider: provider,
			detail:           "in-process mock (no provider configured)",
		}, nil

	default:
		return providerSetup{}, fmt.Errorf("invalid AVATAR_PROVIDER: %q (expected auto|anam|backend|mock)", cfg.AvatarProvider)
	}
}
