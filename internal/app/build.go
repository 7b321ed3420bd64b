package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ent0n29/avatar-tour/internal/avatar"
	"github.com/ent0n29/avatar-tour/internal/config"
	"github.com/ent0n29/avatar-tour/internal/httpapi"
	"github.com/ent0n29/avatar-tour/internal/observability"
	"github.com/ent0n29/avatar-tour/internal/persona"
	"github.com/ent0n29/avatar-tour/internal/session"
)

type ProviderInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Catalog  *persona.Catalog
	Metrics  *observability.Metrics
	Provider ProviderInfo

	// Cleanup stops every live avatar session; call it on shutdown.
	Cleanup func(ctx context.Context) error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	catalog, err := persona.LoadCatalog(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("persona catalog init failed: %w", err)
	}

	setup, err := resolveAvatarProvider(cfg)
	if err != nil {
		return nil, err
	}

	if setup.verify != nil {
		verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		// A bad avatar or context id is reported on every start() anyway.
		if err := setup.verify(verifyCtx); err != nil {
			log.Printf("avatar provider: backend check failed: %v", err)
		}
		cancel()
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	builder := &avatar.Builder{
		Catalog: catalog,
		Defaults: avatar.Config{
			SinkID:              cfg.VideoSinkID,
			IdleFollowUpMessage: cfg.IdleFollowUpMessage,
			IdleDelay:           time.Duration(cfg.IdleSeconds * float64(time.Second)),
			DemoConfirmation:    cfg.DemoConfirmation,
			DemoNavigateDelay:   cfg.DemoNavigateDelay,
			StopGrace:           cfg.StopGrace,
			ConnectTimeout:      cfg.ConnectTimeout,
			KeepAliveInterval:   cfg.KeepAliveInterval,
			RedactErrors:        cfg.RedactErrors,
		},
		Deps: avatar.Deps{
			Fetcher: setup.fetcher,
			Dialer:  setup.dialer,
			Metrics: metrics,
		},
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ session.Snapshot) {
		metrics.ObserveSessionEvent("expired", sessions.ActiveCount())
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:    sessions,
		Builder:     builder,
		Catalog:     catalog,
		TokenIssuer: setup.tokenIssuer,
		Metrics:     metrics,
	})

	cleanup := func(ctx context.Context) error {
		sessions.StopAll(ctx)
		return ctx.Err()
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Catalog:  catalog,
		Metrics:  metrics,
		Provider: ProviderInfo{
			Provider: setup.resolvedProvider,
			Detail:   setup.detail,
		},
		Cleanup: cleanup,
	}, nil
}
