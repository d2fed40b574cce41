// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"dbaas.io/workflow/internal/api/handlers"
	"dbaas.io/workflow/internal/config"
	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/infrastructure"
	"dbaas.io/workflow/internal/pkg/worker"
	"dbaas.io/workflow/internal/provider"
	"dbaas.io/workflow/internal/store"
	"dbaas.io/workflow/internal/workflow"
)

// Application holds composed application dependencies.
type Application struct {
	Config    *config.Config
	Router    *gin.Engine
	DB        *infrastructure.DatabaseClients
	Pools     *worker.Pools
	Providers *provider.Factory
	Events    *domain.EventDispatcher
	Runner    *workflow.Runner
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	credentials, err := NewCredentialSource(cfg.Provider, db.Store)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init credentials: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		PipelinePoolSize: cfg.Worker.PipelinePoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	if err := startPoolMetrics(pools, cfg.Worker.MetricsInterval); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("start pool metrics: %w", err)
	}

	events := domain.NewEventDispatcher()
	RegisterEventLogging(events)

	server := handlers.NewServer(handlers.ServerDeps{
		Restores: db.Store,
		DB:       db,
	})

	return &Application{
		Config:    cfg,
		Router:    newRouter(cfg, server),
		DB:        db,
		Pools:     pools,
		Providers: provider.NewFactory(credentials, provider.NewHTTPClient(cfg.Provider.HTTPTimeout)),
		Events:    events,
		Runner:    workflow.NewRunner(pools.Pipeline, events),
	}, nil
}

// NewCredentialSource picks the provider credential backend from config.
func NewCredentialSource(cfg config.ProviderConfig, reader store.CredentialReader) (provider.CredentialSource, error) {
	switch cfg.CredentialSource {
	case config.CredentialSourceFile:
		src, err := provider.LoadCredentialsFile(cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.CredentialSourceDatabase:
		if reader == nil {
			return nil, fmt.Errorf("credential source %q needs a store", cfg.CredentialSource)
		}
		return store.NewCredentialSource(reader), nil
	default:
		return nil, fmt.Errorf("unknown credential source %q", cfg.CredentialSource)
	}
}
