package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/pkg/worker"
)

// startPoolMetrics logs pool usage every interval on the general pool until
// the pools shut down.
func startPoolMetrics(pools *worker.Pools, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	return pools.SubmitDetached(pools.General.Name(), func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Debug("Worker pool usage", zap.Any("pools", pools.Metrics()))
			}
		}
	})
}

// Shutdown gracefully shuts down all application components. Pipelines
// still running get up to the pool shutdown timeout to finish.
func (a *Application) Shutdown() {
	if a.Pools != nil {
		logger.Info("Draining worker pools", zap.Any("pools", a.Pools.Metrics()))
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
