// Package worker provides goroutine pool management.
//
// Naked goroutines are forbidden outside main. Concurrency goes through a
// Pool with context propagation.
//
// Import Path: dbaas.io/workflow/internal/pkg/worker
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"dbaas.io/workflow/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
//
// Pipeline runs one goroutine per running operation pipeline. Pipelines are
// long (minutes) and block on provider HTTP calls, so they get their own pool
// and never starve General.
type Pools struct {
	General  *Pool
	Pipeline *Pool

	// serviceCtx is the service lifecycle context for detached tasks
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	GeneralPoolSize  int
	PipelinePoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize:  50,
		PipelinePoolSize: 20,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	pipelineAnts, err := ants.NewPool(cfg.PipelinePoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(time.Minute),
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: "general"},
		Pipeline:      &Pool{pool: pipelineAnts, name: "pipeline"},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Name returns the pool name used in logs.
func (p *Pool) Name() string { return p.name }

// Submit submits a context-aware task.
// If the context is already cancelled, returns ctx.Err() without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		// May have been cancelled while queued.
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// SubmitDetached submits a background task bound to the service lifecycle
// context instead of a request context. It still stops on graceful shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	pool := p.General
	if poolName == p.Pipeline.name {
		pool = p.Pipeline
	}
	return pool.Submit(p.serviceCtx, task)
}

// Shutdown cancels the service context, then waits for running tasks (max 30s).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("General pool shutdown timeout", zap.Error(err))
	}
	if err := p.Pipeline.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Pipeline pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"general": map[string]int{
			"running": p.General.pool.Running(),
			"free":    p.General.pool.Free(),
			"cap":     p.General.pool.Cap(),
		},
		"pipeline": map[string]int{
			"running": p.Pipeline.pool.Running(),
			"free":    p.Pipeline.pool.Free(),
			"cap":     p.Pipeline.pool.Cap(),
		},
	}
}
