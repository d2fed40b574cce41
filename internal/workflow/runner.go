package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/pkg/worker"
)

// Runner executes pipelines on a worker pool. Different pipelines run
// concurrently; each one stays linear.
type Runner struct {
	pool   *worker.Pool
	events *domain.EventDispatcher
}

// NewRunner creates a Runner. events may be nil.
func NewRunner(pool *worker.Pool, events *domain.EventDispatcher) *Runner {
	return &Runner{pool: pool, events: events}
}

// Handle tracks one submitted run.
type Handle struct {
	ID string

	done   chan struct{}
	report *Report
	err    error
}

// Done is closed when the run finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (*Report, error) {
	select {
	case <-h.done:
		return h.report, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit queues p for execution and returns immediately. The pipeline's
// own dispatcher wins over the runner's.
func (r *Runner) Submit(ctx context.Context, p *Pipeline, state State) (*Handle, error) {
	h := &Handle{ID: uuid.NewString(), done: make(chan struct{})}

	events := p.Events
	if events == nil {
		events = r.events
	}

	// The pool must always run the task so done gets closed; cancellation
	// is observed by the pipeline itself and reported per step.
	runCtx := WithRunID(ctx, h.ID)
	err := r.pool.Submit(context.WithoutCancel(runCtx), func(context.Context) {
		defer close(h.done)
		h.report, h.err = p.execute(runCtx, state, events)
	})
	if err != nil {
		logger.Warn("Pipeline submission rejected",
			zap.String("pipeline", p.Name),
			zap.String("run_id", h.ID),
			zap.String("pool", r.pool.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("submit pipeline %s: %w", p.Name, err)
	}

	logger.Debug("Pipeline submitted",
		zap.String("pipeline", p.Name),
		zap.String("run_id", h.ID),
	)
	return h, nil
}

// Run submits p and waits for it.
func (r *Runner) Run(ctx context.Context, p *Pipeline, state State) (*Report, error) {
	h, err := r.Submit(ctx, p, state)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}
