package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
)

// Outcome is what happened to one step during a run.
type Outcome string

const (
	OutcomePending        Outcome = "PENDING" // never reached
	OutcomeDone           Outcome = "DONE"
	OutcomeSkipped        Outcome = "SKIPPED"
	OutcomeFailed         Outcome = "FAILED"
	OutcomeRolledBack     Outcome = "ROLLED_BACK"
	OutcomeRollbackFailed Outcome = "ROLLBACK_FAILED"
)

// StepReport records one entry of a run.
type StepReport struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarises one pipeline run.
type Report struct {
	RunID      string       `json:"run_id"`
	Pipeline   string       `json:"pipeline"`
	Steps      []StepReport `json:"steps"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Outcomes lists step outcomes in pipeline order.
func (r *Report) Outcomes() []Outcome {
	out := make([]Outcome, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Outcome
	}
	return out
}

// Succeeded reports whether no step failed.
func (r *Report) Succeeded() bool {
	for _, s := range r.Steps {
		if s.Outcome != OutcomeDone && s.Outcome != OutcomeSkipped {
			return false
		}
	}
	return true
}

// UndoError is a rollback failure of one step.
type UndoError struct {
	Index int
	Step  string
	Err   error
}

func (e UndoError) Error() string {
	return fmt.Sprintf("undo %s (#%d): %v", e.Step, e.Index, e.Err)
}

// PipelineError is returned by Run when a step fails.
type PipelineError struct {
	RunID    string
	Pipeline string
	Step     string
	Index    int
	// Code is CodeStepNotImplemented for programming faults and
	// CodeStepFailed otherwise.
	Code string
	Err  error

	UndoErrors []UndoError
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline %s: step %s (#%d) failed: %v", e.Pipeline, e.Step, e.Index, e.Err)
	if n := len(e.UndoErrors); n > 0 {
		fmt.Fprintf(&b, " (rollback incomplete: %d undo failures)", n)
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error { return e.Err }

// RollbackComplete reports whether every completed step was undone.
func (e *PipelineError) RollbackComplete() bool { return len(e.UndoErrors) == 0 }

// Retryable is false for programming faults.
func (e *PipelineError) Retryable() bool { return e.Code != apperrors.CodeStepNotImplemented }

// Pipeline is an ordered list of steps for one operation.
type Pipeline struct {
	Name    string
	Entries []Entry

	// Events receives lifecycle events. Optional.
	Events *domain.EventDispatcher
}

// NewPipeline builds a pipeline.
func NewPipeline(name string, entries ...Entry) *Pipeline {
	return &Pipeline{Name: name, Entries: entries}
}

type runIDKey struct{}

// WithRunID attaches a run ID to ctx. Run generates one when absent.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run ID carried by ctx.
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Run executes the pipeline. Each step starts only after the previous one
// returned. On failure the completed steps are undone newest first; undo
// failures are collected and do not stop the rollback.
//
// The returned Report is always non-nil. The error, when set, is a
// *PipelineError.
func (p *Pipeline) Run(ctx context.Context, state State) (*Report, error) {
	return p.execute(ctx, state, p.Events)
}

func (p *Pipeline) execute(ctx context.Context, state State, events *domain.EventDispatcher) (*Report, error) {
	if state == nil {
		state = State{}
	}
	runID := RunIDFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = WithRunID(ctx, runID)
	}

	r := &run{
		pipeline: p,
		state:    state,
		events:   events,
		log:      logger.With(zap.String("pipeline", p.Name), zap.String("run_id", runID)),
		report: &Report{
			RunID:     runID,
			Pipeline:  p.Name,
			Steps:     make([]StepReport, len(p.Entries)),
			StartedAt: time.Now().UTC(),
		},
	}
	for i, e := range p.Entries {
		r.report.Steps[i] = StepReport{Index: i, Name: e.Name(), Outcome: OutcomePending}
	}

	r.log.Info("Pipeline started", zap.Int("steps", len(p.Entries)))
	r.emit(ctx, domain.EventPipelineStarted, -1, nil)

	err := r.forward(ctx)
	r.report.FinishedAt = time.Now().UTC()
	if err != nil {
		r.log.Error("Pipeline failed", zap.Error(err))
		r.emit(ctx, domain.EventPipelineFailed, err.Index, err)
		return r.report, err
	}

	r.log.Info("Pipeline completed", zap.Duration("duration", r.report.FinishedAt.Sub(r.report.StartedAt)))
	r.emit(ctx, domain.EventPipelineCompleted, -1, nil)
	return r.report, nil
}

// run is the mutable state of one execution.
type run struct {
	pipeline *Pipeline
	state    State
	events   *domain.EventDispatcher
	log      *zap.Logger
	report   *Report
	done     []int // indexes whose Do succeeded, in order
}

func (r *run) forward(ctx context.Context) *PipelineError {
	for i, entry := range r.pipeline.Entries {
		step := &r.report.Steps[i]
		log := r.log.With(zap.String("step", step.Name), zap.Int("index", i))

		if err := ctx.Err(); err != nil {
			return r.fail(ctx, i, fmt.Errorf("not started: %w", err))
		}

		started := time.Now()
		ok, err := entry.runnable(ctx)
		if err != nil {
			step.Duration = time.Since(started)
			return r.fail(ctx, i, fmt.Errorf("evaluate gate: %w", err))
		}
		if !ok {
			step.Outcome = OutcomeSkipped
			step.Duration = time.Since(started)
			log.Info("Step skipped")
			r.emit(ctx, domain.EventStepSkipped, i, nil)
			continue
		}

		log.Debug("Step started")
		err = entry.do(ctx, r.state)
		step.Duration = time.Since(started)
		if err != nil {
			return r.fail(ctx, i, err)
		}

		step.Outcome = OutcomeDone
		r.done = append(r.done, i)
		log.Info("Step completed", zap.Duration("duration", step.Duration))
		r.emit(ctx, domain.EventStepCompleted, i, nil)
	}
	return nil
}

// fail marks step i failed and rolls back everything done before it.
func (r *run) fail(ctx context.Context, i int, cause error) *PipelineError {
	step := &r.report.Steps[i]
	step.Outcome = OutcomeFailed
	step.Error = cause.Error()

	code := apperrors.CodeStepFailed
	if errors.Is(cause, ErrStepNotImplemented) {
		code = apperrors.CodeStepNotImplemented
	}
	perr := &PipelineError{
		RunID:    r.report.RunID,
		Pipeline: r.pipeline.Name,
		Step:     step.Name,
		Index:    i,
		Code:     code,
		Err:      cause,
	}

	r.log.Warn("Step failed, rolling back",
		zap.String("step", step.Name),
		zap.Int("index", i),
		zap.String("code", code),
		zap.Int("to_undo", len(r.done)),
		zap.Error(cause),
	)
	r.emit(ctx, domain.EventStepFailed, i, cause)

	perr.UndoErrors = r.rollback(ctx)
	if len(perr.UndoErrors) == 0 {
		r.emit(ctx, domain.EventRollbackCompleted, i, nil)
	} else {
		r.emit(ctx, domain.EventRollbackIncomplete, i, perr)
	}
	return perr
}

// rollback undoes completed steps newest first. It keeps going past
// failures so one broken undo cannot strand the rest.
func (r *run) rollback(ctx context.Context) []UndoError {
	// Undo must still reach providers after the caller gave up.
	ctx = context.WithoutCancel(ctx)

	var failures []UndoError
	for k := len(r.done) - 1; k >= 0; k-- {
		i := r.done[k]
		entry := r.pipeline.Entries[i]
		step := &r.report.Steps[i]

		if err := entry.undo(ctx, r.state); err != nil {
			step.Outcome = OutcomeRollbackFailed
			step.Error = err.Error()
			failures = append(failures, UndoError{Index: i, Step: step.Name, Err: err})
			r.log.Error("Undo failed",
				zap.String("step", step.Name),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		step.Outcome = OutcomeRolledBack
		r.log.Info("Step undone", zap.String("step", step.Name), zap.Int("index", i))
	}
	return failures
}

func (r *run) emit(ctx context.Context, t domain.EventType, index int, cause error) {
	if r.events == nil {
		return
	}
	ev := &domain.Event{
		EventID:   uuid.NewString(),
		EventType: t,
		RunID:     r.report.RunID,
		Pipeline:  r.report.Pipeline,
		Index:     index,
		CreatedAt: time.Now().UTC(),
	}
	if index >= 0 && index < len(r.report.Steps) {
		ev.Step = r.report.Steps[index].Name
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if t == domain.EventPipelineCompleted || t == domain.EventPipelineFailed {
		if payload, err := json.Marshal(r.report.Outcomes()); err == nil {
			ev.Payload = payload
		}
	}
	// Handler failures are logged by the dispatcher and never affect the run.
	_ = r.events.Dispatch(ctx, ev)
}
