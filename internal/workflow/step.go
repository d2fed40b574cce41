// Package workflow runs ordered pipelines of reversible steps.
//
// A pipeline executes its entries one after another. When a step fails,
// every step that completed before it is undone in reverse order. Steps
// whose gate (IsValid/CanRun) returns false are skipped: they count as a
// successful no-op and are never undone.
//
// Two step shapes exist:
//   - Step: free-standing, works on the shared State bag.
//   - InstanceStep: bound to one instance at construction, reads everything
//     through its stepcontext.Context.
//
// Import Path: dbaas.io/workflow/internal/workflow
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/stepcontext"
)

// ErrStepNotImplemented marks a step that lacks Do or Undo. It is a
// programming fault and must never be retried.
var ErrStepNotImplemented = errors.New("step not implemented")

// Step is a free-standing unit of work over the pipeline State.
type Step interface {
	String() string
	Do(ctx context.Context, state State) error
	// Undo must tolerate a partial Do and return nil when there is nothing
	// to undo.
	Undo(ctx context.Context, state State) error
}

// InstanceStep is a unit of work bound to one instance.
type InstanceStep interface {
	String() string
	Do(ctx context.Context) error
	Undo(ctx context.Context) error
	IsValid(ctx context.Context) (bool, error)
	CanRun(ctx context.Context) (bool, error)
}

// BaseInstanceStep carries the step context and the default gates.
// Embedders must define Do and Undo themselves; there is no default.
type BaseInstanceStep struct {
	sc stepcontext.Context
}

// NewBaseInstanceStep binds a base step to sc.
func NewBaseInstanceStep(sc stepcontext.Context) BaseInstanceStep {
	return BaseInstanceStep{sc: sc}
}

// StepContext returns the context the step was built with.
func (b BaseInstanceStep) StepContext() stepcontext.Context {
	return b.sc
}

// IsValid returns true.
func (BaseInstanceStep) IsValid(context.Context) (bool, error) { return true, nil }

// CanRun returns true.
func (BaseInstanceStep) CanRun(context.Context) (bool, error) { return true, nil }

// Unimplemented is for steps assembled at runtime (adapters, table-driven
// registrations) that cannot provide one of Do/Undo.
func Unimplemented(step, method string) error {
	return apperrors.Wrap(ErrStepNotImplemented,
		apperrors.CodeStepNotImplemented,
		fmt.Sprintf("%s does not implement %s", step, method),
		http.StatusInternalServerError,
	)
}

// Entry is one pipeline slot holding exactly one of the two step shapes.
type Entry struct {
	step     Step
	instance InstanceStep
}

// Stateless wraps a free-standing step.
func Stateless(s Step) Entry { return Entry{step: s} }

// ForInstance wraps an instance-bound step.
func ForInstance(s InstanceStep) Entry { return Entry{instance: s} }

// Name returns the step's display name.
func (e Entry) Name() string {
	switch {
	case e.step != nil:
		return e.step.String()
	case e.instance != nil:
		return e.instance.String()
	default:
		return "<empty>"
	}
}

// IsInstance reports whether the entry holds an InstanceStep.
func (e Entry) IsInstance() bool { return e.instance != nil }

// runnable reports whether the entry's gates allow it to run. Free-standing
// steps have no gates.
func (e Entry) runnable(ctx context.Context) (bool, error) {
	if e.instance == nil {
		return true, nil
	}
	valid, err := e.instance.IsValid(ctx)
	if err != nil || !valid {
		return false, err
	}
	return e.instance.CanRun(ctx)
}

func (e Entry) do(ctx context.Context, state State) error {
	switch {
	case e.step != nil:
		return e.step.Do(ctx, state)
	case e.instance != nil:
		return e.instance.Do(ctx)
	default:
		return Unimplemented(e.Name(), "Do")
	}
}

func (e Entry) undo(ctx context.Context, state State) error {
	switch {
	case e.step != nil:
		return e.step.Undo(ctx, state)
	case e.instance != nil:
		return e.instance.Undo(ctx)
	default:
		return Unimplemented(e.Name(), "Undo")
	}
}
