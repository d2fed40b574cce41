package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
)

// journal records Do/Undo calls across steps in order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, s)
}

type fakeStep struct {
	name    string
	j       *journal
	doErr   error
	undoErr error
}

func (s *fakeStep) String() string { return s.name }

func (s *fakeStep) Do(_ context.Context, state State) error {
	s.j.add("do:" + s.name)
	if s.doErr == nil {
		state.Set(s.name, true)
	}
	return s.doErr
}

func (s *fakeStep) Undo(_ context.Context, state State) error {
	s.j.add("undo:" + s.name)
	state.Delete(s.name)
	return s.undoErr
}

type fakeInstanceStep struct {
	BaseInstanceStep
	name    string
	j       *journal
	canRun  bool
	gateErr error
}

func (s *fakeInstanceStep) String() string { return s.name }

func (s *fakeInstanceStep) CanRun(context.Context) (bool, error) { return s.canRun, s.gateErr }

func (s *fakeInstanceStep) Do(context.Context) error {
	s.j.add("do:" + s.name)
	return nil
}

func (s *fakeInstanceStep) Undo(context.Context) error {
	s.j.add("undo:" + s.name)
	return nil
}

func TestPipeline_RollbackReverseOrder(t *testing.T) {
	j := &journal{}
	boom := errors.New("disk attach failed")
	p := NewPipeline("restore",
		Stateless(&fakeStep{name: "A", j: j}),
		Stateless(&fakeStep{name: "B", j: j}),
		Stateless(&fakeStep{name: "C", j: j, doErr: boom}),
	)

	state := State{}
	report, err := p.Run(context.Background(), state)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)

	require.Equal(t, []string{"do:A", "do:B", "do:C", "undo:B", "undo:A"}, j.calls)
	require.Equal(t, []Outcome{OutcomeRolledBack, OutcomeRolledBack, OutcomeFailed}, report.Outcomes())
	require.False(t, report.Succeeded())
	require.Empty(t, state)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "C", perr.Step)
	require.Equal(t, 2, perr.Index)
	require.Equal(t, apperrors.CodeStepFailed, perr.Code)
	require.True(t, perr.RollbackComplete())
	require.True(t, perr.Retryable())
}

func TestPipeline_Success(t *testing.T) {
	j := &journal{}
	p := NewPipeline("resize",
		Stateless(&fakeStep{name: "A", j: j}),
		ForInstance(&fakeInstanceStep{name: "B", j: j, canRun: true}),
	)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, report.Succeeded())
	require.Equal(t, []string{"do:A", "do:B"}, j.calls)
	require.NotEmpty(t, report.RunID)
	require.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestPipeline_SkippedStepIsNeverUndone(t *testing.T) {
	j := &journal{}
	p := NewPipeline("upgrade",
		Stateless(&fakeStep{name: "A", j: j}),
		ForInstance(&fakeInstanceStep{name: "B", j: j, canRun: false}),
		Stateless(&fakeStep{name: "C", j: j, doErr: errors.New("fail")}),
	)

	report, err := p.Run(context.Background(), State{})
	require.Error(t, err)
	require.Equal(t, []string{"do:A", "do:C", "undo:A"}, j.calls)
	require.Equal(t, []Outcome{OutcomeRolledBack, OutcomeSkipped, OutcomeFailed}, report.Outcomes())
}

func TestPipeline_UndoFailureDoesNotStopRollback(t *testing.T) {
	j := &journal{}
	undoBoom := errors.New("acl api down")
	p := NewPipeline("create",
		Stateless(&fakeStep{name: "A", j: j}),
		Stateless(&fakeStep{name: "B", j: j, undoErr: undoBoom}),
		Stateless(&fakeStep{name: "C", j: j}),
		Stateless(&fakeStep{name: "D", j: j, doErr: errors.New("vm quota")}),
	)

	report, err := p.Run(context.Background(), State{})
	require.Error(t, err)
	require.Equal(t, []string{"do:A", "do:B", "do:C", "do:D", "undo:C", "undo:B", "undo:A"}, j.calls)
	require.Equal(t,
		[]Outcome{OutcomeRolledBack, OutcomeRollbackFailed, OutcomeRolledBack, OutcomeFailed},
		report.Outcomes())

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	require.False(t, perr.RollbackComplete())
	require.Len(t, perr.UndoErrors, 1)
	require.Equal(t, "B", perr.UndoErrors[0].Step)
	require.ErrorIs(t, perr.UndoErrors[0].Err, undoBoom)
	require.Contains(t, err.Error(), "rollback incomplete")
}

func TestPipeline_NotImplementedIsProgrammingFault(t *testing.T) {
	j := &journal{}
	p := NewPipeline("reinstall_vm",
		Stateless(&fakeStep{name: "A", j: j}),
		Stateless(&fakeStep{name: "B", j: j, doErr: Unimplemented("B", "Do")}),
	)

	_, err := p.Run(context.Background(), State{})
	require.ErrorIs(t, err, ErrStepNotImplemented)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, apperrors.CodeStepNotImplemented, perr.Code)
	require.False(t, perr.Retryable())

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeStepNotImplemented, appErr.Code)
}

func TestPipeline_GateErrorFailsStep(t *testing.T) {
	j := &journal{}
	gateErr := errors.New("store unavailable")
	p := NewPipeline("restore",
		Stateless(&fakeStep{name: "A", j: j}),
		ForInstance(&fakeInstanceStep{name: "B", j: j, canRun: true, gateErr: gateErr}),
	)

	report, err := p.Run(context.Background(), State{})
	require.ErrorIs(t, err, gateErr)
	require.Equal(t, []string{"do:A", "undo:A"}, j.calls)
	require.Equal(t, OutcomeFailed, report.Steps[1].Outcome)
}

func TestPipeline_CancelledBeforeStart(t *testing.T) {
	j := &journal{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewPipeline("restore", Stateless(&fakeStep{name: "A", j: j})).Run(ctx, State{})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, j.calls)
	require.Equal(t, OutcomeFailed, report.Steps[0].Outcome)
}

func TestPipeline_PendingAfterFailure(t *testing.T) {
	j := &journal{}
	p := NewPipeline("restore",
		Stateless(&fakeStep{name: "A", j: j, doErr: errors.New("first")}),
		Stateless(&fakeStep{name: "B", j: j}),
	)

	report, err := p.Run(context.Background(), State{})
	require.Error(t, err)
	require.Equal(t, []Outcome{OutcomeFailed, OutcomePending}, report.Outcomes())
	require.Equal(t, []string{"do:A"}, j.calls)
}

func TestPipeline_EmitsEvents(t *testing.T) {
	j := &journal{}
	d := domain.NewEventDispatcher()
	var mu sync.Mutex
	var seen []domain.EventType
	record := func(_ context.Context, e *domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.EventType)
		return nil
	}
	for _, et := range []domain.EventType{
		domain.EventPipelineStarted, domain.EventStepCompleted, domain.EventStepFailed,
		domain.EventRollbackCompleted, domain.EventPipelineFailed,
	} {
		d.Register(et, record)
	}

	p := NewPipeline("restore",
		Stateless(&fakeStep{name: "A", j: j}),
		Stateless(&fakeStep{name: "B", j: j, doErr: errors.New("fail")}),
	)
	p.Events = d

	_, err := p.Run(WithRunID(context.Background(), "run-1"), State{})
	require.Error(t, err)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "run-1", perr.RunID)
	require.Equal(t, []domain.EventType{
		domain.EventPipelineStarted,
		domain.EventStepCompleted,
		domain.EventStepFailed,
		domain.EventRollbackCompleted,
		domain.EventPipelineFailed,
	}, seen)
}
