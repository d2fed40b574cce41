// Package steps contains concrete pipeline steps built on the workflow
// contracts and the provider clients.
//
// Import Path: dbaas.io/workflow/internal/workflow/steps
package steps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/provider"
	"dbaas.io/workflow/internal/stepcontext"
	"dbaas.io/workflow/internal/workflow"
)

// CheckHostVM verifies the compute provider knows the VM behind the
// instance's host. Under a MigrationContext it checks the migration target.
type CheckHostVM struct {
	workflow.BaseInstanceStep
	providers *provider.Factory
}

var _ workflow.InstanceStep = (*CheckHostVM)(nil)

// NewCheckHostVM creates the step for sc.
func NewCheckHostVM(sc stepcontext.Context, providers *provider.Factory) *CheckHostVM {
	return &CheckHostVM{
		BaseInstanceStep: workflow.NewBaseInstanceStep(sc),
		providers:        providers,
	}
}

func (s *CheckHostVM) String() string { return "Checking host VM" }

// CanRun is false until the instance has a host.
func (s *CheckHostVM) CanRun(ctx context.Context) (bool, error) {
	host, err := s.StepContext().Host(ctx)
	if err != nil {
		return false, err
	}
	return host != nil, nil
}

func (s *CheckHostVM) Do(ctx context.Context) error {
	sc := s.StepContext()
	host, err := sc.Host(ctx)
	if err != nil {
		return err
	}
	env, err := sc.Environment(ctx)
	if err != nil {
		return err
	}
	if host == nil || env == nil {
		return fmt.Errorf("instance %s: host or environment not resolved", sc.Instance().Name)
	}

	vm, err := s.providers.Host(env).GetVMByHost(ctx, host)
	if err != nil {
		return fmt.Errorf("get vm for host %s: %w", host.Hostname, err)
	}
	if vm == nil {
		return apperrors.ErrVMNotFoundf(host.Hostname)
	}

	status, _ := vm.String("status")
	logger.Info("Host VM found",
		zap.String("instance", sc.Instance().Name),
		zap.String("host", host.Hostname),
		zap.String("environment", env.Name),
		zap.String("vm_status", status),
	)
	return nil
}

// Undo has nothing to revert.
func (s *CheckHostVM) Undo(context.Context) error { return nil }
