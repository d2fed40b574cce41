package steps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/provider"
	"dbaas.io/workflow/internal/stepcontext"
	"dbaas.io/workflow/internal/workflow"
)

// BindACL opens the network path from each bound application to the
// instance's host.
type BindACL struct {
	workflow.BaseInstanceStep
	providers *provider.Factory
	apps      []string
}

var _ workflow.InstanceStep = (*BindACL)(nil)

// NewBindACL creates the step binding apps to the instance in sc.
func NewBindACL(sc stepcontext.Context, providers *provider.Factory, apps ...string) *BindACL {
	return &BindACL{
		BaseInstanceStep: workflow.NewBaseInstanceStep(sc),
		providers:        providers,
		apps:             apps,
	}
}

func (s *BindACL) String() string { return "Binding ACLs" }

// IsValid is false when no application is bound.
func (s *BindACL) IsValid(context.Context) (bool, error) {
	return len(s.apps) > 0, nil
}

// CanRun is false until the instance has a host.
func (s *BindACL) CanRun(ctx context.Context) (bool, error) {
	host, err := s.StepContext().Host(ctx)
	if err != nil {
		return false, err
	}
	return host != nil, nil
}

type aclTarget struct {
	db   *domain.Database
	host *domain.Host
	acl  *provider.ACLClient
}

func (s *BindACL) target(ctx context.Context) (*aclTarget, error) {
	sc := s.StepContext()
	db, err := sc.Database(ctx)
	if err != nil {
		return nil, err
	}
	host, err := sc.Host(ctx)
	if err != nil {
		return nil, err
	}
	env, err := sc.Environment(ctx)
	if err != nil {
		return nil, err
	}
	if db == nil || host == nil || env == nil {
		return nil, fmt.Errorf("instance %s: database, host or environment not resolved", sc.Instance().Name)
	}
	return &aclTarget{db: db, host: host, acl: s.providers.ACL(env)}, nil
}

// Do binds every app in order. When one bind fails, the apps already bound
// are unbound before the error is returned, since Undo never runs for a
// failed step.
func (s *BindACL) Do(ctx context.Context) error {
	t, err := s.target(ctx)
	if err != nil {
		return err
	}
	for i, app := range s.apps {
		if err := s.bind(ctx, t, app); err != nil {
			s.release(ctx, t, s.apps[:i])
			return err
		}
	}
	return nil
}

func (s *BindACL) bind(ctx context.Context, t *aclTarget, app string) error {
	res, err := t.acl.AddACL(ctx, t.db, app, t.host.Hostname)
	if err != nil {
		return fmt.Errorf("bind %s to %s: %w", app, t.db.Name, err)
	}
	if !res.Accepted {
		return apperrors.Upstream(apperrors.CodeACLNotAccepted,
			fmt.Sprintf("acl for app %s on %s rejected with status %d", app, t.host.Hostname, res.StatusCode),
		).WithParams(map[string]interface{}{"app": app, "host": t.host.Hostname})
	}
	return nil
}

// release unbinds apps after a failed Do. Failures are only logged; the
// bind error is what the pipeline reports.
func (s *BindACL) release(ctx context.Context, t *aclTarget, apps []string) {
	ctx = context.WithoutCancel(ctx)
	for _, app := range apps {
		if err := s.unbind(ctx, t, app); err != nil {
			logger.Error("ACL cleanup after failed bind incomplete",
				zap.String("database", t.db.Name),
				zap.String("app", app),
				zap.Error(err),
			)
		}
	}
}

// unbind removes the rules of one app. Partial removals are logged and
// tolerated; a failed rule lookup is an error because nothing is known
// about the rules still bound.
func (s *BindACL) unbind(ctx context.Context, t *aclTarget, app string) error {
	res, err := t.acl.RemoveACL(ctx, t.db, app)
	if err != nil {
		return fmt.Errorf("unbind %s from %s: %w", app, t.db.Name, err)
	}
	switch res.Outcome {
	case provider.RemovalLookupFailed:
		return apperrors.Upstream(apperrors.CodeACLLookupFailed,
			fmt.Sprintf("acl rule lookup for app %s on %s failed with status %d", app, t.db.Name, res.LookupStatus),
		).WithParams(map[string]interface{}{"app": app, "database": t.db.Name})
	case provider.RemovalPartial, provider.RemovalFailed:
		logger.Warn("ACL rules left behind",
			zap.String("database", t.db.Name),
			zap.String("app", app),
			zap.String("outcome", string(res.Outcome)),
			zap.Int("failed", len(res.Failures)),
		)
	}
	return nil
}

// Undo removes the rules of every bound app. All apps are attempted even
// when one removal fails.
func (s *BindACL) Undo(ctx context.Context) error {
	t, err := s.target(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, app := range s.apps {
		if err := s.unbind(ctx, t, app); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
