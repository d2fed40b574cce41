package stepcontext

import (
	"context"

	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/store"
)

// MigrationContext redirects Host, Environment and Plan to their migration
// targets and forwards everything else to the wrapped Context. It only
// changes what is read; nothing underneath is modified.
type MigrationContext struct {
	Context
	fleet store.FleetReader
}

var _ Context = (*MigrationContext)(nil)

// NewMigrationContext wraps base.
func NewMigrationContext(base Context, fleet store.FleetReader) *MigrationContext {
	return &MigrationContext{Context: base, fleet: fleet}
}

// Host returns the future host of the base host.
func (c *MigrationContext) Host(ctx context.Context) (*domain.Host, error) {
	host, err := c.Context.Host(ctx)
	if err != nil || host == nil {
		return nil, err
	}
	return follow(ctx, host.FutureHostID, c.fleet.GetHost)
}

// Environment returns the environment the infra is migrating to.
func (c *MigrationContext) Environment(ctx context.Context) (*domain.Environment, error) {
	env, err := c.Context.Environment(ctx)
	if err != nil || env == nil {
		return nil, err
	}
	return follow(ctx, env.MigrateEnvironmentID, c.fleet.GetEnvironment)
}

// Plan returns the plan the infra is migrating to.
func (c *MigrationContext) Plan(ctx context.Context) (*domain.Plan, error) {
	plan, err := c.Context.Plan(ctx)
	if err != nil || plan == nil {
		return nil, err
	}
	return follow(ctx, plan.MigratePlanID, c.fleet.GetPlan)
}
