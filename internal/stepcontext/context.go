// Package stepcontext provides the read-only view a step uses to resolve
// the infrastructure around one instance and the operation that currently
// owns it.
//
// Every accessor returns (value, error). A nil value with a nil error means
// the relation is legitimately absent (no host yet, no running restore,
// unset offering). Errors are reserved for store failures.
//
// Import Path: dbaas.io/workflow/internal/stepcontext
package stepcontext

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/operation"
	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/store"
)

// Context is what an instance-bound step reads.
type Context interface {
	Instance() *domain.Instance

	Infra(ctx context.Context) (*domain.Infra, error)
	Database(ctx context.Context) (*domain.Database, error)
	Plan(ctx context.Context) (*domain.Plan, error)
	Engine(ctx context.Context) (*domain.Engine, error)
	DiskOffering(ctx context.Context) (*domain.DiskOffering, error)
	Environment(ctx context.Context) (*domain.Environment, error)
	Host(ctx context.Context) (*domain.Host, error)

	Restore(ctx context.Context) (*domain.Restore, error)
	Resize(ctx context.Context) (*domain.Resize, error)
	Upgrade(ctx context.Context) (*domain.Upgrade, error)
	ReinstallVM(ctx context.Context) (*domain.ReinstallVM, error)
	Create(ctx context.Context) (*domain.DatabaseCreate, error)

	Snapshot(ctx context.Context) (*domain.Backup, error)
	LatestDisk(ctx context.Context) (*domain.Volume, error)
}

// Reader is the store surface InstanceContext needs.
type Reader interface {
	store.FleetReader
	store.OperationReader
	store.BackupReader
}

// InstanceContext resolves everything directly from the instance's own
// relations.
type InstanceContext struct {
	instance *domain.Instance
	store    Reader
	resolver *operation.Resolver
}

var _ Context = (*InstanceContext)(nil)

// NewInstanceContext binds a context to instance.
func NewInstanceContext(instance *domain.Instance, s Reader) *InstanceContext {
	return &InstanceContext{
		instance: instance,
		store:    s,
		resolver: operation.NewResolver(s),
	}
}

// orAbsent turns a not-found lookup into absence.
func orAbsent[T any](v *T, err error) (*T, error) {
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// follow resolves an optional foreign key.
func follow[T any](ctx context.Context, id *int64, get func(context.Context, int64) (*T, error)) (*T, error) {
	if id == nil {
		return nil, nil
	}
	v, err := get(ctx, *id)
	return orAbsent(v, err)
}

func (c *InstanceContext) Instance() *domain.Instance {
	return c.instance
}

func (c *InstanceContext) Infra(ctx context.Context) (*domain.Infra, error) {
	infra, err := c.store.GetInfra(ctx, c.instance.InfraID)
	return orAbsent(infra, err)
}

// Database returns the first database of the infra. Single-database infras
// are the common case.
func (c *InstanceContext) Database(ctx context.Context) (*domain.Database, error) {
	infra, err := c.Infra(ctx)
	if err != nil || infra == nil {
		return nil, err
	}
	return c.store.FirstDatabase(ctx, infra.ID)
}

func (c *InstanceContext) Plan(ctx context.Context) (*domain.Plan, error) {
	infra, err := c.Infra(ctx)
	if err != nil || infra == nil {
		return nil, err
	}
	return follow(ctx, &infra.PlanID, c.store.GetPlan)
}

func (c *InstanceContext) Engine(ctx context.Context) (*domain.Engine, error) {
	infra, err := c.Infra(ctx)
	if err != nil || infra == nil {
		return nil, err
	}
	return follow(ctx, &infra.EngineID, c.store.GetEngine)
}

func (c *InstanceContext) DiskOffering(ctx context.Context) (*domain.DiskOffering, error) {
	infra, err := c.Infra(ctx)
	if err != nil || infra == nil {
		return nil, err
	}
	return follow(ctx, infra.DiskOfferingID, c.store.GetDiskOffering)
}

func (c *InstanceContext) Environment(ctx context.Context) (*domain.Environment, error) {
	infra, err := c.Infra(ctx)
	if err != nil || infra == nil {
		return nil, err
	}
	return follow(ctx, &infra.EnvironmentID, c.store.GetEnvironment)
}

// Host returns the instance's host. An instance without one is normal
// before provisioning and is only noted in the log.
func (c *InstanceContext) Host(ctx context.Context) (*domain.Host, error) {
	host, err := follow(ctx, c.instance.HostID, c.store.GetHost)
	if err != nil {
		return nil, err
	}
	if host == nil {
		logger.Info("Instance does not have a host",
			zap.Int64("instance_id", c.instance.ID),
			zap.String("instance", c.instance.Name),
		)
	}
	return host, nil
}

func (c *InstanceContext) Restore(ctx context.Context) (*domain.Restore, error) {
	db, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.Restore(ctx, db)
}

func (c *InstanceContext) Resize(ctx context.Context) (*domain.Resize, error) {
	db, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.Resize(ctx, db)
}

func (c *InstanceContext) Upgrade(ctx context.Context) (*domain.Upgrade, error) {
	db, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.Upgrade(ctx, db)
}

func (c *InstanceContext) ReinstallVM(ctx context.Context) (*domain.ReinstallVM, error) {
	db, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.ReinstallVM(ctx, db)
}

func (c *InstanceContext) Create(ctx context.Context) (*domain.DatabaseCreate, error) {
	infra, err := c.Infra(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.Create(ctx, infra)
}

// Snapshot returns this instance's backup inside the running restore's
// group.
func (c *InstanceContext) Snapshot(ctx context.Context) (*domain.Backup, error) {
	restore, err := c.Restore(ctx)
	if err != nil || restore == nil {
		return nil, err
	}
	backup, err := c.store.BackupForInstance(ctx, restore.GroupID, c.instance.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot of instance %d: %w", c.instance.ID, err)
	}
	return backup, nil
}

// LatestDisk returns the newest volume of the instance's own host.
func (c *InstanceContext) LatestDisk(ctx context.Context) (*domain.Volume, error) {
	if c.instance.HostID == nil {
		return nil, nil
	}
	return c.store.LatestVolume(ctx, *c.instance.HostID)
}
