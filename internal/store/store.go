// Package store provides read access to the fleet database.
//
// The workflow engine never writes: operation records are created and
// finished by the orchestrator, fleet rows by provisioning. Everything here
// is a query.
//
// Conventions:
//   - Get* returns an error wrapping ErrNotFound when the row is missing.
//   - Latest*/First*/BackupForInstance return (nil, nil) when nothing matches.
//
// Import Path: dbaas.io/workflow/internal/store
package store

import (
	"context"
	"errors"

	"dbaas.io/workflow/internal/domain"
)

// ErrNotFound is wrapped by Get* lookups for missing rows.
var ErrNotFound = errors.New("store: not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FleetReader reads the instance/infra graph.
type FleetReader interface {
	GetInstance(ctx context.Context, id int64) (*domain.Instance, error)
	GetInfra(ctx context.Context, id int64) (*domain.Infra, error)
	GetPlan(ctx context.Context, id int64) (*domain.Plan, error)
	GetEngine(ctx context.Context, id int64) (*domain.Engine, error)
	GetDiskOffering(ctx context.Context, id int64) (*domain.DiskOffering, error)
	GetEnvironment(ctx context.Context, id int64) (*domain.Environment, error)
	GetEnvironmentByName(ctx context.Context, name string) (*domain.Environment, error)
	GetHost(ctx context.Context, id int64) (*domain.Host, error)

	// FirstDatabase returns the lowest-ID database of the infra.
	FirstDatabase(ctx context.Context, infraID int64) (*domain.Database, error)
	// LatestVolume returns the most recently created volume of the host.
	LatestVolume(ctx context.Context, hostID int64) (*domain.Volume, error)
}

// OperationReader returns the single most recent operation record of each
// kind. Implementations must answer from the natural most-recent-first
// ordering (one row), never by scanning history.
type OperationReader interface {
	LatestRestore(ctx context.Context, databaseID int64) (*domain.Restore, error)
	LatestResize(ctx context.Context, databaseID int64) (*domain.Resize, error)
	LatestUpgrade(ctx context.Context, databaseID int64) (*domain.Upgrade, error)
	LatestReinstallVM(ctx context.Context, databaseID int64) (*domain.ReinstallVM, error)
	LatestCreate(ctx context.Context, infraID int64) (*domain.DatabaseCreate, error)
}

// BackupReader finds snapshots.
type BackupReader interface {
	BackupForInstance(ctx context.Context, groupID, instanceID int64) (*domain.Backup, error)
}

// RestoreFilter narrows ListRestores. Zero values mean "any".
type RestoreFilter struct {
	Status     domain.OperationStatus
	CanDoRetry *bool
	DatabaseID *int64
	Limit      uint64
}

// DefaultRestoreLimit caps ListRestores when the filter sets no limit.
const DefaultRestoreLimit = 100

// RestoreReader backs the restore status API.
type RestoreReader interface {
	GetRestore(ctx context.Context, id int64) (*domain.Restore, error)
	ListRestores(ctx context.Context, filter RestoreFilter) ([]*domain.Restore, error)
}

// CredentialReader reads provider credentials stored per environment.
type CredentialReader interface {
	Credential(ctx context.Context, environmentID int64, kind domain.CredentialKind) (*domain.Credential, error)
}

// Reader is everything the workflow engine reads.
type Reader interface {
	FleetReader
	OperationReader
	BackupReader
	RestoreReader
	CredentialReader
}

func limitOrDefault(limit uint64) uint64 {
	if limit == 0 {
		return DefaultRestoreLimit
	}
	return limit
}
