package domain

import "time"

// OperationStatus is the lifecycle status of an operation record.
// The orchestrator flips it; the workflow engine only reads it.
type OperationStatus string

const (
	OperationWaiting  OperationStatus = "WAITING"
	OperationRunning  OperationStatus = "RUNNING"
	OperationError    OperationStatus = "ERROR"
	OperationSuccess  OperationStatus = "SUCCESS"
	OperationRollback OperationStatus = "ROLLBACK"
)

// OperationKind names the kinds of long-running fleet operations.
type OperationKind string

const (
	KindRestore     OperationKind = "restore"
	KindResize      OperationKind = "resize"
	KindUpgrade     OperationKind = "upgrade"
	KindReinstallVM OperationKind = "reinstall_vm"
	KindCreate      OperationKind = "create"
)

// Operation holds the fields every operation record shares.
type Operation struct {
	ID          int64           `json:"id"`
	Status      OperationStatus `json:"status"`
	CurrentStep int             `json:"current_step"`
	CanDoRetry  bool            `json:"can_do_retry"`
	TaskID      *int64          `json:"task,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsRunning reports whether the operation currently owns its target.
func (o *Operation) IsRunning() bool {
	return o != nil && o.Status == OperationRunning
}

// Restore restores a database from a backup group.
type Restore struct {
	Operation
	DatabaseID int64 `json:"database"`
	GroupID    int64 `json:"group_id"`
}

// Resize changes the compute offering of a database.
type Resize struct {
	Operation
	DatabaseID       int64 `json:"database"`
	SourceOfferingID int64 `json:"source_offering_id"`
	TargetOfferingID int64 `json:"target_offering_id"`
}

// Upgrade moves a database to a new engine plan.
type Upgrade struct {
	Operation
	DatabaseID   int64 `json:"database"`
	SourcePlanID int64 `json:"source_plan_id"`
	TargetPlanID int64 `json:"target_plan_id"`
}

// ReinstallVM rebuilds the VM of one instance.
type ReinstallVM struct {
	Operation
	DatabaseID int64 `json:"database"`
	InstanceID int64 `json:"instance_id"`
}

// DatabaseCreate provisions a new database. It is scoped to the infra
// because the database row may not exist yet.
type DatabaseCreate struct {
	Operation
	InfraID int64  `json:"infra"`
	Name    string `json:"name"`
}

// BackupGroup groups the per-instance backups taken together.
type BackupGroup struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Backup is a snapshot of one instance inside a BackupGroup.
// Unique per (group, instance).
type Backup struct {
	ID         int64     `json:"id"`
	GroupID    int64     `json:"group_id"`
	InstanceID int64     `json:"instance_id"`
	Status     string    `json:"status"`
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`
}
