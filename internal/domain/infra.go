// Package domain provides the read-only fleet model the workflow engine
// operates on.
//
// Rows are owned by the external store. Nothing in this module creates or
// mutates them; optional relations are pointer IDs where nil means "unset".
//
// Import Path: dbaas.io/workflow/internal/domain
package domain

import "time"

// Instance is a single running node of a managed database.
type Instance struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Port      int       `json:"port"`
	InfraID   int64     `json:"infra_id"`
	HostID    *int64    `json:"host_id,omitempty"` // nil before provisioning
	CreatedAt time.Time `json:"created_at"`
}

// Infra is a database cluster/shard group.
type Infra struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	EnvironmentID  int64  `json:"environment_id"`
	PlanID         int64  `json:"plan_id"`
	EngineID       int64  `json:"engine_id"`
	DiskOfferingID *int64 `json:"disk_offering_id,omitempty"`
}

// Database is a logical database hosted on an Infra.
type Database struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	InfraID int64  `json:"infra_id"`

	// EngineType is resolved by the store through infra → engine → type.
	EngineType string `json:"engine_type"`
}

// Environment is a configuration scope (e.g. "prod", "dev").
type Environment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// MigrateEnvironmentID points at the environment an infra moves to
	// during a migration.
	MigrateEnvironmentID *int64 `json:"migrate_environment_id,omitempty"`
}

// Plan is a sizing/configuration plan.
type Plan struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	EngineID      int64  `json:"engine_id"`
	MigratePlanID *int64 `json:"migrate_plan_id,omitempty"`
}

// Engine is a database engine version.
type Engine struct {
	ID         int64  `json:"id"`
	EngineType string `json:"engine_type"`
	Version    string `json:"version"`
}

// DiskOffering is a disk size offering.
type DiskOffering struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	SizeKB int64  `json:"size_kb"`
}

// Host is the physical/virtual machine backing an Instance.
type Host struct {
	ID         int64  `json:"id"`
	Hostname   string `json:"hostname"`
	Address    string `json:"address"`
	Identifier string `json:"identifier"` // compute provider VM identifier

	// FutureHostID is the migration target host.
	FutureHostID *int64 `json:"future_host_id,omitempty"`
}

// Volume is a disk attached to a Host.
type Volume struct {
	ID          int64     `json:"id"`
	HostID      int64     `json:"host_id"`
	Identifier  string    `json:"identifier"`
	TotalSizeKB int64     `json:"total_size_kb"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
