package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dbaas.io/workflow/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate applies the development schema. Production databases are owned by
// the orchestrator and must not be migrated from here.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply store schema: %w", err)
	}
	return nil
}

// PGStore reads the fleet database through pgx.
type PGStore struct {
	db DBTX
	sb sq.StatementBuilderType
}

var _ Reader = (*PGStore)(nil)

// NewPGStore creates a PGStore on top of a pool, connection or transaction.
func NewPGStore(db DBTX) *PGStore {
	return &PGStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var operationColumns = []string{
	"id", "status", "current_step", "can_do_retry", "task_id", "created_at", "updated_at",
}

func operationDest(op *domain.Operation) []any {
	return []any{&op.ID, &op.Status, &op.CurrentStep, &op.CanDoRetry, &op.TaskID, &op.CreatedAt, &op.UpdatedAt}
}

func columns(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// queryRow runs b and scans the single row into dest. A missing row is
// reported as ErrNotFound.
func (s *PGStore) queryRow(ctx context.Context, b sq.SelectBuilder, dest ...any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := s.db.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// get is queryRow for primary-key lookups.
func (s *PGStore) get(ctx context.Context, what string, id any, b sq.SelectBuilder, dest ...any) error {
	if err := s.queryRow(ctx, b, dest...); err != nil {
		return fmt.Errorf("get %s %v: %w", what, id, err)
	}
	return nil
}

// latest reads the newest row of b and reports whether one existed.
func (s *PGStore) latest(ctx context.Context, what string, b sq.SelectBuilder, dest ...any) (bool, error) {
	err := s.queryRow(ctx, b.OrderBy("created_at DESC", "id DESC").Limit(1), dest...)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("latest %s: %w", what, err)
	}
	return true, nil
}

// --- FleetReader ---

func (s *PGStore) GetInstance(ctx context.Context, id int64) (*domain.Instance, error) {
	var v domain.Instance
	q := s.sb.Select("id", "name", "address", "port", "databaseinfra_id", "hostname_id", "created_at").
		From("physical_instance").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "instance", id, q, &v.ID, &v.Name, &v.Address, &v.Port, &v.InfraID, &v.HostID, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) GetInfra(ctx context.Context, id int64) (*domain.Infra, error) {
	var v domain.Infra
	q := s.sb.Select("id", "name", "environment_id", "plan_id", "engine_id", "disk_offering_id").
		From("physical_databaseinfra").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "infra", id, q, &v.ID, &v.Name, &v.EnvironmentID, &v.PlanID, &v.EngineID, &v.DiskOfferingID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) GetPlan(ctx context.Context, id int64) (*domain.Plan, error) {
	var v domain.Plan
	q := s.sb.Select("id", "name", "engine_id", "migrate_plan_id").
		From("physical_plan").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "plan", id, q, &v.ID, &v.Name, &v.EngineID, &v.MigratePlanID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) GetEngine(ctx context.Context, id int64) (*domain.Engine, error) {
	var v domain.Engine
	q := s.sb.Select("id", "engine_type", "version").
		From("physical_engine").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "engine", id, q, &v.ID, &v.EngineType, &v.Version); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) GetDiskOffering(ctx context.Context, id int64) (*domain.DiskOffering, error) {
	var v domain.DiskOffering
	q := s.sb.Select("id", "name", "size_kb").
		From("physical_diskoffering").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "disk offering", id, q, &v.ID, &v.Name, &v.SizeKB); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) GetEnvironment(ctx context.Context, id int64) (*domain.Environment, error) {
	var v domain.Environment
	q := s.sb.Select("id", "name", "migrate_environment_id").
		From("physical_environment").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "environment", id, q, &v.ID, &v.Name, &v.MigrateEnvironmentID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) GetEnvironmentByName(ctx context.Context, name string) (*domain.Environment, error) {
	var v domain.Environment
	q := s.sb.Select("id", "name", "migrate_environment_id").
		From("physical_environment").Where(sq.Expr("lower(name) = lower(?)", name))
	if err := s.get(ctx, "environment", name, q, &v.ID, &v.Name, &v.MigrateEnvironmentID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) GetHost(ctx context.Context, id int64) (*domain.Host, error) {
	var v domain.Host
	q := s.sb.Select("id", "hostname", "address", "identifier", "future_host_id").
		From("physical_host").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "host", id, q, &v.ID, &v.Hostname, &v.Address, &v.Identifier, &v.FutureHostID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) FirstDatabase(ctx context.Context, infraID int64) (*domain.Database, error) {
	var v domain.Database
	q := s.sb.Select("d.id", "d.name", "d.databaseinfra_id", "e.engine_type").
		From("logical_database d").
		Join("physical_databaseinfra i ON i.id = d.databaseinfra_id").
		Join("physical_engine e ON e.id = i.engine_id").
		Where(sq.Eq{"d.databaseinfra_id": infraID}).
		OrderBy("d.id").
		Limit(1)
	err := s.queryRow(ctx, q, &v.ID, &v.Name, &v.InfraID, &v.EngineType)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first database of infra %d: %w", infraID, err)
	}
	return &v, nil
}

func (s *PGStore) LatestVolume(ctx context.Context, hostID int64) (*domain.Volume, error) {
	var v domain.Volume
	q := s.sb.Select("id", "host_id", "identifier", "total_size_kb", "is_active", "created_at").
		From("physical_volume").Where(sq.Eq{"host_id": hostID})
	found, err := s.latest(ctx, "volume", q, &v.ID, &v.HostID, &v.Identifier, &v.TotalSizeKB, &v.IsActive, &v.CreatedAt)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// --- OperationReader ---

func (s *PGStore) LatestRestore(ctx context.Context, databaseID int64) (*domain.Restore, error) {
	var v domain.Restore
	q := s.sb.Select(columns(operationColumns, "database_id", "group_id")...).
		From("maintenance_databaserestore").Where(sq.Eq{"database_id": databaseID})
	found, err := s.latest(ctx, "restore", q, append(operationDest(&v.Operation), &v.DatabaseID, &v.GroupID)...)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) LatestResize(ctx context.Context, databaseID int64) (*domain.Resize, error) {
	var v domain.Resize
	q := s.sb.Select(columns(operationColumns, "database_id", "source_offering_id", "target_offering_id")...).
		From("maintenance_databaseresize").Where(sq.Eq{"database_id": databaseID})
	found, err := s.latest(ctx, "resize", q, append(operationDest(&v.Operation), &v.DatabaseID, &v.SourceOfferingID, &v.TargetOfferingID)...)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) LatestUpgrade(ctx context.Context, databaseID int64) (*domain.Upgrade, error) {
	var v domain.Upgrade
	q := s.sb.Select(columns(operationColumns, "database_id", "source_plan_id", "target_plan_id")...).
		From("maintenance_databaseupgrade").Where(sq.Eq{"database_id": databaseID})
	found, err := s.latest(ctx, "upgrade", q, append(operationDest(&v.Operation), &v.DatabaseID, &v.SourcePlanID, &v.TargetPlanID)...)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) LatestReinstallVM(ctx context.Context, databaseID int64) (*domain.ReinstallVM, error) {
	var v domain.ReinstallVM
	q := s.sb.Select(columns(operationColumns, "database_id", "instance_id")...).
		From("maintenance_databasereinstallvm").Where(sq.Eq{"database_id": databaseID})
	found, err := s.latest(ctx, "reinstall vm", q, append(operationDest(&v.Operation), &v.DatabaseID, &v.InstanceID)...)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) LatestCreate(ctx context.Context, infraID int64) (*domain.DatabaseCreate, error) {
	var v domain.DatabaseCreate
	q := s.sb.Select(columns(operationColumns, "infra_id", "name")...).
		From("maintenance_databasecreate").Where(sq.Eq{"infra_id": infraID})
	found, err := s.latest(ctx, "database create", q, append(operationDest(&v.Operation), &v.InfraID, &v.Name)...)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// --- BackupReader ---

func (s *PGStore) BackupForInstance(ctx context.Context, groupID, instanceID int64) (*domain.Backup, error) {
	var v domain.Backup
	q := s.sb.Select("id", "group_id", "instance_id", "status", "snapshot_id", "created_at").
		From("backup_snapshot").
		Where(sq.Eq{"group_id": groupID, "instance_id": instanceID})
	err := s.queryRow(ctx, q, &v.ID, &v.GroupID, &v.InstanceID, &v.Status, &v.SnapshotID, &v.CreatedAt)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup for instance %d in group %d: %w", instanceID, groupID, err)
	}
	return &v, nil
}

// --- RestoreReader ---

func (s *PGStore) GetRestore(ctx context.Context, id int64) (*domain.Restore, error) {
	var v domain.Restore
	q := s.sb.Select(columns(operationColumns, "database_id", "group_id")...).
		From("maintenance_databaserestore").Where(sq.Eq{"id": id})
	if err := s.get(ctx, "restore", id, q, append(operationDest(&v.Operation), &v.DatabaseID, &v.GroupID)...); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PGStore) ListRestores(ctx context.Context, filter RestoreFilter) ([]*domain.Restore, error) {
	q := s.sb.Select(columns(operationColumns, "database_id", "group_id")...).
		From("maintenance_databaserestore").
		OrderBy("created_at DESC", "id DESC").
		Limit(limitOrDefault(filter.Limit))
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.CanDoRetry != nil {
		q = q.Where(sq.Eq{"can_do_retry": *filter.CanDoRetry})
	}
	if filter.DatabaseID != nil {
		q = q.Where(sq.Eq{"database_id": *filter.DatabaseID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list restores: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Restore, 0)
	for rows.Next() {
		var v domain.Restore
		if err := rows.Scan(append(operationDest(&v.Operation), &v.DatabaseID, &v.GroupID)...); err != nil {
			return nil, fmt.Errorf("scan restore: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list restores: %w", err)
	}
	return out, nil
}

// --- CredentialReader ---

func (s *PGStore) Credential(ctx context.Context, environmentID int64, kind domain.CredentialKind) (*domain.Credential, error) {
	var v domain.Credential
	q := s.sb.Select("endpoint", "project", "username", "password").
		From("credential").
		Where(sq.Eq{"environment_id": environmentID, "kind": string(kind)})
	if err := s.queryRow(ctx, q, &v.Endpoint, &v.Project, &v.User, &v.Password); err != nil {
		return nil, fmt.Errorf("credential %s for environment %d: %w", kind, environmentID, err)
	}
	return &v, nil
}
