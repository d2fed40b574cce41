package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dbaas.io/workflow/internal/domain"
)

// Memory is an in-process Reader used by tests and the offline CLI.
// Operation records are kept per target in creation order so Latest* reads
// only the tail.
type Memory struct {
	mu sync.RWMutex

	instances     map[int64]domain.Instance
	infras        map[int64]domain.Infra
	plans         map[int64]domain.Plan
	engines       map[int64]domain.Engine
	diskOfferings map[int64]domain.DiskOffering
	environments  map[int64]domain.Environment
	hosts         map[int64]domain.Host
	databases     map[int64][]domain.Database // by infra, ascending ID
	volumes       map[int64][]domain.Volume   // by host, creation order

	restores     map[int64][]domain.Restore // by database
	resizes      map[int64][]domain.Resize
	upgrades     map[int64][]domain.Upgrade
	reinstalls   map[int64][]domain.ReinstallVM
	creates      map[int64][]domain.DatabaseCreate // by infra
	restoresByID map[int64]domain.Restore

	backups     map[backupKey]domain.Backup
	credentials map[credentialKey]domain.Credential
}

type backupKey struct{ group, instance int64 }

type credentialKey struct {
	environment int64
	kind        domain.CredentialKind
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		instances:     make(map[int64]domain.Instance),
		infras:        make(map[int64]domain.Infra),
		plans:         make(map[int64]domain.Plan),
		engines:       make(map[int64]domain.Engine),
		diskOfferings: make(map[int64]domain.DiskOffering),
		environments:  make(map[int64]domain.Environment),
		hosts:         make(map[int64]domain.Host),
		databases:     make(map[int64][]domain.Database),
		volumes:       make(map[int64][]domain.Volume),
		restores:      make(map[int64][]domain.Restore),
		resizes:       make(map[int64][]domain.Resize),
		upgrades:      make(map[int64][]domain.Upgrade),
		reinstalls:    make(map[int64][]domain.ReinstallVM),
		creates:       make(map[int64][]domain.DatabaseCreate),
		restoresByID:  make(map[int64]domain.Restore),
		backups:       make(map[backupKey]domain.Backup),
		credentials:   make(map[credentialKey]domain.Credential),
	}
}

var _ Reader = (*Memory)(nil)

// --- seeding ---

func (m *Memory) PutInstance(v domain.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[v.ID] = v
}

func (m *Memory) PutInfra(v domain.Infra) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infras[v.ID] = v
}

func (m *Memory) PutPlan(v domain.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[v.ID] = v
}

func (m *Memory) PutEngine(v domain.Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[v.ID] = v
}

func (m *Memory) PutDiskOffering(v domain.DiskOffering) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diskOfferings[v.ID] = v
}

func (m *Memory) PutEnvironment(v domain.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.environments[v.ID] = v
}

func (m *Memory) PutHost(v domain.Host) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[v.ID] = v
}

// PutDatabase adds a database. If EngineType is empty it is filled from the
// infra's engine when that is already seeded.
func (m *Memory) PutDatabase(v domain.Database) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.EngineType == "" {
		if infra, ok := m.infras[v.InfraID]; ok {
			v.EngineType = m.engines[infra.EngineID].EngineType
		}
	}
	list := append(m.databases[v.InfraID], v)
	sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	m.databases[v.InfraID] = list
}

func (m *Memory) PutVolume(v domain.Volume) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[v.HostID] = insertByCreation(m.volumes[v.HostID], v, func(x domain.Volume) (int64, int64) {
		return x.CreatedAt.UnixNano(), x.ID
	})
}

func (m *Memory) PutRestore(v domain.Restore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restores[v.DatabaseID] = insertByCreation(m.restores[v.DatabaseID], v, operationOrder[domain.Restore](func(x domain.Restore) domain.Operation { return x.Operation }))
	m.restoresByID[v.ID] = v
}

func (m *Memory) PutResize(v domain.Resize) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resizes[v.DatabaseID] = insertByCreation(m.resizes[v.DatabaseID], v, operationOrder[domain.Resize](func(x domain.Resize) domain.Operation { return x.Operation }))
}

func (m *Memory) PutUpgrade(v domain.Upgrade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upgrades[v.DatabaseID] = insertByCreation(m.upgrades[v.DatabaseID], v, operationOrder[domain.Upgrade](func(x domain.Upgrade) domain.Operation { return x.Operation }))
}

func (m *Memory) PutReinstallVM(v domain.ReinstallVM) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reinstalls[v.DatabaseID] = insertByCreation(m.reinstalls[v.DatabaseID], v, operationOrder[domain.ReinstallVM](func(x domain.ReinstallVM) domain.Operation { return x.Operation }))
}

func (m *Memory) PutCreate(v domain.DatabaseCreate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates[v.InfraID] = insertByCreation(m.creates[v.InfraID], v, operationOrder[domain.DatabaseCreate](func(x domain.DatabaseCreate) domain.Operation { return x.Operation }))
}

func (m *Memory) PutBackup(v domain.Backup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups[backupKey{v.GroupID, v.InstanceID}] = v
}

func (m *Memory) PutCredential(environmentID int64, kind domain.CredentialKind, v domain.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[credentialKey{environmentID, kind}] = v
}

// insertByCreation keeps list ordered by (created_at, id) ascending.
func insertByCreation[T any](list []T, v T, key func(T) (int64, int64)) []T {
	vt, vid := key(v)
	i := sort.Search(len(list), func(i int) bool {
		t, id := key(list[i])
		return t > vt || (t == vt && id > vid)
	})
	list = append(list, v)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

func operationOrder[T any](op func(T) domain.Operation) func(T) (int64, int64) {
	return func(v T) (int64, int64) {
		o := op(v)
		return o.CreatedAt.UnixNano(), o.ID
	}
}

func last[T any](list []T) *T {
	if len(list) == 0 {
		return nil
	}
	v := list[len(list)-1]
	return &v
}

func get[K comparable, V any](mu *sync.RWMutex, m map[K]V, key K, what string) (*V, error) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%s %v: %w", what, key, ErrNotFound)
	}
	return &v, nil
}

// --- FleetReader ---

func (m *Memory) GetInstance(_ context.Context, id int64) (*domain.Instance, error) {
	return get(&m.mu, m.instances, id, "instance")
}

func (m *Memory) GetInfra(_ context.Context, id int64) (*domain.Infra, error) {
	return get(&m.mu, m.infras, id, "infra")
}

func (m *Memory) GetPlan(_ context.Context, id int64) (*domain.Plan, error) {
	return get(&m.mu, m.plans, id, "plan")
}

func (m *Memory) GetEngine(_ context.Context, id int64) (*domain.Engine, error) {
	return get(&m.mu, m.engines, id, "engine")
}

func (m *Memory) GetDiskOffering(_ context.Context, id int64) (*domain.DiskOffering, error) {
	return get(&m.mu, m.diskOfferings, id, "disk offering")
}

func (m *Memory) GetEnvironment(_ context.Context, id int64) (*domain.Environment, error) {
	return get(&m.mu, m.environments, id, "environment")
}

func (m *Memory) GetEnvironmentByName(_ context.Context, name string) (*domain.Environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, env := range m.environments {
		if strings.EqualFold(env.Name, name) {
			return &env, nil
		}
	}
	return nil, fmt.Errorf("environment %q: %w", name, ErrNotFound)
}

func (m *Memory) GetHost(_ context.Context, id int64) (*domain.Host, error) {
	return get(&m.mu, m.hosts, id, "host")
}

func (m *Memory) FirstDatabase(_ context.Context, infraID int64) (*domain.Database, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.databases[infraID]
	if len(list) == 0 {
		return nil, nil
	}
	v := list[0]
	return &v, nil
}

func (m *Memory) LatestVolume(_ context.Context, hostID int64) (*domain.Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.volumes[hostID]), nil
}

// --- OperationReader ---

func (m *Memory) LatestRestore(_ context.Context, databaseID int64) (*domain.Restore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.restores[databaseID]), nil
}

func (m *Memory) LatestResize(_ context.Context, databaseID int64) (*domain.Resize, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.resizes[databaseID]), nil
}

func (m *Memory) LatestUpgrade(_ context.Context, databaseID int64) (*domain.Upgrade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.upgrades[databaseID]), nil
}

func (m *Memory) LatestReinstallVM(_ context.Context, databaseID int64) (*domain.ReinstallVM, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.reinstalls[databaseID]), nil
}

func (m *Memory) LatestCreate(_ context.Context, infraID int64) (*domain.DatabaseCreate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.creates[infraID]), nil
}

// --- BackupReader ---

func (m *Memory) BackupForInstance(_ context.Context, groupID, instanceID int64) (*domain.Backup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.backups[backupKey{groupID, instanceID}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// --- RestoreReader ---

func (m *Memory) GetRestore(_ context.Context, id int64) (*domain.Restore, error) {
	return get(&m.mu, m.restoresByID, id, "restore")
}

// ListRestores returns matching restores newest first.
func (m *Memory) ListRestores(_ context.Context, filter RestoreFilter) ([]*domain.Restore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Restore, 0)
	for _, r := range m.restoresByID {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.CanDoRetry != nil && r.CanDoRetry != *filter.CanDoRetry {
			continue
		}
		if filter.DatabaseID != nil && r.DatabaseID != *filter.DatabaseID {
			continue
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := limitOrDefault(filter.Limit); uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- CredentialReader ---

func (m *Memory) Credential(_ context.Context, environmentID int64, kind domain.CredentialKind) (*domain.Credential, error) {
	return get(&m.mu, m.credentials, credentialKey{environmentID, kind}, "credential")
}
