// Package operation resolves which long-running operation currently owns a
// database or infra.
//
// Only the most recent record of each kind is considered; it is returned
// when it is still running and reported as absent otherwise. A finished
// record never falls through to an older one.
//
// Import Path: dbaas.io/workflow/internal/operation
package operation

import (
	"context"
	"fmt"

	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/store"
)

// running is implemented by every operation record through the embedded
// domain.Operation.
type running interface {
	IsRunning() bool
}

// Resolver finds the running operation of each kind.
type Resolver struct {
	store store.OperationReader
}

// NewResolver creates a Resolver.
func NewResolver(s store.OperationReader) *Resolver {
	return &Resolver{store: s}
}

// active returns the latest record when it is running, nil otherwise.
func active[T any, P interface {
	*T
	running
}](ctx context.Context, kind domain.OperationKind, id int64, latest func(context.Context, int64) (P, error)) (P, error) {
	rec, err := latest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %s for %d: %w", kind, id, err)
	}
	if rec == nil || !rec.IsRunning() {
		return nil, nil
	}
	return rec, nil
}

// Restore returns the running restore of db, if any.
func (r *Resolver) Restore(ctx context.Context, db *domain.Database) (*domain.Restore, error) {
	if db == nil {
		return nil, nil
	}
	return active(ctx, domain.KindRestore, db.ID, r.store.LatestRestore)
}

// Resize returns the running resize of db, if any.
func (r *Resolver) Resize(ctx context.Context, db *domain.Database) (*domain.Resize, error) {
	if db == nil {
		return nil, nil
	}
	return active(ctx, domain.KindResize, db.ID, r.store.LatestResize)
}

// Upgrade returns the running upgrade of db, if any.
func (r *Resolver) Upgrade(ctx context.Context, db *domain.Database) (*domain.Upgrade, error) {
	if db == nil {
		return nil, nil
	}
	return active(ctx, domain.KindUpgrade, db.ID, r.store.LatestUpgrade)
}

// ReinstallVM returns the running VM reinstall of db, if any.
func (r *Resolver) ReinstallVM(ctx context.Context, db *domain.Database) (*domain.ReinstallVM, error) {
	if db == nil {
		return nil, nil
	}
	return active(ctx, domain.KindReinstallVM, db.ID, r.store.LatestReinstallVM)
}

// Create returns the running database creation on infra, if any.
func (r *Resolver) Create(ctx context.Context, infra *domain.Infra) (*domain.DatabaseCreate, error) {
	if infra == nil {
		return nil, nil
	}
	return active(ctx, domain.KindCreate, infra.ID, r.store.LatestCreate)
}
