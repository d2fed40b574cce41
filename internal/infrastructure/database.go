// Package infrastructure provides database and connection pool setup.
//
// The store, readiness probe and schema bootstrap share one pgxpool.
//
// Import Path: dbaas.io/workflow/internal/infrastructure
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dbaas.io/workflow/internal/config"
	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/store"
)

// DatabaseClients contains all database-related clients.
//
// Do not open a second pool next to Pool; everything shares it.
type DatabaseClients struct {
	// Pool is the shared connection pool.
	Pool *pgxpool.Pool

	// Store is the read-only fleet store backed by Pool.
	Store *store.PGStore
}

// NewDatabaseClients creates the shared pool and the store on top of it.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	// created_at ordering is compared in UTC.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &DatabaseClients{
		Pool:  pool,
		Store: store.NewPGStore(pool),
	}, nil
}

// AutoMigrate creates the tables the store reads. Only for development and
// tests; production tables are owned by the fleet's system of record.
func (c *DatabaseClients) AutoMigrate(ctx context.Context) error {
	logger.Info("Running store schema migration...")
	if err := store.Migrate(ctx, c.Pool); err != nil {
		return fmt.Errorf("store auto-migrate: %w", err)
	}
	logger.Info("Store schema migration completed")
	return nil
}

// Ping checks the pool can reach the database.
func (c *DatabaseClients) Ping(ctx context.Context) error {
	if c == nil || c.Pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	return c.Pool.Ping(ctx)
}

// Close closes the pool gracefully.
func (c *DatabaseClients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
