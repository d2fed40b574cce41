package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dbaas.io/workflow/internal/config"
	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/pkg/worker"
	"dbaas.io/workflow/internal/store"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestBootstrap_NoDB(t *testing.T) {
	// Bootstrap without a real database should fail at DB connection.
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Host:     "localhost",
			Port:     65432, // Non-existent port
			User:     "test",
			Password: "test",
			Database: "test",
			SSLMode:  "disable",
			MaxConns: 5,
			MinConns: 1,
		},
		Worker: config.WorkerConfig{
			GeneralPoolSize:  10,
			PipelinePoolSize: 5,
		},
		Provider: config.ProviderConfig{
			HTTPTimeout:      time.Second,
			CredentialSource: config.CredentialSourceDatabase,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app, err := Bootstrap(ctx, cfg)
	require.Error(t, err, "Bootstrap should fail without database")
	assert.Nil(t, app, "Application should be nil on bootstrap failure")
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}

func TestNewCredentialSource(t *testing.T) {
	ctx := context.Background()
	prod := &domain.Environment{ID: 1, Name: "prod"}

	t.Run("database", func(t *testing.T) {
		m := store.NewMemory()
		m.PutCredential(1, domain.CredentialACL, domain.Credential{Endpoint: "http://acl.db"})

		src, err := NewCredentialSource(config.ProviderConfig{CredentialSource: config.CredentialSourceDatabase}, m)
		require.NoError(t, err)
		cred, err := src.Credential(ctx, prod, domain.CredentialACL)
		require.NoError(t, err)
		require.Equal(t, "http://acl.db", cred.Endpoint)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "credentials.yaml")
		doc := "environments:\n  prod:\n    ACLFROMHELL:\n      endpoint: http://acl.file\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		src, err := NewCredentialSource(config.ProviderConfig{
			CredentialSource: config.CredentialSourceFile,
			CredentialsFile:  path,
		}, nil)
		require.NoError(t, err)
		cred, err := src.Credential(ctx, prod, domain.CredentialACL)
		require.NoError(t, err)
		require.Equal(t, "http://acl.file", cred.Endpoint)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NewCredentialSource(config.ProviderConfig{CredentialSource: config.CredentialSourceDatabase}, nil)
		require.Error(t, err)
		_, err = NewCredentialSource(config.ProviderConfig{CredentialSource: "vault"}, nil)
		require.Error(t, err)
		_, err = NewCredentialSource(config.ProviderConfig{
			CredentialSource: config.CredentialSourceFile,
			CredentialsFile:  filepath.Join(t.TempDir(), "missing.yaml"),
		}, nil)
		require.Error(t, err)
	})
}

func TestRegisterEventLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	defer logger.Replace(zap.New(core))()

	d := domain.NewEventDispatcher()
	RegisterEventLogging(d)

	require.NoError(t, d.Dispatch(context.Background(), &domain.Event{
		EventType: domain.EventPipelineFailed,
		RunID:     "run-1",
		Pipeline:  "restore",
		Step:      "Checking host VM",
		Error:     "vm not found",
	}))

	entries := logs.FilterMessage("Pipeline event").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
	require.Equal(t, "PIPELINE_FAILED", entries[0].ContextMap()["event_type"])
}

func TestStartPoolMetrics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{GeneralPoolSize: 2, PipelinePoolSize: 2})
	require.NoError(t, err)

	require.NoError(t, startPoolMetrics(pools, 10*time.Millisecond))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Worker pool usage").Len() > 0
	}, 2*time.Second, 5*time.Millisecond)

	// The reporter stops with the service context, so shutdown does not wait for it.
	pools.Shutdown()
	require.NoError(t, startPoolMetrics(pools, 0))
}
