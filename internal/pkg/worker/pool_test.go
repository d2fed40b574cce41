package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPools(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	require.NoError(t, err)
	defer pools.Shutdown()

	require.NotNil(t, pools.General)
	require.NotNil(t, pools.Pipeline)
	require.Equal(t, "pipeline", pools.Pipeline.Name())
}

func TestPool_Submit(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, PoolConfig{GeneralPoolSize: 10, PipelinePoolSize: 5})
	require.NoError(t, err)
	defer pools.Shutdown()

	var executed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	err = pools.Pipeline.Submit(ctx, func(ctx context.Context) {
		executed.Store(true)
		wg.Done()
	})
	require.NoError(t, err)

	wg.Wait()
	require.True(t, executed.Load())
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	require.NoError(t, err)
	defer pools.Shutdown()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pools.General.Submit(cancelledCtx, func(ctx context.Context) {
		t.Error("task should not execute with cancelled context")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPool_Submit_AfterShutdown(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 1, PipelinePoolSize: 1})
	require.NoError(t, err)
	pools.Shutdown()

	err = pools.Pipeline.Submit(context.Background(), func(ctx context.Context) {})
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPools_SubmitDetached(t *testing.T) {
	tests := []struct {
		name     string
		poolName string
	}{
		{"general pool", "general"},
		{"pipeline pool", "pipeline"},
		{"default fallback", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pools, err := NewPools(context.Background(), DefaultPoolConfig())
			require.NoError(t, err)

			var executed atomic.Bool
			var wg sync.WaitGroup
			wg.Add(1)

			err = pools.SubmitDetached(tt.poolName, func(ctx context.Context) {
				executed.Store(true)
				wg.Done()
			})
			require.NoError(t, err)

			wg.Wait()
			pools.Shutdown()
			require.True(t, executed.Load())
		})
	}
}

func TestPools_Metrics(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 10, PipelinePoolSize: 5})
	require.NoError(t, err)
	defer pools.Shutdown()

	metrics := pools.Metrics()

	general, ok := metrics["general"].(map[string]int)
	require.True(t, ok, "general metrics not found or wrong type")
	require.Equal(t, 10, general["cap"])

	pipeline, ok := metrics["pipeline"].(map[string]int)
	require.True(t, ok, "pipeline metrics not found or wrong type")
	require.Equal(t, 5, pipeline["cap"])
}

func TestPool_Submit_ContextCancelledWhileQueued(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, PoolConfig{GeneralPoolSize: 1, PipelinePoolSize: 1})
	require.NoError(t, err)
	defer pools.Shutdown()

	blockCh := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	_ = pools.Pipeline.Submit(ctx, func(ctx context.Context) {
		started.Done()
		<-blockCh
	})
	started.Wait()

	cancelCtx, cancel := context.WithCancel(ctx)

	var submitWg sync.WaitGroup
	submitWg.Add(1)
	go func() { //nolint:naked-goroutine // test helper
		defer submitWg.Done()
		_ = pools.Pipeline.Submit(cancelCtx, func(ctx context.Context) {})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	close(blockCh)
	submitWg.Wait()
}
