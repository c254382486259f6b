package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_ExecutesQueuedTasks(t *testing.T) {
	pool := New(Config{Workers: 2, QueueSize: 8})
	require.NoError(t, pool.Start())

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		id := id
		require.NoError(t, pool.Submit(Task{ID: id, Execute: func(ctx context.Context) {
			defer wg.Done()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}}))
	}
	wg.Wait()
	require.NoError(t, pool.Stop())
	require.Len(t, seen, 4)
}

func TestPool_SurvivesPanickingTask(t *testing.T) {
	pool := New(Config{Workers: 1, QueueSize: 4})
	require.NoError(t, pool.Start())

	done := make(chan struct{})
	require.NoError(t, pool.Submit(Task{ID: "boom", Execute: func(ctx context.Context) {
		panic("broken job")
	}}))
	require.NoError(t, pool.Submit(Task{ID: "after", Execute: func(ctx context.Context) {
		close(done)
	}}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	require.NoError(t, pool.Stop())
}

func TestPool_SubmitAfterStopFails(t *testing.T) {
	pool := New(Config{Workers: 1, QueueSize: 1})
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Stop())
	require.Error(t, pool.Submit(Task{ID: "late", Execute: func(ctx context.Context) {}}))
}

func TestPool_FullQueueRejects(t *testing.T) {
	pool := New(Config{Workers: 1, QueueSize: 1})
	require.NoError(t, pool.Start())

	release := make(chan struct{})
	require.NoError(t, pool.Submit(Task{ID: "hold", Execute: func(ctx context.Context) {
		<-release
	}}))

	// the single worker is busy; fill the queue then overflow it
	var backlog bool
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if err := pool.Submit(Task{ID: "fill", Execute: func(ctx context.Context) {}}); err != nil {
			backlog = true
			break
		}
	}
	require.True(t, backlog)

	close(release)
	require.NoError(t, pool.Stop())
}
