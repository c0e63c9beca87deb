package lane

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/haggle-go/internal/logger"
)

func newTestManager(limit int) *Manager {
	return NewManager(ManagerConfig{QueueLimit: limit, Logger: logger.Discard()})
}

func TestSubmit_FIFO(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, m.Submit("s1", func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, m.Do(context.Background(), "s1", func(context.Context) {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestSubmit_OneJobAtATimePerKey(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Do(context.Background(), "s1", func(context.Context) {
				n := running.Add(1)
				for {
					cur := maxRunning.Load()
					if n <= cur || maxRunning.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestManager_KeysIndependent(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	block := make(chan struct{})
	require.NoError(t, m.Submit("slow", func(context.Context) { <-block }))
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ran := false
	require.NoError(t, m.Do(ctx, "fast", func(context.Context) { ran = true }))
	assert.True(t, ran)
}

func TestDoUrgent_CancelsInFlightAndRunsNext(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	started := make(chan struct{})
	canceled := make(chan struct{})
	require.NoError(t, m.Submit("s1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(canceled)
	}))
	<-started

	var mu sync.Mutex
	var order []string
	record := func(s string) Job {
		return func(context.Context) {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
	}
	require.NoError(t, m.Submit("s1", record("normal")))
	require.NoError(t, m.DoUrgent(context.Background(), "s1", record("urgent")))

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("in-flight job was not canceled")
	}
	require.NoError(t, m.Do(context.Background(), "s1", func(context.Context) {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"urgent", "normal"}, order)
}

func TestSubmit_QueueFull(t *testing.T) {
	m := newTestManager(1)
	defer m.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, m.Submit("s1", func(context.Context) { close(started); <-block }))
	<-started
	require.NoError(t, m.Submit("s1", func(context.Context) {}))

	err := m.Submit("s1", func(context.Context) {})
	assert.True(t, errors.Is(err, ErrQueueFull))
	close(block)
}

func TestClose_RejectsNewWorkAndReleasesWaiters(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	require.NoError(t, m.Do(context.Background(), "s1", func(context.Context) {}))
	m.Close("s1")
	assert.Equal(t, 0, m.Stats()["totalLanes"])

	// A closed key gets a fresh lane on next use.
	require.NoError(t, m.Do(context.Background(), "s1", func(context.Context) {}))
}

func TestJobPanicDoesNotKillWorker(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	require.NoError(t, m.Do(context.Background(), "s1", func(context.Context) { panic("boom") }))
	ran := false
	require.NoError(t, m.Do(context.Background(), "s1", func(context.Context) { ran = true }))
	assert.True(t, ran)
}

func TestStop(t *testing.T) {
	m := newTestManager(0)
	started := make(chan struct{})
	canceled := make(chan struct{})
	require.NoError(t, m.Submit("s1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(canceled)
	}))
	<-started
	m.Stop()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel in-flight job")
	}
	assert.True(t, errors.Is(m.Submit("s2", func(context.Context) {}), ErrStopped))
}

func TestDo_ContextCanceled(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, m.Submit("s1", func(context.Context) { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Do(ctx, "s1", func(context.Context) {})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestManager_Stats(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, m.Submit("a", func(context.Context) { close(started); <-block }))
	<-started
	require.NoError(t, m.Submit("a", func(context.Context) {}))
	require.NoError(t, m.Do(context.Background(), "b", func(context.Context) {}))

	stats := m.Stats()
	assert.Equal(t, 2, stats["totalLanes"])
	assert.Equal(t, 1, stats["activeLanes"])
	assert.Equal(t, 1, stats["queuedJobs"])
	close(block)
}

func TestDoUrgent_WaitsForCompletion(t *testing.T) {
	m := newTestManager(0)
	defer m.Stop()

	started := make(chan struct{})
	require.NoError(t, m.Submit("s1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	ran := false
	require.NoError(t, m.DoUrgent(context.Background(), "s1", func(context.Context) { ran = true }))
	assert.True(t, ran)
}
