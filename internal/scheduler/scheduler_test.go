package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/narrationforge/internal/cancelreg"
	"github.com/kestrelmedia/narrationforge/internal/eventbus"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/progressstore"
)

func newTestScheduler() *Scheduler {
	return New(progressstore.New(), nil, cancelreg.New())
}

func TestEnqueueDedupReturnsExistingTaskForSameProject(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	run := func(ctx context.Context, projectID, taskID string) (string, error) {
		close(started)
		<-release
		return "", nil
	}

	id1, err := s.Enqueue(ctx, model.ScopeTTS, "p1", 1, true, run)
	require.NoError(t, err)
	<-started

	id2, err := s.Enqueue(ctx, model.ScopeTTS, "p1", 1, true, func(context.Context, string, string) (string, error) {
		t.Fatal("deduped enqueue must not start a second run")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	close(release)
}

func TestEnqueueWithoutDedupRunsBothIndependently(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	var count int32
	var wg sync.WaitGroup
	wg.Add(2)
	run := func(context.Context, string, string) (string, error) {
		atomic.AddInt32(&count, 1)
		wg.Done()
		return "", nil
	}

	id1, err := s.Enqueue(ctx, model.ScopeTTS, "p2", 2, false, run)
	require.NoError(t, err)
	id2, err := s.Enqueue(ctx, model.ScopeTTS, "p2", 2, false, run)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestConcurrencyBoundLimitsParallelExecution(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	const concurrency = 2
	const tasks = 6
	var current, maxSeen int32
	var wg sync.WaitGroup
	wg.Add(tasks)

	run := func(context.Context, string, string) (string, error) {
		defer wg.Done()
		n := atomic.AddInt32(&current, 1)
		for {
			seen := atomic.LoadInt32(&maxSeen)
			if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return "", nil
	}

	for i := 0; i < tasks; i++ {
		_, err := s.Enqueue(ctx, model.ScopeGenerateVideo, fmt.Sprintf("project-%d", i), concurrency, false, run)
		require.NoError(t, err)
	}

	wg.Wait()
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), concurrency)
}

func TestCancelPendingTaskNeverRuns(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	blockFirst := make(chan struct{})
	_, err := s.Enqueue(ctx, model.ScopeTTS, "occupy", 1, false, func(context.Context, string, string) (string, error) {
		<-blockFirst
		return "", nil
	})
	require.NoError(t, err)

	ranSecond := false
	id2, err := s.Enqueue(ctx, model.ScopeTTS, "other", 1, false, func(context.Context, string, string) (string, error) {
		ranSecond = true
		return "", nil
	})
	require.NoError(t, err)

	ok := s.Cancel(model.ScopeTTS, "other", id2)
	assert.True(t, ok)

	close(blockFirst)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, ranSecond, "a cancelled pending task must never execute")
}

func TestCancelRunningTaskStopsViaContext(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	started := make(chan struct{})
	cancelledSeen := make(chan struct{})
	run := func(ctx context.Context, projectID, taskID string) (string, error) {
		close(started)
		<-ctx.Done()
		close(cancelledSeen)
		return "", ctx.Err()
	}

	taskID, err := s.Enqueue(ctx, model.ScopeGenerateVideo, "p1", 1, false, run)
	require.NoError(t, err)
	<-started

	ok := s.Cancel(model.ScopeGenerateVideo, "p1", taskID)
	assert.True(t, ok)

	select {
	case <-cancelledSeen:
	case <-time.After(time.Second):
		t.Fatal("expected run function's context to be cancelled")
	}
}

func TestEnqueueRejectsEmptyProjectID(t *testing.T) {
	s := newTestScheduler()
	_, err := s.Enqueue(context.Background(), model.ScopeTTS, "", 1, true, func(context.Context, string, string) (string, error) {
		return "", nil
	})
	assert.Error(t, err)
}

func TestTerminalStateStoredWithOutputPath(t *testing.T) {
	s := newTestScheduler()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	taskID, err := s.Enqueue(ctx, model.ScopeTTS, "p1", 1, true, func(context.Context, string, string) (string, error) {
		defer wg.Done()
		return "/tmp/out.mp4", nil
	})
	require.NoError(t, err)

	wg.Wait()
	time.Sleep(10 * time.Millisecond)

	state, ok := s.store.GetState(model.ScopeTTS, "p1", taskID)
	require.True(t, ok)
	assert.Equal(t, model.TaskCompleted, state.Status)
	assert.Equal(t, "/tmp/out.mp4", state.OutputPath)
}

func TestEventBusReceivesQueuedAndCompletedEvents(t *testing.T) {
	bus := eventbus.New(eventbus.Config{BufferSize: 32, Workers: 1})
	bus.Start(context.Background())
	defer bus.Shutdown(time.Second)

	s := New(progressstore.New(), bus, cancelreg.New())

	var wg sync.WaitGroup
	wg.Add(1)
	_, err := s.Enqueue(context.Background(), model.ScopeTTS, "p1", 1, true, func(context.Context, string, string) (string, error) {
		defer wg.Done()
		return "", nil
	})
	require.NoError(t, err)
	wg.Wait()

	time.Sleep(20 * time.Millisecond)
	stats := bus.Stats()
	assert.GreaterOrEqual(t, stats.EventsPublished, int64(2), "expect at least a queued and a completed event")
}
