package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byaboneka/byaboneka/internal/testutil"
)

func TestQueueRunsEnqueuedTasks(t *testing.T) {
	q := NewQueue(8, 2, testutil.TestLogger())
	q.Start(context.Background())

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(Task{Name: "count", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}})
		assert.True(t, ok)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Drain(drainCtx)
	assert.Equal(t, int64(5), ran.Load())
}

func TestQueueDropsWhenFull(t *testing.T) {
	// No workers started, so the buffer fills and stays full.
	q := NewQueue(2, 1, testutil.TestLogger())

	noop := Task{Name: "noop", Run: func(ctx context.Context) error { return nil }}
	assert.True(t, q.Enqueue(noop))
	assert.True(t, q.Enqueue(noop))
	assert.False(t, q.Enqueue(noop))
	assert.Equal(t, int64(1), q.Dropped())
	assert.Equal(t, 2, q.Depth())
}

func TestQueueSurvivesPanicsAndErrors(t *testing.T) {
	q := NewQueue(8, 1, testutil.TestLogger())
	q.Start(context.Background())

	var after atomic.Bool
	q.Enqueue(Task{Name: "boom", Run: func(ctx context.Context) error { panic("boom") }})
	q.Enqueue(Task{Name: "fail", Run: func(ctx context.Context) error { return errors.New("fail") }})
	q.Enqueue(Task{Name: "after", Run: func(ctx context.Context) error {
		after.Store(true)
		return nil
	}})

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Drain(drainCtx)
	assert.True(t, after.Load())
}

func TestQueueTaskContextOutlivesCaller(t *testing.T) {
	q := NewQueue(8, 1, testutil.TestLogger())

	parent, cancel := context.WithCancel(context.Background())
	q.Start(parent)

	gotErr := make(chan error, 1)
	q.Enqueue(Task{Name: "detached", Run: func(ctx context.Context) error {
		gotErr <- ctx.Err()
		return nil
	}})
	cancel()

	select {
	case err := <-gotErr:
		// The worker context was cancelled, but the task context is
		// detached from it and only carries the task budget.
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("task never ran")
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	q.Drain(drainCtx)
}

func TestQueueStartIsIdempotent(t *testing.T) {
	q := NewQueue(1, 1, testutil.TestLogger())
	q.Start(context.Background())
	q.Start(context.Background())

	var ran atomic.Bool
	require.True(t, q.Enqueue(Task{Name: "once", Run: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}}))

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Drain(drainCtx)
	assert.True(t, ran.Load())
}
