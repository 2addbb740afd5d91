// Package jobs runs best-effort background work: match refreshes,
// notification sends, and the periodic reaper. The queue is a bounded
// channel drained by a fixed worker pool; when it is full the task is
// dropped and counted rather than blocking the request path.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/byaboneka/byaboneka/internal/telemetry"
)

// TaskTimeout is the execution budget for one task.
const TaskTimeout = 5 * time.Second

// Task is one unit of background work. The context carries the task
// budget, not the originating request: tasks outlive their requests.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue is a bounded in-process task queue.
type Queue struct {
	tasks   chan Task
	workers int
	logger  *slog.Logger

	started atomic.Bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewQueue creates a queue with the given buffer size and worker count.
func NewQueue(size, workers int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		tasks:   make(chan Task, size),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker pool. Safe to call only once; subsequent
// calls are no-ops and log a warning.
func (q *Queue) Start(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		q.logger.Warn("jobs: Start called more than once, ignoring")
		return
	}
	q.registerMetrics()
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue submits a task. A full queue drops the task, logs it, and
// reports false; the caller's operation has already succeeded and must
// not fail on this.
func (q *Queue) Enqueue(task Task) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("jobs: queue full, task dropped", "task", task.Name, "dropped_total", q.dropped.Load())
		return false
	}
}

// Depth returns the number of queued tasks.
func (q *Queue) Depth() int { return len(q.tasks) }

// Dropped returns the total number of dropped tasks.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Drain closes intake, finishes queued tasks, and blocks until the
// workers exit or ctx expires.
func (q *Queue) Drain(ctx context.Context) {
	close(q.tasks)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		q.logger.Warn("jobs: drain timed out", "remaining", len(q.tasks))
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(ctx, task)
	}
}

func (q *Queue) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("jobs: task panicked", "task", task.Name, "panic", r)
		}
	}()

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), TaskTimeout)
	defer cancel()

	start := time.Now()
	if err := task.Run(taskCtx); err != nil {
		q.logger.Warn("jobs: task failed", "task", task.Name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return
	}
	q.logger.Debug("jobs: task done", "task", task.Name, "duration_ms", time.Since(start).Milliseconds())
}

func (q *Queue) registerMetrics() {
	meter := telemetry.Meter("byaboneka/jobs")

	_, _ = meter.Int64ObservableGauge("byaboneka.jobs.depth",
		metric.WithDescription("Number of queued background tasks"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(q.Depth()))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("byaboneka.jobs.dropped",
		metric.WithDescription("Total background tasks dropped due to a full queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(q.dropped.Load())
			return nil
		}),
	)
}
