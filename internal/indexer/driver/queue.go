// internal/indexer/driver/queue.go
package driver

import (
	"context"
	"sync"
	"time"

	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/common/metrics"
	"forms-indexer/internal/common/observability"
)

// TaskKind tags an incremental task with the CRUD event that caused it.
type TaskKind string

const (
	TaskCreate TaskKind = "create"
	TaskModify TaskKind = "modify"
	TaskDelete TaskKind = "delete"
)

// Task is one unit of incremental work: re-extract (or delete) the full
// document set of a single form response.
type Task struct {
	ResourceID int
	Kind       TaskKind
}

// Queue is a bounded task queue with a worker pool. Enqueue blocks when the
// queue is full, which is the backpressure replacing the original
// thread-per-event model. Task failures are logged, never propagated to
// sibling tasks.
type Queue struct {
	driver *Driver
	obs    *observability.Observability
	tasks  chan Task
	wg     sync.WaitGroup
	logger logger.Logger
}

func NewQueue(d *Driver, obs *observability.Observability, size int, log logger.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		driver: d,
		obs:    obs,
		tasks:  make(chan Task, size),
		logger: log.WithFields(map[string]interface{}{"component": "queue"}),
	}
}

// Start launches the worker pool. Workers drain the queue until Stop.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				metrics.QueueDepth.Set(float64(len(q.tasks)))
				q.process(ctx, task)
			}
		}()
	}
}

// Enqueue submits a task, blocking while the queue is full.
func (q *Queue) Enqueue(task Task) {
	q.tasks <- task
	metrics.QueueDepth.Set(float64(len(q.tasks)))
}

// Stop closes the queue and waits for in-flight tasks.
func (q *Queue) Stop() {
	close(q.tasks)
	q.wg.Wait()
}

func (q *Queue) process(ctx context.Context, task Task) {
	ctx, span := q.obs.StartSpan(ctx, "incremental-index")
	defer span.End()
	start := time.Now()

	var err error
	switch task.Kind {
	case TaskDelete:
		err = q.driver.DeleteResponseDocuments(ctx, task.ResourceID)
	default:
		err = q.driver.IndexResponse(ctx, task.ResourceID)
	}

	status := "success"
	switch {
	case err == nil:
	case IsNotFound(err):
		// Resource vanished between the event and the task; drop it.
		status = "dropped"
		q.logger.Warn("task dropped, resource not found", map[string]interface{}{
			"resourceId": task.ResourceID,
			"kind":       string(task.Kind),
		})
	default:
		status = "error"
		q.logger.WithError(err).Error("incremental indexing failed", map[string]interface{}{
			"resourceId": task.ResourceID,
			"kind":       string(task.Kind),
		})
	}

	metrics.IncrementalTasks.WithLabelValues(string(task.Kind), status).Inc()
	q.obs.RecordTaskProcessed(ctx, status)
	q.obs.RecordTaskDuration(ctx, time.Since(start), status)
}
