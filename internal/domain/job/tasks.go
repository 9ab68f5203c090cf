package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// taskQueueHint sizes each job's queue before it grows.
const taskQueueHint = 8

// taskQueue is the per-job FIFO handed to Tick.
type taskQueue struct {
	mu      sync.Mutex
	pending *queue.Queue
	running bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{pending: queue.New(taskQueueHint)}
}

// Enqueue appends a task. Nil tasks are ignored, as are tasks enqueued
// after the queue was disposed.
func (q *taskQueue) Enqueue(task Task) {
	if task == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_ = q.pending.Put(task)
}

// Len returns the number of tasks not yet started.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.pending.Len())
}

// claim marks the queue running if it has work and nothing in flight.
func (q *taskQueue) claim() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.pending.Empty() {
		return false
	}
	q.running = true
	return true
}

// next pops the oldest task, or releases the queue when empty. Get never
// blocks here because the queue is checked under the same lock.
func (q *taskQueue) next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending.Empty() {
		q.running = false
		return nil, false
	}
	items, err := q.pending.Get(1)
	if err != nil || len(items) == 0 {
		q.running = false
		return nil, false
	}
	task, ok := items[0].(Task)
	return task, ok
}

func (q *taskQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running = false
}

// dispose drops pending tasks and rejects later ones.
func (q *taskQueue) dispose() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending.Dispose()
	q.running = false
}

// dispatcher runs queued tasks on a bounded ants pool.
type dispatcher struct {
	pool    *ants.Pool
	logger  ports.Logger
	metrics ports.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	// ctx is handed to every task and cancelled when the dispatcher
	// gives up waiting on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

func newDispatcher(workers int, logger ports.Logger, metrics ports.Metrics) (*dispatcher, error) {
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("creating task pool: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		pool:    pool,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// drain starts a worker for the job's queue unless one is already in flight.
// It never blocks: when the pool is saturated the tasks wait for the next firing.
func (d *dispatcher) drain(e *entry) {
	d.mu.Lock()
	if d.closed || !e.queue.claim() {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	err := d.pool.Submit(func() {
		defer d.wg.Done()
		d.run(e)
	})
	if err == nil {
		return
	}

	d.wg.Done()
	e.queue.release()
	if errors.Is(err, ants.ErrPoolOverload) {
		d.logger.Debug(d.ctx, "task pool saturated, deferring tasks",
			ports.F("side", e.side.String()), ports.F("job", e.name))
		return
	}
	d.logger.Warn(d.ctx, "task submission failed",
		ports.F("side", e.side.String()), ports.F("job", e.name), ports.Err(err))
}

func (d *dispatcher) run(e *entry) {
	for {
		task, ok := e.queue.next()
		if !ok {
			return
		}

		err := unit.Guard(func() error { return task(d.ctx) })
		if err != nil {
			d.metrics.JobTask(e.side.String(), "error")
			d.metrics.HookFailure(e.side.String(), "job", HookTask)
			d.logger.Error(d.ctx, "job task failed",
				ports.F("side", e.side.String()), ports.F("job", e.name), ports.Err(err))
			continue
		}
		d.metrics.JobTask(e.side.String(), "ok")
	}
}

// shutdown waits for in-flight tasks until ctx is done, then cancels the
// task context and releases the pool.
func (d *dispatcher) shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	d.cancel()
	d.pool.Release()
	return err
}
