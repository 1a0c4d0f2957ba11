// Package worker drains sample batches from per-worker queues and applies
// them to their sessions.
//
// Every batch of a session is routed to the same worker, so batches of one
// session are applied in arrival order by a single goroutine.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/liftmap/internal/adapters/mq/queue"
	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/pkg/logger"
	"github.com/okian/liftmap/pkg/metrics"
)

// Default worker configuration constants.
const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Ingester applies one batch to its session.
type Ingester interface {
	Ingest(ctx context.Context, batch model.SampleBatch) error
}

// Queue defines how workers receive batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.SampleBatch
}

// Worker processes batches using the provided Ingester.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown waits for the worker to stop.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing batches.
type InMemoryWorker struct {
	queue    Queue
	ingester Ingester
	name     string

	processed int64
	mu        sync.Mutex

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, ingester Ingester, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		ingester: ingester,
		name:     "worker",
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns when ctx is canceled or the queue is
// closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-batches:
			if !ok {
				return
			}
			if err := w.process(ctx, b); err != nil {
				w.logger.Error(ctx, "error processing batch", logger.Error(err))
			}
		}
	}
}

// Shutdown waits for Run to return. Close the queue first so Run can drain it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of batches this worker has handled.
func (w *InMemoryWorker) Processed() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed
}

func (w *InMemoryWorker) process(ctx context.Context, b model.SampleBatch) error { //nolint:gocritic // hugeParam: batches travel by value through the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		w.mu.Lock()
		w.processed++
		w.mu.Unlock()
	}()

	if err := w.ingester.Ingest(ctx, b); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "ingest_error")
		return fmt.Errorf("ingest batch %s of session %s: %w", b.BatchID, b.SessionID, err)
	}
	return nil
}

// Pool manages workers, each with its own queue.
type Pool struct {
	workers []*InMemoryWorker
	queues  []*queue.InMemoryQueue

	shutdown chan struct{}
	once     sync.Once

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers whose queues each hold up to
// queueSize batches. A workerCount below one defaults to runtime.NumCPU().
func NewPool(workerCount, queueSize int, ingester Ingester) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queues:   make([]*queue.InMemoryQueue, workerCount),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(queueSize))
		p.workers[i] = NewInMemoryWorker(p.queues[i], ingester, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateQueueCapacity(p.Cap())
	metrics.UpdateQueueSize(0)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// Submit routes b to the worker that owns its session. It returns false when
// that worker's queue is full or closed.
func (p *Pool) Submit(ctx context.Context, b model.SampleBatch) bool { //nolint:gocritic // hugeParam: batches travel by value through the channel
	return p.queues[p.route(b.SessionID)].Enqueue(ctx, b)
}

func (p *Pool) route(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(p.queues))) //nolint:gosec // len(queues) is small and positive
}

// Len returns the number of batches waiting across all queues.
func (p *Pool) Len(ctx context.Context) int {
	n := 0
	for _, q := range p.queues {
		n += q.Len(ctx)
	}
	return n
}

// Cap returns the total capacity of all queues.
func (p *Pool) Cap() int {
	n := 0
	for _, q := range p.queues {
		n += q.Cap()
	}
	return n
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of batches handled by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(p.Len(ctx))
		}
	}
}

// Shutdown closes every queue and waits for the workers to drain them.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		close(p.shutdown)
		for _, q := range p.queues {
			_ = q.Close()
		}
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}
