package reporting

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// executionJob pairs an execution with the config that defines it.
type executionJob struct {
	cfg  *report.Config
	exec *report.Execution
}

// WorkerPool fans executions out to a fixed set of workers. The queue
// is bounded; Submit reports rejection instead of blocking the
// scheduler tick.
type WorkerPool struct {
	workers  int
	executor *Executor
	jobs     chan executionJob
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

// PoolStatus is a point-in-time snapshot of pool activity.
type PoolStatus struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// NewWorkerPool creates a pool with the given parallelism.
func NewWorkerPool(ctx context.Context, workers int, executor *Executor, logger *zap.Logger) *WorkerPool {
	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workers:  workers,
		executor: executor,
		jobs:     make(chan executionJob, workers*2),
		logger:   logger,
		ctx:      poolCtx,
		cancel:   cancel,
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("execution worker pool started", zap.Int("workers", p.workers))
}

// Stop drains in-flight work and shuts the pool down.
func (p *WorkerPool) Stop() {
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("execution worker pool stopped",
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()))
}

// Submit queues an execution. Returns false when the queue is full or
// the pool is shutting down; the caller owns the rejected execution's
// fate.
func (p *WorkerPool) Submit(cfg *report.Config, exec *report.Execution) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
	}
	select {
	case p.jobs <- executionJob{cfg: cfg, exec: exec}:
		return true
	default:
		return false
	}
}

// Status returns current pool counters.
func (p *WorkerPool) Status() PoolStatus {
	return PoolStatus{
		Workers:   p.workers,
		Queued:    len(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("worker started")

	for job := range p.jobs {
		if err := p.executor.Execute(p.ctx, job.cfg, job.exec); err != nil {
			p.failed.Add(1)
			continue
		}
		p.completed.Add(1)
	}
	logger.Debug("worker stopping")
}
