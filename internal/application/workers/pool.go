package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/factllm/internal/application/batch"
	"github.com/aescanero/factllm/internal/application/runs"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"go.uber.org/zap"
)

// Pool manages a pool of worker goroutines executing queued runs
type Pool struct {
	size     int
	eventBus ports.EventBus
	manager  *runs.Manager
	driver   *batch.Driver
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	health   *HealthMonitor

	workers []*worker
	jobs    chan string
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool
func NewPool(
	size int,
	eventBus ports.EventBus,
	manager *runs.Manager,
	driver *batch.Driver,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:     size,
		eventBus: eventBus,
		manager:  manager,
		driver:   driver,
		metrics:  metrics,
		logger:   logger,
		workers:  make([]*worker, size),
		jobs:     make(chan string),
		ctx:      ctx,
		cancel:   cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start subscribes to queued runs and starts the workers
func (p *Pool) Start() error {
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	// One subscription feeds every worker, so each run is dispatched once.
	if err := p.eventBus.Subscribe(p.ctx, ports.TopicRuns, p.dispatch); err != nil {
		p.cancel()
		return fmt.Errorf("failed to subscribe to run events: %w", err)
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()

	// Cancel context to signal workers to stop
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// dispatch hands run.submitted events to the next free worker. It blocks
// while every worker is busy, which leaves later events queued in the bus.
func (p *Pool) dispatch(ctx context.Context, event ports.Event) error {
	if event.Type != ports.EventTypeRunSubmitted {
		return nil
	}
	if event.RunID == "" {
		p.logger.Error("run submitted event without run id", zap.String("event_id", event.ID))
		return nil
	}

	select {
	case p.jobs <- event.RunID:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Info("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Info("worker stopped", zap.String("worker_id", w.id))
			return
		case runID := <-w.pool.jobs:
			w.handleRun(runID)
		}
	}
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	if status == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
}

// handleRun executes one queued run
func (w *worker) handleRun(runID string) {
	w.setStatus(WorkerStatusBusy)
	defer w.setStatus(WorkerStatusIdle)

	run, runCtx, err := w.pool.manager.Begin(runID)
	if err != nil {
		if errors.Is(err, runs.ErrRunNotPending) || errors.Is(err, ports.ErrRunNotFound) {
			w.pool.logger.Info("skipping run",
				zap.String("worker_id", w.id),
				zap.String("run_id", runID),
				zap.Error(err))
			return
		}
		w.pool.logger.Error("failed to begin run",
			zap.String("worker_id", w.id),
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}

	// Shutdown of the pool cancels the run as well.
	stop := context.AfterFunc(w.pool.ctx, func() { _, _ = w.pool.manager.CancelRun(context.Background(), runID) })
	defer stop()

	w.pool.logger.Info("executing run",
		zap.String("worker_id", w.id),
		zap.String("run_id", runID),
		zap.Int("prompts", len(run.Prompts)))

	startTime := time.Now()
	observer := func(result domain.CompletionResult) {
		w.pool.manager.RecordItem(context.Background(), runID, result)
	}

	results, execErr := w.pool.driver.Submit(runCtx, run.Prompts, run.SystemRole, run.Options, batch.WithObserver(observer))
	if execErr == nil {
		execErr = runCtx.Err()
		if errors.Is(execErr, context.Canceled) {
			// Cancellation is recorded by CancelRun.
			execErr = nil
		}
	}

	finished, err := w.pool.manager.Finish(context.Background(), runID, results, execErr)
	if err != nil {
		w.pool.logger.Error("failed to finish run",
			zap.String("worker_id", w.id),
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}

	w.pool.logger.Info("run execution completed",
		zap.String("worker_id", w.id),
		zap.String("run_id", runID),
		zap.String("status", string(finished.Status)),
		zap.Duration("duration", time.Since(startTime)))
}
