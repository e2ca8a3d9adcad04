package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHealthInterval = 30 * time.Second
	usageReadTimeout      = 2 * time.Second
)

// HealthMonitor periodically samples the run workers and the shared rate
// limiter, logs the sample and exports it as metrics
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// HealthStatus is one sample of the run workers
type HealthStatus struct {
	TotalWorkers   int       `json:"total_workers"`
	IdleWorkers    int       `json:"idle_workers"`
	BusyWorkers    int       `json:"busy_workers"`
	StoppedWorkers int       `json:"stopped_workers"`
	ActiveRuns     int       `json:"active_runs"`
	Saturated      bool      `json:"saturated"`
	Healthy        bool      `json:"healthy"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a monitor sampling every interval
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins sampling. Later calls do nothing.
func (h *HealthMonitor) Start() {
	h.startOnce.Do(func() { go h.loop() })
}

// Stop ends sampling. It is safe to call more than once.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *HealthMonitor) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

// sample records one status and the limiter window usage
func (h *HealthMonitor) sample() {
	status := h.GetStatus()
	h.pool.metrics.RecordWorkerPoolStatus(status.IdleWorkers, status.BusyWorkers, status.StoppedWorkers)

	fields := []zap.Field{
		zap.Int("workers", status.TotalWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers),
		zap.Int("active_runs", status.ActiveRuns),
	}

	ctx, cancel := context.WithTimeout(context.Background(), usageReadTimeout)
	usage, err := h.pool.driver.Limiter().Usage(ctx)
	cancel()
	if err != nil {
		h.logger.Warn("failed to sample rate limiter", zap.Error(err))
	} else {
		h.pool.metrics.SetLimiterUsage(usage.Used, usage.Capacity)
		fields = append(fields,
			zap.Int("window_used", usage.Used),
			zap.Int("window_capacity", usage.Capacity))
	}

	switch {
	case !status.Healthy:
		h.logger.Warn("run workers unhealthy", fields...)
	case status.Saturated:
		// Submitted runs queue on the event bus until a worker frees up
		h.logger.Warn("every run worker is busy, raise WORKER_POOL_SIZE to drain the queue faster", fields...)
	default:
		h.logger.Debug("run workers sampled", fields...)
	}
}

// GetStatus counts workers by state. The pool is healthy while it has
// workers and none of them stopped.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	status := &HealthStatus{
		ActiveRuns: h.pool.manager.ActiveRuns(),
		Timestamp:  time.Now(),
	}

	for _, state := range h.pool.GetStatus() {
		status.TotalWorkers++
		switch state {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}

	status.Healthy = status.TotalWorkers > 0 && status.StoppedWorkers == 0
	status.Saturated = status.TotalWorkers > 0 && status.BusyWorkers == status.TotalWorkers
	return status
}

// IsHealthy reports whether runs can still be executed
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
