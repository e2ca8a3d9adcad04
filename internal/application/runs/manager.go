package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRunTerminal is returned when cancelling a run that already ended.
	ErrRunTerminal = errors.New("run already in terminal state")

	// ErrRunNotPending is returned by Begin when the run was already
	// claimed or cancelled.
	ErrRunNotPending = errors.New("run is not pending")
)

// Manager coordinates asynchronous runs
type Manager struct {
	eventBus  ports.EventBus
	storage   ports.RunStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	provider string
	model    string

	// Track active executions
	executions sync.Map // map[string]*executionContext

	// Serializes read-modify-write of one run within this process
	locks sync.Map // map[string]*sync.Mutex

	runTimeout time.Duration
}

// executionContext holds state for a single run execution
type executionContext struct {
	runID      string
	startedAt  time.Time
	cancelFunc context.CancelFunc
}

// NewManager creates a new run manager. provider and model label the runs
// it creates.
func NewManager(
	eventBus ports.EventBus,
	storage ports.RunStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	provider, model string,
	runTimeout time.Duration,
) *Manager {
	return &Manager{
		eventBus:   eventBus,
		storage:    storage,
		metrics:    metrics,
		validator:  validator,
		logger:     logger,
		provider:   provider,
		model:      model,
		runTimeout: runTimeout,
	}
}

// SubmitRun validates and stores a run, then queues it for the workers
func (m *Manager) SubmitRun(ctx context.Context, req SubmitRequest) (*domain.Run, error) {
	if err := m.validator.Validate(req); err != nil {
		m.logger.Warn("run validation failed", zap.Error(err))
		m.metrics.RecordRunSubmitted("rejected")
		return nil, err
	}

	run := domain.NewRun(uuid.New().String(), req.Prompts, req.SystemRole, req.Options, time.Now().UTC())
	run.Provider = m.provider
	run.Model = m.model

	if err := m.storage.SaveRun(ctx, run); err != nil {
		m.logger.Error("failed to save run",
			zap.String("run_id", run.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	if err := m.publish(ctx, ports.TopicRuns, ports.EventTypeRunSubmitted, run.ID, map[string]interface{}{
		"prompts": len(run.Prompts),
	}); err != nil {
		m.logger.Error("failed to publish run submitted event",
			zap.String("run_id", run.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	m.metrics.RecordRunSubmitted("accepted")
	m.logger.Info("run submitted",
		zap.String("run_id", run.ID),
		zap.Int("prompts", len(run.Prompts)))

	return run, nil
}

// GetRun retrieves a run
func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return m.storage.GetRun(ctx, runID)
}

// ListRuns lists every stored run, oldest first
func (m *Manager) ListRuns(ctx context.Context) ([]*domain.Run, error) {
	return m.storage.ListRuns(ctx)
}

// CancelRun stops a pending or running run. Items not yet finished end up
// failed with kind "cancelled".
func (m *Manager) CancelRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := m.UpdateRun(ctx, runID, func(run *domain.Run) error {
		if run.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrRunTerminal, run.Status)
		}
		now := time.Now().UTC()
		run.Status = domain.RunStatusCancelled
		run.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if val, ok := m.executions.Load(runID); ok {
		val.(*executionContext).cancelFunc()
	}

	if err := m.publish(ctx, ports.TopicProgress, ports.EventTypeRunCancelled, runID, nil); err != nil {
		m.logger.Error("failed to publish run cancelled event",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	m.logger.Info("run cancelled", zap.String("run_id", runID))
	return run, nil
}

// Begin claims a pending run for execution. The returned context ends when
// the run is cancelled, times out or Finish is called.
func (m *Manager) Begin(runID string) (*domain.Run, context.Context, error) {
	ctx := context.Background()
	execCtx, cancel := context.WithTimeout(ctx, m.runTimeout)

	// The execution is registered under the run lock, so a CancelRun that
	// sees the run running always finds it.
	registered := false
	run, err := m.UpdateRun(ctx, runID, func(run *domain.Run) error {
		if run.Status != domain.RunStatusPending {
			return fmt.Errorf("%w: %s", ErrRunNotPending, run.Status)
		}
		now := time.Now().UTC()
		run.Status = domain.RunStatusRunning
		run.StartedAt = &now
		m.executions.Store(runID, &executionContext{
			runID:      runID,
			startedAt:  time.Now(),
			cancelFunc: cancel,
		})
		registered = true
		return nil
	})
	if err != nil {
		if registered {
			m.executions.Delete(runID)
		}
		cancel()
		return nil, nil, err
	}

	if err := m.publish(ctx, ports.TopicProgress, ports.EventTypeRunStarted, runID, nil); err != nil {
		m.logger.Error("failed to publish run started event",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	return run, execCtx, nil
}

// RecordItem stores one item transition and publishes it.
func (m *Manager) RecordItem(ctx context.Context, runID string, result domain.CompletionResult) {
	_, err := m.UpdateRun(ctx, runID, func(run *domain.Run) error {
		if result.Index < 0 || result.Index >= len(run.Results) {
			return fmt.Errorf("result index %d out of range", result.Index)
		}
		// A finished item is never moved back.
		if run.Results[result.Index].Status.Terminal() {
			return nil
		}
		run.Results[result.Index] = result
		return nil
	})
	if err != nil {
		m.logger.Error("failed to record item",
			zap.String("run_id", runID),
			zap.Int("index", result.Index),
			zap.Error(err))
	}

	data := map[string]interface{}{
		"index":  result.Index,
		"status": string(result.Status),
	}
	eventType := ports.EventTypeItemInFlight
	switch result.Status {
	case domain.ItemStatusCompleted:
		eventType = ports.EventTypeItemCompleted
		data["content"] = result.Content
	case domain.ItemStatusFailed:
		eventType = ports.EventTypeItemFailed
		data["error_kind"] = string(result.Error.Kind)
		data["error"] = result.Error.Message
	}

	if err := m.publish(ctx, ports.TopicProgress, eventType, runID, data); err != nil {
		m.logger.Error("failed to publish item event",
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

// Finish stores the final results of a run begun with Begin and releases
// its context. execErr is the error the execution itself failed with, if
// any.
func (m *Manager) Finish(ctx context.Context, runID string, results []domain.CompletionResult, execErr error) (*domain.Run, error) {
	var startedAt time.Time
	var timedOut bool
	if val, ok := m.executions.LoadAndDelete(runID); ok {
		execCtx := val.(*executionContext)
		startedAt = execCtx.startedAt
		timedOut = errors.Is(execErr, context.DeadlineExceeded)
		execCtx.cancelFunc()
	}

	run, err := m.UpdateRun(ctx, runID, func(run *domain.Run) error {
		for _, r := range results {
			if r.Index >= 0 && r.Index < len(run.Results) {
				run.Results[r.Index] = r
			}
		}

		if run.Status == domain.RunStatusCancelled {
			return nil
		}

		now := time.Now().UTC()
		run.CompletedAt = &now
		switch {
		case timedOut:
			run.Status = domain.RunStatusFailed
			run.Error = "execution timeout"
		case execErr != nil:
			run.Status = domain.RunStatusFailed
			run.Error = execErr.Error()
		default:
			run.Status = domain.RunStatusCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !startedAt.IsZero() {
		m.metrics.RecordRunCompleted(string(run.Status), time.Since(startedAt))
	}

	eventType := ports.EventTypeRunCompleted
	switch run.Status {
	case domain.RunStatusFailed:
		eventType = ports.EventTypeRunFailed
	case domain.RunStatusCancelled:
		eventType = ports.EventTypeRunCancelled
	}
	summary := run.Summary()
	if err := m.publish(ctx, ports.TopicProgress, eventType, runID, map[string]interface{}{
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"error":     run.Error,
	}); err != nil {
		m.logger.Error("failed to publish run finished event",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	m.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed))

	return run, nil
}

// UpdateRun loads a run, applies fn and saves it. Updates to one run are
// serialized within this process.
func (m *Manager) UpdateRun(ctx context.Context, runID string, fn func(run *domain.Run) error) (*domain.Run, error) {
	lock, _ := m.locks.LoadOrStore(runID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	run, err := m.storage.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, ports.ErrRunNotFound) {
			m.locks.Delete(runID)
		}
		return nil, err
	}
	defer m.releaseSettled(run)

	if err := fn(run); err != nil {
		return nil, err
	}
	if err := m.storage.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	return run, nil
}

// releaseSettled drops the lock of a run that ended and is no longer
// executing here; such a run takes no further writes. Caller holds the lock.
func (m *Manager) releaseSettled(run *domain.Run) {
	if !run.Status.Terminal() {
		return
	}
	if _, executing := m.executions.Load(run.ID); executing {
		return
	}
	m.locks.Delete(run.ID)
}

// ActiveRuns returns how many runs this process is executing
func (m *Manager) ActiveRuns() int {
	n := 0
	m.executions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down run manager")

	// Cancel all active executions
	m.executions.Range(func(key, value interface{}) bool {
		value.(*executionContext).cancelFunc()
		return true
	})

	m.logger.Info("run manager shut down complete")
	return nil
}

func (m *Manager) publish(ctx context.Context, topic string, eventType ports.EventType, runID string, data map[string]interface{}) error {
	return m.eventBus.Publish(ctx, topic, ports.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
