package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"go.uber.org/zap"
)

// Observer is told about every item transition: in flight, completed and
// failed. It is called from worker goroutines and must be safe for
// concurrent use.
type Observer func(result domain.CompletionResult)

// Driver submits prompt lists through the rate limiter to an LLM client.
// One Driver may serve many concurrent submissions; they all share the
// limiter.
type Driver struct {
	client      ports.LLMClient
	limiter     ports.RateLimiter
	metrics     ports.MetricsCollector
	logger      *zap.Logger
	concurrency int
}

// NewDriver creates a driver issuing at most concurrency calls at once per
// submission. A concurrency of 1 processes prompts strictly in order.
func NewDriver(
	client ports.LLMClient,
	limiter ports.RateLimiter,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	concurrency int,
) *Driver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Driver{
		client:      client,
		limiter:     limiter,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Client returns the LLM client the driver calls.
func (d *Driver) Client() ports.LLMClient { return d.client }

// Limiter returns the shared rate limiter.
func (d *Driver) Limiter() ports.RateLimiter { return d.limiter }

type submitConfig struct {
	observer Observer
}

// SubmitOption configures one submission
type SubmitOption func(*submitConfig)

// WithObserver registers fn for item transitions.
func WithObserver(fn Observer) SubmitOption {
	return func(c *submitConfig) { c.observer = fn }
}

// Submit runs every prompt and returns exactly one result per prompt, in
// input order. Invalid options fail the whole submission with a
// ValidationError before any call. Everything else, including
// cancellation, is reported per item as a failed result.
func (d *Driver) Submit(ctx context.Context, prompts []string, systemRole string, opts domain.CallOptions, submitOpts ...SubmitOption) ([]domain.CompletionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cfg := submitConfig{}
	for _, opt := range submitOpts {
		opt(&cfg)
	}

	batches := d.client.BuildBatches(prompts, systemRole)
	results := make([]domain.CompletionResult, len(batches))
	for i := range results {
		results[i] = domain.CompletionResult{Index: i, Status: domain.ItemStatusPending}
	}
	if len(batches) == 0 {
		return results, nil
	}

	start := time.Now()
	d.logger.Info("submitting batch",
		zap.String("provider", d.client.Name()),
		zap.String("model", d.client.Model()),
		zap.Int("prompts", len(batches)),
		zap.Int("concurrency", d.concurrency))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := d.concurrency
	if workers > len(batches) {
		workers = len(batches)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Each index is written by exactly one worker.
				results[i] = d.process(ctx, i, batches[i], opts, cfg.observer)
			}
		}()
	}

	for i := range batches {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary := domain.Summarize(results)
	d.logger.Info("batch completed",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}

func (d *Driver) process(ctx context.Context, index int, batch domain.MessageBatch, opts domain.CallOptions, observer Observer) domain.CompletionResult {
	if err := ctx.Err(); err != nil {
		return d.fail(index, err, observer)
	}

	cost := d.client.RequestCost(batch)
	waitStart := time.Now()
	if err := d.limiter.Reserve(ctx, cost); err != nil {
		return d.fail(index, err, observer)
	}
	d.metrics.ObserveLimiterWait(time.Since(waitStart))
	d.reportUsage(ctx)

	notify(observer, domain.CompletionResult{Index: index, Status: domain.ItemStatusInFlight})

	callStart := time.Now()
	content, err := d.client.Call(ctx, batch, opts)
	latency := time.Since(callStart)
	d.metrics.ObserveLLMLatency(d.client.Name(), d.client.Model(), latency)

	if err != nil {
		d.metrics.IncLLMCalls(d.client.Name(), d.client.Model(), string(domain.KindOf(err)))
		d.logger.Warn("LLM call failed",
			zap.Int("index", index),
			zap.String("provider", d.client.Name()),
			zap.Bool("transient", domain.IsTransient(err)),
			zap.Duration("latency", latency),
			zap.Error(err))
		return d.fail(index, err, observer)
	}

	d.metrics.IncLLMCalls(d.client.Name(), d.client.Model(), "success")
	result := domain.Completed(index, content)
	d.metrics.IncItems(string(result.Status))
	notify(observer, result)
	return result
}

func (d *Driver) fail(index int, err error, observer Observer) domain.CompletionResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		d.logger.Debug("item cancelled", zap.Int("index", index), zap.Error(err))
	}
	result := domain.Failed(index, err)
	d.metrics.IncItems(string(result.Status))
	notify(observer, result)
	return result
}

func (d *Driver) reportUsage(ctx context.Context) {
	usage, err := d.limiter.Usage(ctx)
	if err != nil {
		d.logger.Debug("failed to read limiter usage", zap.Error(err))
		return
	}
	d.metrics.SetLimiterUsage(usage.Used, usage.Capacity)
}

func notify(observer Observer, result domain.CompletionResult) {
	if observer != nil {
		observer(result)
	}
}
