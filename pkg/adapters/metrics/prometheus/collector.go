package prometheus

import (
	"time"

	"github.com/aescanero/factllm/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	llmCalls      *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	limiterWait   prometheus.Histogram
	limiterUsed   prometheus.Gauge
	limiterCap    prometheus.Gauge
	items         *prometheus.CounterVec
	runsSubmitted *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// A nil reg means the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		llmCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factllm_llm_calls_total",
				Help: "Total number of LLM backend calls",
			},
			[]string{"provider", "model", "status"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factllm_llm_latency_seconds",
				Help:    "LLM backend call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60, 120},
			},
			[]string{"provider", "model"},
		),
		limiterWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "factllm_ratelimit_wait_seconds",
				Help:    "Time spent waiting for rate limiter admission",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
		),
		limiterUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "factllm_ratelimit_window_used",
				Help: "Cost currently held in the rate limiter window",
			},
		),
		limiterCap: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "factllm_ratelimit_window_capacity",
				Help: "Rate limiter window capacity",
			},
		),
		items: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factllm_items_total",
				Help: "Total number of prompts processed by final status",
			},
			[]string{"status"},
		),
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factllm_runs_submitted_total",
				Help: "Total number of runs submitted",
			},
			[]string{"status"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factllm_runs_completed_total",
				Help: "Total number of runs finished by status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factllm_run_duration_seconds",
				Help:    "Run execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "factllm_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "factllm_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "factllm_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// IncLLMCalls increments the count of LLM backend calls
func (c *Collector) IncLLMCalls(provider, model, status string) {
	c.llmCalls.WithLabelValues(provider, model, status).Inc()
}

// ObserveLLMLatency records the latency of an LLM backend call
func (c *Collector) ObserveLLMLatency(provider, model string, duration time.Duration) {
	c.llmLatency.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// ObserveLimiterWait records how long a request waited for admission
func (c *Collector) ObserveLimiterWait(duration time.Duration) {
	c.limiterWait.Observe(duration.Seconds())
}

// SetLimiterUsage records the rate limiter window occupancy
func (c *Collector) SetLimiterUsage(used, capacity int) {
	c.limiterUsed.Set(float64(used))
	c.limiterCap.Set(float64(capacity))
}

// IncItems increments the count of processed prompts
func (c *Collector) IncItems(status string) {
	c.items.WithLabelValues(status).Inc()
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(status string) {
	c.runsSubmitted.WithLabelValues(status).Inc()
}

// RecordRunCompleted records a finished run
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

var _ ports.MetricsCollector = (*Collector)(nil)
