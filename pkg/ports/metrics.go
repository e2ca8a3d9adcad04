package ports

import "time"

// MetricsCollector records operational metrics
type MetricsCollector interface {
	IncLLMCalls(provider, model, status string)
	ObserveLLMLatency(provider, model string, duration time.Duration)
	ObserveLimiterWait(duration time.Duration)
	SetLimiterUsage(used, capacity int)
	IncItems(status string)
	RecordRunSubmitted(status string)
	RecordRunCompleted(status string, duration time.Duration)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
