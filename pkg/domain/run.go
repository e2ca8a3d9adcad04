package domain

import "time"

// RunStatus represents the lifecycle of an asynchronous submission
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run has finished one way or another.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Run is one prompt list submitted for asynchronous execution.
type Run struct {
	ID          string             `json:"id"`
	Status      RunStatus          `json:"status"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	SystemRole  string             `json:"system_role"`
	Prompts     []string           `json:"prompts"`
	Options     CallOptions        `json:"options"`
	Results     []CompletionResult `json:"results"`
	Error       string             `json:"error,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// NewRun creates a pending run with one pending result per prompt.
func NewRun(id string, prompts []string, systemRole string, opts CallOptions, now time.Time) *Run {
	results := make([]CompletionResult, len(prompts))
	for i := range results {
		results[i] = CompletionResult{Index: i, Status: ItemStatusPending}
	}
	return &Run{
		ID:          id,
		Status:      RunStatusPending,
		SystemRole:  systemRole,
		Prompts:     append([]string(nil), prompts...),
		Options:     opts,
		Results:     results,
		SubmittedAt: now,
	}
}

// Summary counts the run's results by status.
func (r *Run) Summary() ResultSummary {
	return Summarize(r.Results)
}

// Clone returns a copy that shares no mutable slices with r.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	out.Prompts = append([]string(nil), r.Prompts...)
	out.Results = make([]CompletionResult, len(r.Results))
	for i, res := range r.Results {
		if res.Error != nil {
			e := *res.Error
			res.Error = &e
		}
		out.Results[i] = res
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
