package domain

// ItemStatus is the lifecycle state of one prompt inside a submission
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusInFlight  ItemStatus = "in_flight"
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusFailed    ItemStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// ResultError is the failure marker of a CompletionResult
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// CompletionResult is the normalized outcome for one prompt. Exactly one is
// produced per submitted prompt, at the prompt's input index.
type CompletionResult struct {
	Index   int          `json:"index"`
	Status  ItemStatus   `json:"status"`
	Content string       `json:"content,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

// Completed builds a successful result.
func Completed(index int, content string) CompletionResult {
	return CompletionResult{Index: index, Status: ItemStatusCompleted, Content: content}
}

// Failed builds a failure marker from err.
func Failed(index int, err error) CompletionResult {
	return CompletionResult{
		Index:  index,
		Status: ItemStatusFailed,
		Error:  &ResultError{Kind: KindOf(err), Message: err.Error()},
	}
}

// OK reports whether the result completed successfully.
func (r CompletionResult) OK() bool {
	return r.Status == ItemStatusCompleted
}

// ResultSummary counts results by status
type ResultSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Summarize counts results by status.
func Summarize(results []CompletionResult) ResultSummary {
	s := ResultSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ItemStatusCompleted:
			s.Completed++
		case ItemStatusFailed:
			s.Failed++
		case ItemStatusInFlight:
			s.InFlight++
		default:
			s.Pending++
		}
	}
	return s
}
