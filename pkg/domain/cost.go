package domain

// CostPolicy selects how much limiter capacity one batch consumes
type CostPolicy string

const (
	// CostPerCall charges 1 unit per backend call.
	CostPerCall CostPolicy = "call"
	// CostPerMessage charges 1 unit per message in the batch.
	CostPerMessage CostPolicy = "messages"
	// CostPerToken charges an approximate token count (4 characters per token).
	CostPerToken CostPolicy = "tokens"
)

// Valid reports whether p is a known policy. The empty policy is valid and
// means CostPerCall.
func (p CostPolicy) Valid() bool {
	switch p {
	case "", CostPerCall, CostPerMessage, CostPerToken:
		return true
	}
	return false
}

// Cost returns the weight of batch under p. It is never below 1.
func (p CostPolicy) Cost(batch MessageBatch) int {
	switch p {
	case CostPerMessage:
		if len(batch) == 0 {
			return 1
		}
		return len(batch)
	case CostPerToken:
		chars := 0
		for _, m := range batch {
			chars += len([]rune(m.Content))
		}
		tokens := (chars + 3) / 4
		if tokens < 1 {
			return 1
		}
		return tokens
	default:
		return 1
	}
}
