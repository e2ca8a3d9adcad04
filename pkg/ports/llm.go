package ports

import (
	"context"

	"github.com/aescanero/factllm/pkg/domain"
)

// LLMClient is the contract every backend adapter satisfies. Callers depend
// on this interface only, never on a concrete backend.
type LLMClient interface {
	// Name returns the provider name, e.g. "local".
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Call performs exactly one backend round trip and returns the first
	// completion's text. It never retries. Invalid options fail with a
	// *domain.ValidationError before any network I/O; transport, status and
	// response-shape failures are *domain.BackendError.
	Call(ctx context.Context, batch domain.MessageBatch, opts domain.CallOptions) (string, error)

	// RequestCost returns the limiter weight of batch.
	RequestCost(batch domain.MessageBatch) int

	// BuildBatches turns prompts into one [system, user] batch each, in
	// input order.
	BuildBatches(prompts []string, systemRole string) []domain.MessageBatch
}
