package runs

import (
	"fmt"
	"strings"

	"github.com/aescanero/factllm/pkg/domain"
)

// DefaultMaxPrompts bounds one submission
const DefaultMaxPrompts = 1000

// SubmitRequest is one prompt list submitted for execution
type SubmitRequest struct {
	Prompts    []string
	SystemRole string
	Options    domain.CallOptions
}

// Validator validates submissions
type Validator struct {
	maxPrompts int
}

// NewValidator creates a new submission validator
func NewValidator(maxPrompts int) *Validator {
	if maxPrompts <= 0 {
		maxPrompts = DefaultMaxPrompts
	}
	return &Validator{maxPrompts: maxPrompts}
}

// Validate returns a *domain.ValidationError describing the first problem
func (v *Validator) Validate(req SubmitRequest) error {
	if len(req.Prompts) == 0 {
		return &domain.ValidationError{Field: "prompts", Reason: "at least one prompt is required"}
	}

	if len(req.Prompts) > v.maxPrompts {
		return &domain.ValidationError{
			Field:  "prompts",
			Reason: fmt.Sprintf("at most %d prompts per run, got %d", v.maxPrompts, len(req.Prompts)),
		}
	}

	for i, p := range req.Prompts {
		if strings.TrimSpace(p) == "" {
			return &domain.ValidationError{Field: fmt.Sprintf("prompts[%d]", i), Reason: "prompt is empty"}
		}
	}

	return req.Options.Validate()
}
