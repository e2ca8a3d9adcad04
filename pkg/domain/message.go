package domain

import "fmt"

// Role identifies the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultSystemRole is used when a caller does not supply a system instruction.
const DefaultSystemRole = "You are a helpful assistant designed to output JSON."

// Message is a single (role, content) pair
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MessageBatch is the full ordered context of one backend call.
type MessageBatch []Message

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// BuildBatches turns each prompt into a [system, user] batch. The output has
// the same length and order as prompts.
func BuildBatches(prompts []string, systemRole string) []MessageBatch {
	if systemRole == "" {
		systemRole = DefaultSystemRole
	}

	batches := make([]MessageBatch, len(prompts))
	for i, prompt := range prompts {
		batches[i] = MessageBatch{
			{Role: RoleSystem, Content: systemRole},
			{Role: RoleUser, Content: prompt},
		}
	}
	return batches
}

// System returns the concatenated content of every system message.
func (b MessageBatch) System() string {
	var out string
	for _, m := range b {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

// LastUser returns the content of the last user message, or "" if none.
func (b MessageBatch) LastUser() string {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i].Role == RoleUser {
			return b[i].Content
		}
	}
	return ""
}

// Validate checks that the batch is non-empty and uses known roles.
func (b MessageBatch) Validate() error {
	if len(b) == 0 {
		return &ValidationError{Field: "batch", Reason: "batch must contain at least one message"}
	}
	for i, m := range b {
		if !m.Role.Valid() {
			return &ValidationError{Field: "batch", Reason: fmt.Sprintf("message %d has unknown role %q", i, m.Role)}
		}
	}
	return nil
}
