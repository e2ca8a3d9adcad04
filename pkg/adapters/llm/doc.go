// Package llm provides LLM client implementations.
//
// The factory creates LLM clients based on provider configuration.
// Currently supports:
//   - openai: hosted OpenAI chat completions
//   - local: self-hosted OpenAI-compatible servers (Ollama, vLLM, FastChat)
//   - anthropic: Anthropic Messages API
//   - mock: offline echo client
//
// Every client satisfies ports.LLMClient, so callers never depend on a
// concrete backend.
package llm
