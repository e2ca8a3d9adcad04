// Package chatcompletions implements the OpenAI-compatible chat completions
// wire protocol shared by the hosted OpenAI adapter and local inference
// servers (Ollama, vLLM, FastChat).
//
// A call encodes the message batch with the model, an integer seed and,
// when enabled, response_format json_object. Only the first choice's message
// content is returned. Non-2xx responses, transport failures and malformed
// bodies are reported as *domain.BackendError; a cancelled context is
// returned as the context's own error.
package chatcompletions
