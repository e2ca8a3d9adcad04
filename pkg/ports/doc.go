// Package ports declares the interfaces that connect factllm's application
// layer to its adapters: LLM backends, the rate limiter, run storage, the
// event bus and metrics.
package ports
