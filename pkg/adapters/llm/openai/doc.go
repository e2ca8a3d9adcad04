// Package openai provides the hosted OpenAI chat completions adapter.
package openai
