// Package anthropic adapts the Anthropic Messages API to ports.LLMClient
// using the official SDK.
//
// System messages become the request's system parameter. There is no
// response_format on this API, so JSON output relies on the system
// instruction.
package anthropic
