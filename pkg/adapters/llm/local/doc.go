// Package local provides the adapter for self-hosted OpenAI-compatible
// servers.
package local
