// Package mock provides an offline LLM client for tests and local runs
// without a model server.
package mock
