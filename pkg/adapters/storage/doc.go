// Package storage provides run storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory, for tests and single-process deployments
package storage
