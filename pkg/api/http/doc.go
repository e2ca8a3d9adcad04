// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Synchronous batch completions
//   - Run submission, status queries and cancellation
//   - Health checks (rate limiter usage and worker pool status)
//   - Prometheus metrics
package http
