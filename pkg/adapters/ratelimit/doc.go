// Package ratelimit provides sliding-window rate limiter implementations.
//
// Implementations:
//   - memory: in-process record set guarded by a mutex
//   - redis: record set in a Redis sorted set, shared by every process
//     using the same key
//
// Both admit a request once the cost recorded in the trailing window plus
// the new cost fits the capacity. A request larger than the capacity is
// admitted once the window is empty.
package ratelimit
