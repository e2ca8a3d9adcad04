// Package domain holds the value types shared by every layer of factllm.
//
// It defines chat messages and message batches, per-call options, the
// normalized completion result, the client configuration and the error
// taxonomy (ConfigError, ValidationError, BackendError). Nothing in this
// package performs I/O.
package domain
